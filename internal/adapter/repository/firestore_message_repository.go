package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/errors"
)

type firestoreMessageRepository struct {
	client *firestore.Client
}

func NewFirestoreMessageRepository(client *firestore.Client) repository.MessageRepository {
	return &firestoreMessageRepository{
		client: client,
	}
}

func (r *firestoreMessageRepository) messageRef(roomID, id string) *firestore.DocumentRef {
	return r.client.Collection(roomsCollection).Doc(roomID).Collection(messagesCollection).Doc(id)
}

func (r *firestoreMessageRepository) Append(ctx context.Context, message *entity.Message, recipientIDs []string) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}

	roomRef := r.client.Collection(roomsCollection).Doc(message.RoomID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// All reads must happen before the first write.
		doc, err := tx.Get(roomRef)
		if err != nil {
			return err
		}
		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			return err
		}

		now := time.Now().UTC()
		message.Seq = room.LastSeq + 1
		message.CreatedAt = now
		message.UpdatedAt = now

		if err := tx.Create(r.messageRef(message.RoomID, message.ID), message); err != nil {
			return err
		}
		if err := tx.Update(roomRef, []firestore.Update{
			{Path: "lastSeq", Value: message.Seq},
			{Path: "lastMessageAt", Value: now},
		}); err != nil {
			return err
		}

		for _, userID := range recipientIDs {
			if userID == message.SenderID {
				continue
			}
			marker := &entity.ReadMarker{
				MessageID: message.ID,
				UserID:    userID,
				RoomID:    message.RoomID,
				CreatedAt: now,
			}
			if err := tx.Set(markerRef(r.client, message.ID, userID), marker); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Room", err)
		}
		return errors.Internal("Failed to create message", err)
	}
	return nil
}

func (r *firestoreMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	iter := r.client.CollectionGroup(messagesCollection).Where("id", "==", id).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Message", nil)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreMessageRepository) ListByRoom(ctx context.Context, roomID string, afterSeq int64, limit int) ([]*entity.Message, error) {
	query := r.client.Collection(roomsCollection).Doc(roomID).Collection(messagesCollection).
		Where("seq", ">", afterSeq).
		OrderBy("seq", firestore.Asc)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}
	return messages, nil
}

func (r *firestoreMessageRepository) LastInRoom(ctx context.Context, roomID string) (*entity.Message, error) {
	iter := r.client.Collection(roomsCollection).Doc(roomID).Collection(messagesCollection).
		OrderBy("seq", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Message", nil)
		}
		return nil, errors.Internal("Failed to get last message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreMessageRepository) Update(ctx context.Context, message *entity.Message) error {
	message.UpdatedAt = time.Now().UTC()

	_, err := r.messageRef(message.RoomID, message.ID).Update(ctx, []firestore.Update{
		{Path: "content", Value: message.Content},
		{Path: "attachment", Value: message.Attachment},
		{Path: "attachmentName", Value: message.AttachmentName},
		{Path: "attachmentType", Value: message.AttachmentType},
		{Path: "attachmentSize", Value: message.AttachmentSize},
		{Path: "isEdited", Value: message.IsEdited},
		{Path: "isDeleted", Value: message.IsDeleted},
		{Path: "editedAt", Value: message.EditedAt},
		{Path: "updatedAt", Value: message.UpdatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to update message", err)
	}
	return nil
}
