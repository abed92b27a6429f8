package repository

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/errors"
	"schoolchat/pkg/logger"
)

const (
	roomsCollection        = "rooms"
	participantsCollection = "participants"
	messagesCollection     = "messages"
	readMarkersCollection  = "read_markers"
)

type firestoreRoomRepository struct {
	client *firestore.Client
}

func NewFirestoreRoomRepository(client *firestore.Client) repository.RoomRepository {
	return &firestoreRoomRepository{
		client: client,
	}
}

func (r *firestoreRoomRepository) roomRef(id string) *firestore.DocumentRef {
	return r.client.Collection(roomsCollection).Doc(id)
}

func (r *firestoreRoomRepository) Create(ctx context.Context, room *entity.Room, participants []*entity.Participant) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now

	batch := r.client.Batch()
	batch.Create(r.roomRef(room.ID), room)
	for _, p := range participants {
		p.RoomID = room.ID
		if p.JoinedAt.IsZero() {
			p.JoinedAt = now
		}
		batch.Set(r.roomRef(room.ID).Collection(participantsCollection).Doc(p.UserID), p)
	}

	if _, err := batch.Commit(ctx); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.Conflict("Room already exists")
		}
		return errors.Internal("Failed to create room", err)
	}

	return nil
}

func (r *firestoreRoomRepository) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	doc, err := r.roomRef(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Room", err)
		}
		return nil, errors.Internal("Failed to get room", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}
	return &room, nil
}

func (r *firestoreRoomRepository) GetByName(ctx context.Context, name string) (*entity.Room, error) {
	iter := r.client.Collection(roomsCollection).Where("name", "==", name).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Room", nil)
		}
		return nil, errors.Internal("Failed to query room by name", err)
	}

	var room entity.Room
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}
	return &room, nil
}

func (r *firestoreRoomRepository) ListActive(ctx context.Context) ([]*entity.Room, error) {
	return r.queryRooms(ctx, r.client.Collection(roomsCollection).Where("isActive", "==", true))
}

func (r *firestoreRoomRepository) ListByIDs(ctx context.Context, ids []string) ([]*entity.Room, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, r.roomRef(id))
	}

	docs, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, errors.Internal("Failed to list rooms", err)
	}

	rooms := make([]*entity.Room, 0, len(docs))
	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			logger.Warn("Skipping unreadable room %s: %v", doc.Ref.ID, err)
			continue
		}
		if room.IsActive {
			rooms = append(rooms, &room)
		}
	}
	sortRoomsByCreation(rooms)
	return rooms, nil
}

func (r *firestoreRoomRepository) ListByClassIDs(ctx context.Context, classIDs []string) ([]*entity.Room, error) {
	var rooms []*entity.Room
	// "in" filters accept at most 30 values.
	for start := 0; start < len(classIDs); start += 30 {
		end := start + 30
		if end > len(classIDs) {
			end = len(classIDs)
		}
		query := r.client.Collection(roomsCollection).
			Where("roomType", "==", string(entity.RoomTypeClass)).
			Where("classId", "in", classIDs[start:end])
		chunk, err := r.queryRooms(ctx, query)
		if err != nil {
			return nil, err
		}
		for _, room := range chunk {
			if room.IsActive {
				rooms = append(rooms, room)
			}
		}
	}
	sortRoomsByCreation(rooms)
	return rooms, nil
}

func (r *firestoreRoomRepository) queryRooms(ctx context.Context, query firestore.Query) ([]*entity.Room, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var rooms []*entity.Room
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate rooms", err)
		}

		var room entity.Room
		if err := doc.DataTo(&room); err != nil {
			logger.Warn("Skipping unreadable room %s: %v", doc.Ref.ID, err)
			continue
		}
		rooms = append(rooms, &room)
	}
	sortRoomsByCreation(rooms)
	return rooms, nil
}

func sortRoomsByCreation(rooms []*entity.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
}

func (r *firestoreRoomRepository) Update(ctx context.Context, room *entity.Room) error {
	room.UpdatedAt = time.Now().UTC()

	_, err := r.roomRef(room.ID).Update(ctx, []firestore.Update{
		{Path: "name", Value: room.Name},
		{Path: "description", Value: room.Description},
		{Path: "isActive", Value: room.IsActive},
		{Path: "isPrivate", Value: room.IsPrivate},
		{Path: "updatedAt", Value: room.UpdatedAt},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Room", err)
		}
		return errors.Internal("Failed to update room", err)
	}
	return nil
}

func (r *firestoreRoomRepository) Delete(ctx context.Context, id string) error {
	bw := r.client.BulkWriter(ctx)

	markers := r.client.Collection(readMarkersCollection).Where("roomId", "==", id).Documents(ctx)
	if err := deleteAll(bw, markers); err != nil {
		bw.End()
		return errors.Internal("Failed to delete read markers", err)
	}
	for _, sub := range []string{messagesCollection, participantsCollection} {
		if err := deleteAll(bw, r.roomRef(id).Collection(sub).Documents(ctx)); err != nil {
			bw.End()
			return errors.Internal("Failed to delete room "+sub, err)
		}
	}
	if _, err := bw.Delete(r.roomRef(id)); err != nil {
		bw.End()
		return errors.Internal("Failed to delete room", err)
	}

	bw.End()
	return nil
}

func deleteAll(bw *firestore.BulkWriter, iter *firestore.DocumentIterator) error {
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := bw.Delete(doc.Ref); err != nil {
			return err
		}
	}
}

func (r *firestoreRoomRepository) AddParticipant(ctx context.Context, participant *entity.Participant) error {
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = time.Now().UTC()
	}

	ref := r.roomRef(participant.RoomID).Collection(participantsCollection).Doc(participant.UserID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if doc != nil && doc.Exists() {
			// Rejoining keeps the original joinedAt.
			return tx.Update(ref, []firestore.Update{
				{Path: "role", Value: string(participant.Role)},
				{Path: "isActive", Value: participant.IsActive},
			})
		}
		return tx.Set(ref, participant)
	})
	if err != nil {
		return errors.Internal("Failed to add participant", err)
	}
	return nil
}

func (r *firestoreRoomRepository) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	_, err := r.roomRef(roomID).Collection(participantsCollection).Doc(userID).Delete(ctx)
	if err != nil {
		return errors.Internal("Failed to remove participant", err)
	}
	return nil
}

func (r *firestoreRoomRepository) GetParticipant(ctx context.Context, roomID, userID string) (*entity.Participant, error) {
	doc, err := r.roomRef(roomID).Collection(participantsCollection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Participant", err)
		}
		return nil, errors.Internal("Failed to get participant", err)
	}

	var participant entity.Participant
	if err := doc.DataTo(&participant); err != nil {
		return nil, errors.Internal("Failed to parse participant data", err)
	}
	return &participant, nil
}

func (r *firestoreRoomRepository) ListParticipants(ctx context.Context, roomID string) ([]*entity.Participant, error) {
	iter := r.roomRef(roomID).Collection(participantsCollection).OrderBy("joinedAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var participants []*entity.Participant
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate participants", err)
		}

		var participant entity.Participant
		if err := doc.DataTo(&participant); err != nil {
			return nil, errors.Internal("Failed to parse participant data", err)
		}
		participants = append(participants, &participant)
	}
	return participants, nil
}

func (r *firestoreRoomRepository) ListRoomIDsForUser(ctx context.Context, userID string) ([]string, error) {
	iter := r.client.CollectionGroup(participantsCollection).
		Where("userId", "==", userID).
		Where("isActive", "==", true).
		Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to list user rooms", err)
		}
		ids = append(ids, doc.Ref.Parent.Parent.ID)
	}
	return ids, nil
}
