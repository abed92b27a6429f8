package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/pkg/errors"
)

type firestoreReadMarkerRepository struct {
	client *firestore.Client
}

func NewFirestoreReadMarkerRepository(client *firestore.Client) repository.ReadMarkerRepository {
	return &firestoreReadMarkerRepository{
		client: client,
	}
}

// Marker documents are keyed by message and user so a pair can exist only once.
func markerRef(client *firestore.Client, messageID, userID string) *firestore.DocumentRef {
	return client.Collection(readMarkersCollection).Doc(messageID + "_" + userID)
}

func (r *firestoreReadMarkerRepository) CreateUnread(ctx context.Context, messageID, roomID string, userIDs []string) (int, error) {
	now := time.Now().UTC()
	created := 0
	for _, userID := range userIDs {
		marker := &entity.ReadMarker{
			MessageID: messageID,
			UserID:    userID,
			RoomID:    roomID,
			CreatedAt: now,
		}
		_, err := markerRef(r.client, messageID, userID).Create(ctx, marker)
		if err != nil {
			if status.Code(err) == codes.AlreadyExists {
				continue
			}
			return created, errors.Internal("Failed to create read marker", err)
		}
		created++
	}
	return created, nil
}

func (r *firestoreReadMarkerRepository) MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	ref := markerRef(r.client, messageID, userID)
	updated := false
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updated = false
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}
		var marker entity.ReadMarker
		if err := doc.DataTo(&marker); err != nil {
			return err
		}
		if marker.IsRead() {
			return nil
		}
		updated = true
		return tx.Update(ref, []firestore.Update{{Path: "readAt", Value: at.UTC()}})
	})
	if err != nil {
		return false, errors.Internal("Failed to mark message as read", err)
	}
	return updated, nil
}

func (r *firestoreReadMarkerRepository) MarkRoomRead(ctx context.Context, roomID, userID string, at time.Time) (int64, error) {
	iter := r.client.Collection(readMarkersCollection).
		Where("userId", "==", userID).
		Where("roomId", "==", roomID).
		Where("readAt", "==", nil).
		Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, errors.Internal("Failed to list unread markers", err)
		}
		job, err := bw.Update(doc.Ref, []firestore.Update{{Path: "readAt", Value: at.UTC()}})
		if err != nil {
			bw.End()
			return 0, errors.Internal("Failed to mark room as read", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var marked int64
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return marked, errors.Internal("Failed to mark room as read", err)
		}
		marked++
	}
	return marked, nil
}

func (r *firestoreReadMarkerRepository) Get(ctx context.Context, messageID, userID string) (*entity.ReadMarker, error) {
	doc, err := markerRef(r.client, messageID, userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Read marker", err)
		}
		return nil, errors.Internal("Failed to get read marker", err)
	}

	var marker entity.ReadMarker
	if err := doc.DataTo(&marker); err != nil {
		return nil, errors.Internal("Failed to parse read marker", err)
	}
	return &marker, nil
}

func (r *firestoreReadMarkerRepository) ListByMessage(ctx context.Context, messageID string) ([]*entity.ReadMarker, error) {
	iter := r.client.Collection(readMarkersCollection).
		Where("messageId", "==", messageID).
		OrderBy("userId", firestore.Asc).
		Documents(ctx)
	return collectMarkers(iter)
}

func (r *firestoreReadMarkerRepository) unread(ctx context.Context, userID string) ([]*entity.ReadMarker, error) {
	iter := r.client.Collection(readMarkersCollection).
		Where("userId", "==", userID).
		Where("readAt", "==", nil).
		Documents(ctx)
	return collectMarkers(iter)
}

func (r *firestoreReadMarkerRepository) CountUnread(ctx context.Context, userID string, roomIDs []string) (int64, error) {
	counts, err := r.CountUnreadByRoom(ctx, userID, roomIDs)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (r *firestoreReadMarkerRepository) CountUnreadByRoom(ctx context.Context, userID string, roomIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return counts, nil
	}

	wanted := make(map[string]bool, len(roomIDs))
	for _, id := range roomIDs {
		wanted[id] = true
	}

	markers, err := r.unread(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range markers {
		if wanted[m.RoomID] {
			counts[m.RoomID]++
		}
	}
	return counts, nil
}

func collectMarkers(iter *firestore.DocumentIterator) ([]*entity.ReadMarker, error) {
	defer iter.Stop()

	var markers []*entity.ReadMarker
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate read markers", err)
		}

		var marker entity.ReadMarker
		if err := doc.DataTo(&marker); err != nil {
			return nil, errors.Internal("Failed to parse read marker", err)
		}
		markers = append(markers, &marker)
	}
	return markers, nil
}
