package usecase

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	gormrepo "schoolchat/internal/adapter/repository"
	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/internal/domain/service"
	"schoolchat/internal/infrastructure/ratelimit"
	"schoolchat/internal/infrastructure/storage"
	"schoolchat/pkg/config"
)

// recordingPublisher keeps every frame published per room.
type recordingPublisher struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, roomID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = make(map[string][][]byte)
	}
	p.frames[roomID] = append(p.frames[roomID], payload)
	return nil
}

func (p *recordingPublisher) published(roomID string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames[roomID]
}

type recordingDispatcher struct {
	mu      sync.Mutex
	notices []*service.MessageNotice
}

func (d *recordingDispatcher) Dispatch(_ context.Context, notice *service.MessageNotice) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notices = append(d.notices, notice)
	return nil
}

type testEnv struct {
	rooms         repository.RoomRepository
	messages      repository.MessageRepository
	markers       repository.ReadMarkerRepository
	users         repository.UserRepository
	profiles      repository.ProfileRepository
	notifications repository.NotificationRepository

	publisher  *recordingPublisher
	dispatcher *recordingDispatcher
	blobs      *storage.LocalStore
	settings   *config.Store
	membership *MembershipUseCase
	chat       *ChatUseCase
	reads      *ReadTrackingUseCase
	notify     *NotificationUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimiter(t, ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerMinute: 6000, Burst: 1000},
		ratelimit.ActionCreateRoom:  {PerMinute: 6000, Burst: 1000},
		ratelimit.ActionUpload:      {PerMinute: 6000, Burst: 1000},
	}))
}

func newTestEnvWithLimiter(t *testing.T, limiter *ratelimit.RateLimiter) *testEnv {
	t.Helper()
	db, err := gormrepo.OpenDatabase("sqlite", filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, gormrepo.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	env := &testEnv{
		rooms:         gormrepo.NewGormRoomRepository(db),
		messages:      gormrepo.NewGormMessageRepository(db),
		markers:       gormrepo.NewGormReadMarkerRepository(db),
		users:         gormrepo.NewGormUserRepository(db),
		profiles:      gormrepo.NewGormProfileRepository(db),
		notifications: gormrepo.NewGormNotificationRepository(db),
		publisher:     &recordingPublisher{},
		dispatcher:    &recordingDispatcher{},
		blobs:         blobs,
		settings: config.NewStore(&config.Settings{
			MaxFileSizeMB:          1,
			AllowedAttachmentTypes: []string{"image/png", "text/plain"},
			NotifyOnMessage:        true,
		}),
	}
	env.membership = NewMembershipUseCase(env.rooms, env.users, env.profiles, env.messages, env.markers, limiter)
	env.notify = NewNotificationUseCase(env.notifications)
	env.chat = NewChatUseCase(env.messages, env.users, env.membership, env.publisher, blobs, env.dispatcher, env.settings, limiter)
	env.reads = NewReadTrackingUseCase(env.messages, env.markers, env.membership)
	return env
}

func (e *testEnv) user(t *testing.T, id string, role entity.UserRole, schoolID string) *entity.User {
	t.Helper()
	u := &entity.User{ID: id, Username: id, Role: role, SchoolID: schoolID, IsActive: true}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) room(t *testing.T, name string, roomType entity.RoomType, classID string, members ...string) *entity.Room {
	t.Helper()
	room := &entity.Room{Name: name, RoomType: roomType, ClassID: classID, SchoolID: "s1", IsActive: true}
	participants := make([]*entity.Participant, 0, len(members))
	for _, id := range members {
		participants = append(participants, &entity.Participant{UserID: id, Role: entity.ParticipantMember, IsActive: true})
	}
	require.NoError(t, e.rooms.Create(context.Background(), room, participants))
	return room
}

func (e *testEnv) unread(t *testing.T, userID string) int64 {
	t.Helper()
	n, err := e.reads.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	return n
}
