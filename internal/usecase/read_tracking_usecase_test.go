package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolchat/internal/domain/entity"
	"schoolchat/pkg/errors"
)

func TestMarkUnreadForOthers_SkipsLateJoiners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	env.user(t, "carol", entity.RoleSchoolAdmin, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	// Appended without markers, so the repair below has work to do.
	message := &entity.Message{RoomID: room.ID, SenderID: "alice", Content: "hello", MessageType: entity.MessageTypeText}
	require.NoError(t, env.messages.Append(ctx, message, nil))

	_, err := env.membership.Join(ctx, "carol", room.ID)
	require.NoError(t, err)

	created, err := env.reads.MarkUnreadForOthers(ctx, message.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	_, err = env.markers.Get(ctx, message.ID, "bob")
	assert.NoError(t, err)
	_, err = env.markers.Get(ctx, message.ID, "carol")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Zero(t, env.unread(t, "carol"))
	assert.Equal(t, int64(1), env.unread(t, "bob"))

	created, err = env.reads.MarkUnreadForOthers(ctx, message.ID)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestMarkUnreadForOthers_AfterSendCreatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	env.user(t, "carol", entity.RoleSchoolAdmin, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	sent, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "hello"})
	require.NoError(t, err)
	_, err = env.membership.Join(ctx, "carol", room.ID)
	require.NoError(t, err)

	created, err := env.reads.MarkUnreadForOthers(ctx, sent.ID)
	require.NoError(t, err)
	assert.Zero(t, created)

	markers, err := env.markers.ListByMessage(ctx, sent.ID)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "bob", markers[0].UserID)
	assert.Zero(t, env.unread(t, "carol"))
}

func TestIsRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	env.user(t, "mallory", entity.RoleParent, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	sent, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "hello"})
	require.NoError(t, err)

	read, err := env.reads.IsRead(ctx, "bob", sent.ID)
	require.NoError(t, err)
	assert.False(t, read)

	_, err = env.reads.MarkRead(ctx, "bob", sent.ID)
	require.NoError(t, err)
	read, err = env.reads.IsRead(ctx, "bob", sent.ID)
	require.NoError(t, err)
	assert.True(t, read)

	t.Run("sender has no marker", func(t *testing.T) {
		_, err := env.reads.IsRead(ctx, "alice", sent.ID)
		assert.True(t, errors.Is(err, errors.CodeNotFound))
	})

	t.Run("non-member is rejected", func(t *testing.T) {
		_, err := env.reads.IsRead(ctx, "mallory", sent.ID)
		assert.True(t, errors.Is(err, errors.CodeNotMember))
	})
}
