package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/service"
	"schoolchat/internal/infrastructure/ratelimit"
	ws "schoolchat/internal/infrastructure/websocket"
	"schoolchat/pkg/errors"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSendMessage_StoresAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	resp, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, int64(1), resp.Seq)
	assert.Equal(t, entity.MessageTypeText, resp.MessageType)
	assert.Equal(t, "alice", resp.Sender.Username)

	frames := env.publisher.published(room.ID)
	require.Len(t, frames, 1)
	var frame ws.OutboundFrame
	require.NoError(t, json.Unmarshal(frames[0], &frame))
	assert.Equal(t, "hello", frame.Message)
	assert.Equal(t, "alice", frame.Sender)
	assert.Equal(t, "alice", frame.SenderID)
	assert.Equal(t, resp.ID, frame.MessageID)

	markers, err := env.markers.ListByMessage(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "bob", markers[0].UserID)
	assert.False(t, markers[0].IsRead())

	assert.Equal(t, int64(1), env.unread(t, "bob"))
	assert.Zero(t, env.unread(t, "alice"))

	// bob reads it; a second read changes nothing.
	updated, err := env.reads.MarkRead(ctx, "bob", resp.ID)
	require.NoError(t, err)
	assert.True(t, updated)
	updated, err = env.reads.MarkRead(ctx, "bob", resp.ID)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Zero(t, env.unread(t, "bob"))

	require.Len(t, env.dispatcher.notices, 1)
	assert.Equal(t, []string{"bob"}, env.dispatcher.notices[0].RecipientIDs)
	assert.Equal(t, "hello", env.dispatcher.notices[0].Preview)
}

func TestSendMessage_SequenceIsPerRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	first := env.room(t, "First", entity.RoomTypeGeneral, "", "alice")
	second := env.room(t, "Second", entity.RoomTypeGeneral, "", "alice")

	for i := 1; i <= 3; i++ {
		resp, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: first.ID, Content: "x"})
		require.NoError(t, err)
		assert.Equal(t, int64(i), resp.Seq)
	}
	resp, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: second.ID, Content: "y"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Seq)
}

func TestSendMessage_LateJoinerHasNoMarker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	env.user(t, "carol", entity.RoleSchoolAdmin, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	before, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "before"})
	require.NoError(t, err)

	_, err = env.membership.Join(ctx, "carol", room.ID)
	require.NoError(t, err)

	_, err = env.markers.Get(ctx, before.ID, "carol")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	updated, err := env.reads.MarkRead(ctx, "carol", before.ID)
	require.NoError(t, err)
	assert.False(t, updated)
	_, err = env.reads.IsRead(ctx, "carol", before.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Zero(t, env.unread(t, "carol"))

	after, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "after"})
	require.NoError(t, err)
	marker, err := env.markers.Get(ctx, after.ID, "carol")
	require.NoError(t, err)
	assert.False(t, marker.IsRead())
	assert.Equal(t, int64(1), env.unread(t, "carol"))
}

func TestSendMessage_NonMemberIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "mallory", entity.RoleParent, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")

	_, err := env.chat.SendMessage(ctx, "mallory", SendMessageInput{RoomID: room.ID, Content: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeNotMember))

	stored, err := env.messages.ListByRoom(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Empty(t, env.publisher.published(room.ID))
}

func TestSendMessage_ClassRoomMembershipComesFromProfiles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "teach", entity.RoleTeacher, "s1")
	env.user(t, "stud", entity.RoleStudent, "s1")
	env.user(t, "other", entity.RoleStudent, "s1")
	require.NoError(t, env.profiles.Save(ctx, &entity.Profile{UserID: "teach", Kind: entity.ProfileTeacher, ClassIDs: []string{"7a"}}))
	require.NoError(t, env.profiles.Save(ctx, &entity.Profile{UserID: "stud", Kind: entity.ProfileStudent, ClassIDs: []string{"7a"}}))
	room := env.room(t, "Class 7A", entity.RoomTypeClass, "7a")

	resp, err := env.chat.SendMessage(ctx, "teach", SendMessageInput{RoomID: room.ID, Content: "homework"})
	require.NoError(t, err)

	markers, err := env.markers.ListByMessage(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, "stud", markers[0].UserID)

	_, err = env.chat.SendMessage(ctx, "other", SendMessageInput{RoomID: room.ID, Content: "me too"})
	assert.True(t, errors.Is(err, errors.CodeNotMember))
}

func TestSendMessage_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")
	other := env.room(t, "Elsewhere", entity.RoomTypeGeneral, "", "alice")

	elsewhere, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: other.ID, Content: "there"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		input SendMessageInput
		code  string
	}{
		{"blank content", SendMessageInput{RoomID: room.ID, Content: "   "}, errors.CodeValidation},
		{"unknown type", SendMessageInput{RoomID: room.ID, Content: "x", MessageType: "poll"}, errors.CodeValidation},
		{"reply across rooms", SendMessageInput{RoomID: room.ID, Content: "x", ReplyToID: elsewhere.ID}, errors.CodeValidation},
		{"reply to nothing", SendMessageInput{RoomID: room.ID, Content: "x", ReplyToID: "missing"}, errors.CodeValidation},
		{"unknown room", SendMessageInput{RoomID: "missing", Content: "x"}, errors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.chat.SendMessage(ctx, "alice", tt.input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}

	reply, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: other.ID, Content: "reply", ReplyToID: elsewhere.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyToID)
	assert.Equal(t, elsewhere.ID, *reply.ReplyToID)
}

func TestSendMessage_InactiveRoomIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")
	room.IsActive = false
	require.NoError(t, env.rooms.Update(ctx, room))

	_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "hi"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestSendMessage_RateLimited(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerMinute: 1, Burst: 1},
	})
	env := newTestEnvWithLimiter(t, limiter)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")

	_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "one"})
	require.NoError(t, err)
	_, err = env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "two"})
	assert.True(t, errors.Is(err, errors.CodeTooManyRequests))
}

func TestSendMessage_InvalidRequestsKeepSendBudget(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerMinute: 1, Burst: 1},
	})
	env := newTestEnvWithLimiter(t, limiter)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")

	for i := 0; i < 3; i++ {
		_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "   "})
		assert.True(t, errors.Is(err, errors.CodeValidation))
	}
	_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: "missing", Content: "hi"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "hi"})
	require.NoError(t, err)
}

// gatedBlobStore holds Put until release is closed.
type gatedBlobStore struct {
	service.BlobStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBlobStore) Put(ctx context.Context, file io.Reader, contentType, folder, filename string) (string, error) {
	close(g.entered)
	<-g.release
	return g.BlobStore.Put(ctx, file, contentType, folder, filename)
}

func TestSendMessage_UploadDoesNotBlockRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	gated := &gatedBlobStore{BlobStore: env.blobs, entered: make(chan struct{}), release: make(chan struct{})}
	chat := NewChatUseCase(env.messages, env.users, env.membership, env.publisher, gated, nil, env.settings, nil)

	image := append(append([]byte{}, pngHeader...), make([]byte, 64)...)
	uploaded := make(chan *MessageResponse, 1)
	failed := make(chan error, 1)
	go func() {
		resp, err := chat.SendMessage(ctx, "alice", SendMessageInput{
			RoomID:     room.ID,
			Attachment: &AttachmentUpload{Reader: bytes.NewReader(image), Filename: "dot.png"},
		})
		if err != nil {
			failed <- err
			return
		}
		uploaded <- resp
	}()
	<-gated.entered

	done := make(chan *MessageResponse, 1)
	go func() {
		resp, err := chat.SendMessage(ctx, "bob", SendMessageInput{RoomID: room.ID, Content: "meanwhile"})
		if err == nil {
			done <- resp
		}
	}()
	var text *MessageResponse
	select {
	case text = <-done:
	case <-time.After(5 * time.Second):
		close(gated.release)
		t.Fatal("text message waited for the upload")
	}
	close(gated.release)

	select {
	case resp := <-uploaded:
		assert.Equal(t, int64(1), text.Seq)
		assert.Equal(t, int64(2), resp.Seq)
	case err := <-failed:
		t.Fatalf("upload failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("upload never finished")
	}
}

func TestSendMessage_Attachments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	image := append(append([]byte{}, pngHeader...), make([]byte, 128)...)
	resp, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{
		RoomID:     room.ID,
		Attachment: &AttachmentUpload{Reader: bytes.NewReader(image), Filename: "dot.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.MessageTypeImage, resp.MessageType)
	assert.Equal(t, "image/png", resp.AttachmentType)
	assert.Equal(t, int64(len(image)), resp.AttachmentSize)

	rc, info, err := env.chat.OpenAttachment(ctx, "bob", resp.ID)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, image, got)
	assert.Equal(t, "dot.png", info.Filename)

	t.Run("disallowed type", func(t *testing.T) {
		archive := append([]byte("PK\x03\x04"), make([]byte, 64)...)
		_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{
			RoomID:     room.ID,
			Attachment: &AttachmentUpload{Reader: bytes.NewReader(archive), Filename: "a.zip"},
		})
		assert.True(t, errors.Is(err, errors.CodeValidation))
	})

	t.Run("too large", func(t *testing.T) {
		big := append(append([]byte{}, pngHeader...), make([]byte, 1024*1024)...)
		_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{
			RoomID:     room.ID,
			Attachment: &AttachmentUpload{Reader: bytes.NewReader(big), Filename: "big.png"},
		})
		assert.True(t, errors.Is(err, errors.CodeValidation))
	})

	// Only the first upload was stored.
	stored, err := env.messages.ListByRoom(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestListByRoom_PagesBySequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "eve", entity.RoleParent, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")

	for i := 0; i < 5; i++ {
		_, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: strings.Repeat("m", i+1)})
		require.NoError(t, err)
	}

	page, err := env.chat.ListByRoom(ctx, "alice", room.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, int64(2), *page.NextCursor)
	assert.Equal(t, "alice", page.Items[0].Sender.ID)

	page, err = env.chat.ListByRoom(ctx, "alice", room.ID, *page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].Seq)

	page, err = env.chat.ListByRoom(ctx, "alice", room.ID, 4, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.NextCursor)

	_, err = env.chat.ListByRoom(ctx, "eve", room.ID, 0, 2)
	assert.True(t, errors.Is(err, errors.CodeNotMember))
}

func TestEditAndDeleteMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "bob", entity.RoleTeacher, "s1")
	env.user(t, "head", entity.RolePrincipal, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice", "bob")

	msg, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{RoomID: room.ID, Content: "draft"})
	require.NoError(t, err)

	_, err = env.chat.EditMessage(ctx, "bob", msg.ID, "hijack")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	edited, err := env.chat.EditMessage(ctx, "alice", msg.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.EditedAt)

	err = env.chat.DeleteMessage(ctx, "bob", msg.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	require.NoError(t, env.chat.DeleteMessage(ctx, "head", msg.ID))
	require.NoError(t, env.chat.DeleteMessage(ctx, "head", msg.ID))

	got, err := env.chat.GetMessage(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Empty(t, got.Content)

	_, err = env.chat.EditMessage(ctx, "alice", msg.ID, "again")
	assert.True(t, errors.Is(err, errors.CodeBadRequest))
}

func TestDeleteMessage_ModeratorAndAttachment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", entity.RoleTeacher, "s1")
	env.user(t, "mod", entity.RoleTeacher, "s1")
	room := env.room(t, "Lounge", entity.RoomTypeGeneral, "", "alice")
	require.NoError(t, env.rooms.AddParticipant(ctx, &entity.Participant{RoomID: room.ID, UserID: "mod", Role: entity.ParticipantModerator, IsActive: true}))

	image := append(append([]byte{}, pngHeader...), make([]byte, 32)...)
	msg, err := env.chat.SendMessage(ctx, "alice", SendMessageInput{
		RoomID:     room.ID,
		Content:    "look",
		Attachment: &AttachmentUpload{Reader: bytes.NewReader(image), Filename: "x.png"},
	})
	require.NoError(t, err)
	key := msg.Attachment

	require.NoError(t, env.chat.RemoveAttachment(ctx, "mod", msg.ID))
	_, err = env.blobs.Open(ctx, key)
	assert.Error(t, err)

	_, err = env.chat.AttachmentInfo(ctx, "alice", msg.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	require.NoError(t, env.chat.DeleteMessage(ctx, "mod", msg.ID))
}
