package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolchat/internal/adapter/api"
	"schoolchat/internal/adapter/api/handler"
	"schoolchat/internal/adapter/api/middleware"
	"schoolchat/internal/adapter/api/router"
	gormrepo "schoolchat/internal/adapter/repository"
	"schoolchat/internal/domain/entity"
	"schoolchat/internal/domain/repository"
	"schoolchat/internal/infrastructure/auth"
	"schoolchat/internal/infrastructure/ratelimit"
	"schoolchat/internal/infrastructure/storage"
	ws "schoolchat/internal/infrastructure/websocket"
	"schoolchat/internal/usecase"
	"schoolchat/pkg/config"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testServer struct {
	t        *testing.T
	server   *httptest.Server
	verifier *auth.JWTVerifier
	manager  *ws.Manager
	settings *config.Store
	rooms    repository.RoomRepository
	users    repository.UserRepository
	markers  repository.ReadMarkerRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gormrepo.OpenDatabase("sqlite", filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, gormrepo.Migrate(db))

	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	roomRepo := gormrepo.NewGormRoomRepository(db)
	messageRepo := gormrepo.NewGormMessageRepository(db)
	markerRepo := gormrepo.NewGormReadMarkerRepository(db)
	userRepo := gormrepo.NewGormUserRepository(db)
	profileRepo := gormrepo.NewGormProfileRepository(db)
	notificationRepo := gormrepo.NewGormNotificationRepository(db)

	settings := config.NewStore(&config.Settings{
		MaxFileSizeMB:          1,
		AllowedAttachmentTypes: []string{"image/png", "text/plain"},
		MaintenanceBypassUsers: []string{"root"},
	})
	limiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerMinute: 6000, Burst: 1000},
		ratelimit.ActionUpload:      {PerMinute: 6000, Burst: 1000},
	})
	manager := ws.NewManager()
	verifier := auth.NewHMACVerifier("test-secret", auth.NewRevocationList())

	membership := usecase.NewMembershipUseCase(roomRepo, userRepo, profileRepo, messageRepo, markerRepo, limiter)
	notifications := usecase.NewNotificationUseCase(notificationRepo)
	chat := usecase.NewChatUseCase(messageRepo, userRepo, membership, manager, blobs, nil, settings, limiter)
	reads := usecase.NewReadTrackingUseCase(messageRepo, markerRepo, membership)

	authMiddleware := middleware.NewAuthMiddleware(verifier)

	e := echo.New()
	e.Validator = api.NewValidator()
	router.Setup(e, router.Handlers{
		Room:         handler.NewRoomHandler(membership, reads),
		Chat:         handler.NewChatHandler(chat, reads),
		File:         handler.NewFileHandler(chat),
		Notification: handler.NewNotificationHandler(notifications),
		Admin:        handler.NewAdminHandler(membership, settings),
		WebSocket:    handler.NewWebSocketHandler(manager, authMiddleware, userRepo, membership, chat),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}),
	}, router.Middlewares{
		Auth:        authMiddleware,
		Admin:       middleware.NewAdminMiddleware(userRepo),
		Maintenance: middleware.NewMaintenanceMiddleware(settings, userRepo),
		RateLimit:   middleware.NewIPRateLimiter(6000, 1000),
	})

	server := httptest.NewServer(e)
	t.Cleanup(func() {
		server.Close()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return &testServer{
		t:        t,
		server:   server,
		verifier: verifier,
		manager:  manager,
		settings: settings,
		rooms:    roomRepo,
		users:    userRepo,
		markers:  markerRepo,
	}
}

func (s *testServer) user(id string, role entity.UserRole) string {
	s.t.Helper()
	require.NoError(s.t, s.users.Create(context.Background(), &entity.User{ID: id, Username: id, Role: role, SchoolID: "s1", IsActive: true}))
	token, err := s.verifier.Issue(id, time.Hour)
	require.NoError(s.t, err)
	return token
}

func (s *testServer) room(name string, members ...string) *entity.Room {
	s.t.Helper()
	room := &entity.Room{Name: name, RoomType: entity.RoomTypeGeneral, SchoolID: "s1", IsActive: true}
	participants := make([]*entity.Participant, 0, len(members))
	for _, id := range members {
		participants = append(participants, &entity.Participant{UserID: id, Role: entity.ParticipantMember, IsActive: true})
	}
	require.NoError(s.t, s.rooms.Create(context.Background(), room, participants))
	return room
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) (int, envelope) {
	s.t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, body)
	require.NoError(s.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) doJSON(method, path, token string, payload interface{}) (int, envelope) {
	s.t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(s.t, err)
		body = bytes.NewReader(raw)
	}
	return s.do(method, path, token, body, echo.MIMEApplicationJSON)
}

func (s *testServer) dial(roomID, token string) (*gorillaws.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/chat/" + roomID + "?token=" + token
	return gorillaws.DefaultDialer.Dial(url, nil)
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type messageDTO struct {
	ID      string `json:"id"`
	Seq     int64  `json:"seq"`
	Content string `json:"content"`
	Sender  struct {
		ID string `json:"id"`
	} `json:"sender"`
}

func TestAuthIsRequired(t *testing.T) {
	s := newTestServer(t)

	status, env := s.doJSON(http.MethodGet, "/v1/chat/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "AUTH_REJECTED", env.Error.Code)

	status, _ = s.doJSON(http.MethodGet, "/v1/chat/rooms", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMessagesOverREST(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice", entity.RoleTeacher)
	bob := s.user("bob", entity.RoleTeacher)
	mallory := s.user("mallory", entity.RoleParent)
	room := s.room("Lounge", "alice", "bob")

	status, env := s.doJSON(http.MethodPost, "/v1/chat/messages", alice, map[string]string{"room": room.ID, "content": "hello"})
	require.Equal(t, http.StatusCreated, status, env.Error)
	sent := decode[messageDTO](t, env.Data)
	assert.Equal(t, int64(1), sent.Seq)
	assert.Equal(t, "alice", sent.Sender.ID)

	status, env = s.doJSON(http.MethodGet, "/v1/chat/messages?room="+room.ID, bob, nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[struct {
		Items      []messageDTO `json:"items"`
		NextCursor *int64       `json:"next_cursor"`
		HasMore    bool         `json:"has_more"`
	}](t, env.Data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "hello", page.Items[0].Content)
	assert.False(t, page.HasMore)

	status, env = s.doJSON(http.MethodGet, "/v1/chat/messages/unread-count", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(1), decode[map[string]int64](t, env.Data)["unread_count"])

	status, _ = s.doJSON(http.MethodPost, "/v1/chat/messages/"+sent.ID+"/read", bob, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.doJSON(http.MethodGet, "/v1/chat/messages/unread-count?room="+room.ID, bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, decode[map[string]int64](t, env.Data)["unread_count"])

	status, env = s.doJSON(http.MethodGet, "/v1/chat/messages?room="+room.ID, mallory, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_MEMBER", env.Error.Code)

	status, env = s.doJSON(http.MethodPost, "/v1/chat/messages", mallory, map[string]string{"room": room.ID, "content": "hi"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NOT_MEMBER", env.Error.Code)

	status, env = s.doJSON(http.MethodPost, "/v1/chat/messages", alice, map[string]string{"content": "no room"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestMultipartAttachment(t *testing.T) {
	s := newTestServer(t)
	alice := s.user("alice", entity.RoleTeacher)
	bob := s.user("bob", entity.RoleTeacher)
	room := s.room("Lounge", "alice", "bob")

	image := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	require.NoError(t, form.WriteField("room", room.ID))
	require.NoError(t, form.WriteField("content", "see attached"))
	part, err := form.CreateFormFile("file", "dot.png")
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	status, env := s.do(http.MethodPost, "/v1/chat/messages", alice, &body, form.FormDataContentType())
	require.Equal(t, http.StatusCreated, status, env.Error)
	sent := decode[messageDTO](t, env.Data)

	status, env = s.doJSON(http.MethodGet, "/v1/chat/messages/"+sent.ID+"/file/info", bob, nil)
	require.Equal(t, http.StatusOK, status)
	info := decode[entity.AttachmentInfo](t, env.Data)
	assert.Equal(t, "dot.png", info.Filename)
	assert.Equal(t, "image/png", info.ContentType)

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/v1/chat/messages/"+sent.ID+"/file", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bob)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, image, got)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "dot.png")
}

func TestRoomsAndNotifications(t *testing.T) {
	s := newTestServer(t)
	teacher := s.user("teach", entity.RoleTeacher)
	student := s.user("stud", entity.RoleStudent)

	status, env := s.doJSON(http.MethodPost, "/v1/chat/rooms", student, map[string]interface{}{"name": "Mine", "room_type": "general"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = s.doJSON(http.MethodPost, "/v1/chat/rooms", teacher, map[string]interface{}{
		"name":            "Study group",
		"room_type":       "teacher_student",
		"participant_ids": []string{"stud"},
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	room := decode[entity.Room](t, env.Data)

	status, env = s.doJSON(http.MethodGet, "/v1/chat/rooms", student, nil)
	require.Equal(t, http.StatusOK, status)
	rooms := decode[[]map[string]interface{}](t, env.Data)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0]["id"])

	status, env = s.doJSON(http.MethodGet, "/v1/chat/rooms/"+room.ID+"/participants", student, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]interface{}](t, env.Data), 2)

	status, env = s.doJSON(http.MethodPost, "/v1/chat/rooms/"+room.ID+"/read", student, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, decode[map[string]int64](t, env.Data)["marked"])

	status, env = s.doJSON(http.MethodGet, "/v1/chat/notifications/unread", student, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Zero(t, decode[map[string]interface{}](t, env.Data)["total"])

	status, env = s.doJSON(http.MethodPost, "/v1/chat/notifications/missing/read", student, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestAdminProvisioning(t *testing.T) {
	s := newTestServer(t)
	root := s.user("root", entity.RoleSuperAdmin)
	admin := s.user("admin1", entity.RoleSchoolAdmin)
	s.user("t1", entity.RoleTeacher)

	status, env := s.doJSON(http.MethodPost, "/v1/chat/admin/schools/s1/provision-rooms", admin, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = s.doJSON(http.MethodPost, "/v1/chat/admin/schools/s1/provision-rooms", root, nil)
	require.Equal(t, http.StatusOK, status, env.Error)
	result := decode[struct {
		Created []entity.Room `json:"created"`
		Skipped int           `json:"skipped"`
	}](t, env.Data)
	// system + admin-teacher + general staff
	assert.Len(t, result.Created, 3)
}

func TestMaintenanceMode(t *testing.T) {
	s := newTestServer(t)
	root := s.user("root", entity.RoleSuperAdmin)
	teacher := s.user("teach", entity.RoleTeacher)
	s.settings.Set(&config.Settings{MaintenanceMode: true, MaintenanceBypassUsers: []string{"root"}})

	status, env := s.doJSON(http.MethodGet, "/v1/chat/rooms", teacher, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)

	status, _ = s.doJSON(http.MethodGet, "/v1/chat/rooms", root, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
