package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_BroadcastReachesOnlyTheRoom(t *testing.T) {
	m := NewManager()
	a := NewClient(nil, "a", "alice", "room-1")
	b := NewClient(nil, "b", "bob", "room-1")
	other := NewClient(nil, "c", "carol", "room-2")
	m.Register(a)
	m.Register(b)
	m.Register(other)

	assert.Equal(t, StateAuthenticating, NewClient(nil, "d", "dan", "room-1").State())
	assert.Equal(t, StateJoined, a.State())
	assert.Equal(t, 2, m.GroupSize("room-1"))

	require.NoError(t, m.Publish(context.Background(), "room-1", []byte("hello")))

	assert.Equal(t, []byte("hello"), <-a.send)
	assert.Equal(t, []byte("hello"), <-b.send)
	assert.Len(t, other.send, 0)
}

func TestManager_UnregisterIsIdempotent(t *testing.T) {
	m := NewManager()
	a := NewClient(nil, "a", "alice", "room-1")
	m.Register(a)

	m.Unregister(a)
	m.Unregister(a)

	assert.Equal(t, 0, m.GroupSize("room-1"))
	assert.Equal(t, StateClosed, a.State())
}

func TestManager_SlowConsumerIsDropped(t *testing.T) {
	m := NewManager()
	slow := NewClient(nil, "slow", "slow", "room-1")
	fast := NewClient(nil, "fast", "fast", "room-1")
	m.Register(slow)
	m.Register(fast)

	for i := 0; i < sendBufferSize; i++ {
		slow.send <- []byte("x")
	}

	returned := make(chan struct{})
	go func() {
		m.Broadcast("room-1", []byte("next"))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on the slow client")
	}

	assert.Equal(t, 1, m.GroupSize("room-1"))
	assert.Equal(t, StateClosed, slow.State())
	require.Eventually(t, func() bool {
		select {
		case <-slow.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("next"), <-fast.send)
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"valid", `{"message":"hi"}`, "hi", true},
		{"not json", `hello`, "", false},
		{"empty message", `{"message":""}`, "", false},
		{"whitespace", `{"message":"   "}`, "", false},
		{"missing field", `{"text":"hi"}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeInbound([]byte(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeOutbound(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	raw, err := EncodeOutbound("m1", "hello", "alice", "a", at)
	require.NoError(t, err)

	var frame map[string]string
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, map[string]string{
		"message":    "hello",
		"sender":     "alice",
		"sender_id":  "a",
		"timestamp":  "2024-05-01T08:30:00Z",
		"message_id": "m1",
	}, frame)
}

func TestRedisBus_FansOutToLocalSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := NewManager()
	a := NewClient(nil, "a", "alice", "room-9")
	m.Register(a)

	bus := NewRedisBus(client, m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	select {
	case <-bus.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	require.NoError(t, bus.Publish(ctx, "room-9", []byte(`{"message":"hi"}`)))

	select {
	case got := <-a.send:
		assert.JSONEq(t, `{"message":"hi"}`, string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}
