package websocket

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"schoolchat/pkg/logger"
)

// Publisher delivers an encoded outbound frame to every session joined to a room.
type Publisher interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
}

// Manager tracks the broadcast group of every room served by this process.
type Manager struct {
	groups  map[string]map[*Client]struct{}
	mutex   sync.RWMutex
	dropped metric.Int64Counter
}

func NewManager() *Manager {
	dropped, err := otel.Meter("schoolchat/websocket").Int64Counter("chat.broadcast.dropped",
		metric.WithDescription("Sessions dropped because their send buffer was full"))
	if err != nil {
		logger.Warn("Cannot create broadcast drop counter: %v", err)
	}
	return &Manager{
		groups:  make(map[string]map[*Client]struct{}),
		dropped: dropped,
	}
}

func (m *Manager) Register(client *Client) {
	m.mutex.Lock()
	group, ok := m.groups[client.RoomID]
	if !ok {
		group = make(map[*Client]struct{})
		m.groups[client.RoomID] = group
	}
	group[client] = struct{}{}
	m.mutex.Unlock()

	client.setState(StateJoined)
	logger.Info("Client %s joined room %s", client.UserID, client.RoomID)
}

func (m *Manager) Unregister(client *Client) {
	m.mutex.Lock()
	if group, ok := m.groups[client.RoomID]; ok {
		if _, member := group[client]; member {
			delete(group, client)
			if len(group) == 0 {
				delete(m.groups, client.RoomID)
			}
		}
	}
	m.mutex.Unlock()

	client.setState(StateClosed)
}

// GroupSize reports how many sessions are joined to a room.
func (m *Manager) GroupSize(roomID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.groups[roomID])
}

// Publish fans the payload out locally.
func (m *Manager) Publish(_ context.Context, roomID string, payload []byte) error {
	m.Broadcast(roomID, payload)
	return nil
}

// Broadcast sends payload to a snapshot of the room's group. Sessions whose
// buffer is full are dropped instead of blocking the others.
func (m *Manager) Broadcast(roomID string, payload []byte) {
	m.mutex.RLock()
	group := m.groups[roomID]
	snapshot := make([]*Client, 0, len(group))
	for client := range group {
		snapshot = append(snapshot, client)
	}
	m.mutex.RUnlock()

	for _, client := range snapshot {
		if client.enqueue(payload) {
			continue
		}
		if m.dropped != nil {
			m.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("room_id", roomID)))
		}
		logger.LogDeliveryError(roomID, client.UserID, errSendBufferFull)
		m.Unregister(client)
		// The close handshake may block on a stalled peer.
		go client.Close(CloseTryAgainLater, "send buffer full")
	}
}
