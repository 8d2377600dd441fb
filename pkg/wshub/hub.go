// Package wshub is the C9 WebSocket fan-out: a per-project subscriber
// registry with envelope validation and non-blocking broadcast, grounded
// on the hub/register/unregister/broadcast shape of this module's existing
// WebSocket support.
package wshub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const sendBufferSize = 32

// writeTimeout is the per-write deadline; a subscriber whose write exceeds
// it is treated as slow and evicted (spec §4.7 latency budget).
const writeTimeout = 500 * time.Millisecond

// subscriber wraps a live connection with its own send queue so one slow
// socket never blocks fan-out to the others.
type subscriber struct {
	id    string
	conn  *websocket.Conn
	send  chan Envelope
	once  sync.Once
	doneC chan struct{}
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.doneC)
		_ = s.conn.Close()
	})
}

// Hub is the process-wide registry mapping project_id to its live
// subscribers. The lock is read-mostly: broadcast takes RLock, subscribe/
// unsubscribe/evict take Lock.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]struct{}
	logger      *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		logger:      logger,
	}
}

// Subscribe registers conn under projectID and sends it a
// connection-established envelope. It blocks for the lifetime of the
// connection's write pump; call it from its own goroutine.
func (h *Hub) Subscribe(projectID string, conn *websocket.Conn) {
	sub := &subscriber{
		id:    h.newClientID(),
		conn:  conn,
		send:  make(chan Envelope, sendBufferSize),
		doneC: make(chan struct{}),
	}

	h.mu.Lock()
	if h.subscribers[projectID] == nil {
		h.subscribers[projectID] = make(map[*subscriber]struct{})
	}
	h.subscribers[projectID][sub] = struct{}{}
	h.mu.Unlock()

	payload, _ := json.Marshal(map[string]string{"clientId": sub.id})
	welcome := Envelope{Type: "connection-established", Ts: time.Now().UTC().Format(timestampLayout), ProjectID: projectID, Payload: payload}
	select {
	case sub.send <- welcome:
	default:
	}

	go h.readUntilClosed(sub)
	h.pump(projectID, sub)
}

// readUntilClosed discards inbound frames (clients send none besides
// keepalive pings) and closes sub.doneC as soon as the read fails, so a
// subscriber that goes away without any broadcast traffic is still evicted
// promptly instead of leaking until the next Broadcast.
func (h *Hub) readUntilClosed(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			sub.close()
			return
		}
	}
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// pump drains sub.send to the socket until the subscriber is evicted or
// its connection closes.
func (h *Hub) pump(projectID string, sub *subscriber) {
	defer h.unsubscribe(projectID, sub)
	for {
		select {
		case <-sub.doneC:
			return
		case env, ok := <-sub.send:
			if !ok {
				return
			}
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sub.conn.WriteJSON(env); err != nil {
				h.logger.Warn("evicting slow or broken subscriber", "project_id", projectID, "client_id", sub.id, "error", err)
				return
			}
		}
	}
}

// Unsubscribe removes conn's subscriber from every project set it belongs
// to. Call on read-loop exit.
func (h *Hub) unsubscribe(projectID string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subscribers[projectID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subscribers, projectID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Broadcast validates and delivers env to every live subscriber of
// env.ProjectID. Delivery is non-blocking: a subscriber whose buffer is
// full is evicted rather than allowed to stall the broadcaster.
func (h *Hub) Broadcast(env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers[env.ProjectID]))
	for sub := range h.subscribers[env.ProjectID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.send <- env:
		default:
			h.logger.Warn("dropping subscriber with full send buffer", "project_id", env.ProjectID, "client_id", sub.id)
			h.unsubscribe(env.ProjectID, sub)
		}
	}
	return nil
}

func (h *Hub) newClientID() string {
	return uuid.New().String()
}
