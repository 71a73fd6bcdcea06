// Package hub holds the in-memory registry of live notification
// connections, one bucket of connections per authenticated user.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-events/internal/models"
	"github.com/example/ride-events/internal/observability"
)

const defaultWriteTimeout = 5 * time.Second

// Conn is the subset of a websocket connection the hub needs. It is
// satisfied by *websocket.Conn from gorilla/websocket.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub fans events out to every live connection of a target user. A user may
// hold several simultaneous connections; operations on one user's bucket are
// mutually exclusive, operations on different users proceed independently.
type Hub struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	writeTimeout time.Duration
	logger       *slog.Logger
}

type bucket struct {
	mu    sync.Mutex
	conns map[Conn]struct{}
}

func New(logger *slog.Logger, writeTimeout time.Duration) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Hub{
		buckets:      make(map[string]*bucket),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// Connect registers conn under userID's live set. The insert happens while
// the registry lock is held: releasing it between the bucket lookup and the
// insert would let a concurrent disconnect prune the bucket and strand the
// new connection in a bucket SendToUser can no longer reach.
func (h *Hub) Connect(userID string, conn Conn) {
	h.mu.Lock()
	b, ok := h.buckets[userID]
	if !ok {
		b = &bucket{conns: make(map[Conn]struct{})}
		h.buckets[userID] = b
	}
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
	h.mu.Unlock()
	observability.WSConnections.Inc()
}

// Disconnect removes exactly that connection; an unknown pair is a no-op.
// The emptied bucket is pruned so SendToUser for an offline user stays cheap.
func (h *Hub) Disconnect(userID string, conn Conn) {
	h.mu.RLock()
	b, ok := h.buckets[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.Lock()
	_, present := b.conns[conn]
	if present {
		delete(b.conns, conn)
	}
	empty := len(b.conns) == 0
	b.mu.Unlock()

	if present {
		observability.WSConnections.Dec()
	}
	if empty {
		h.prune(userID, b)
	}
}

// SendToUser writes ev to every live connection of userID. Delivery is best
// effort: a failed write closes and removes that one connection; nothing is
// reported to the caller and a user with zero connections is a no-op.
func (h *Hub) SendToUser(userID string, ev models.Event) {
	h.mu.RLock()
	b, ok := h.buckets[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	b.mu.Lock()
	var failed []Conn
	for conn := range b.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Warn("notification write failed, dropping connection",
				"user_id", userID, "event", string(ev.Type), "error", err)
			observability.NotificationSendFailuresTotal.Inc()
			failed = append(failed, conn)
			continue
		}
		observability.NotificationsSentTotal.Inc()
	}
	for _, conn := range failed {
		delete(b.conns, conn)
		_ = conn.Close()
	}
	empty := len(b.conns) == 0
	b.mu.Unlock()

	for range failed {
		observability.WSConnections.Dec()
	}
	if empty {
		h.prune(userID, b)
	}
}

// Shutdown closes every live connection and empties the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	buckets := h.buckets
	h.buckets = make(map[string]*bucket)
	h.mu.Unlock()

	for _, b := range buckets {
		b.mu.Lock()
		for conn := range b.conns {
			_ = conn.Close()
			observability.WSConnections.Dec()
		}
		b.conns = make(map[Conn]struct{})
		b.mu.Unlock()
	}
}

func (h *Hub) prune(userID string, b *bucket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.buckets[userID]; ok && cur == b {
		b.mu.Lock()
		if len(b.conns) == 0 {
			delete(h.buckets, userID)
		}
		b.mu.Unlock()
	}
}
