package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"postforge/jobs"
	"postforge/logging"
)

// Event types sent on the events stream.
const (
	EventJobUpdate = "job_update"
	EventSnapshot  = "snapshot"
)

// Event is the envelope for every stream message.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      jobs.Job  `json:"data"`
}

// HubConfig tunes connection keep-alive.
type HubConfig struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
}

// DefaultHubConfig returns the defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		SendBuffer:   64,
	}
}

type subscriber struct {
	jobID string
	send  chan []byte
	conn  *websocket.Conn
	once  sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Hub streams job snapshots to websocket subscribers. Publish matches the
// jobs.WithListener signature. Safe for concurrent use.
type Hub struct {
	cfg      HubConfig
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewHub creates a Hub. Zero config fields take their defaults.
func NewHub(cfg HubConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	def := DefaultHubConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.Named("events"),
		subs:   make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Publish fans job out to every subscriber watching it. A subscriber whose
// buffer is full is disconnected rather than blocking the job worker.
func (h *Hub) Publish(job jobs.Job) {
	data, err := json.Marshal(Event{Type: EventJobUpdate, Timestamp: time.Now().UTC(), Data: job})
	if err != nil {
		h.logger.Warn("failed to encode event", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for sub := range h.subs {
		if sub.jobID != "" && sub.jobID != job.ID {
			continue
		}
		select {
		case sub.send <- data:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.logger.Warn("subscriber too slow, disconnecting", zap.String("remote", sub.conn.RemoteAddr().String()))
		h.remove(sub)
	}
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close(context.Context) error {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}

// serve upgrades the request. When jobID is set the current snapshot is
// sent first and only that job's updates follow.
func (h *Hub) serve(w http.ResponseWriter, r *http.Request, jobID string, initial *jobs.Job) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	sub := &subscriber{jobID: jobID, send: make(chan []byte, h.cfg.SendBuffer), conn: conn}
	if initial != nil {
		if data, err := json.Marshal(Event{Type: EventSnapshot, Timestamp: time.Now().UTC(), Data: *initial}); err == nil {
			sub.send <- data
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		conn.Close()
		return
	}
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("subscriber connected", zap.String("job_id", jobID), zap.Int("subscribers", count))

	go h.writePump(sub)
	h.readPump(sub)
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

// readPump discards client messages and keeps the read deadline fresh on
// pongs. It returns when the client goes away.
func (h *Hub) readPump(sub *subscriber) {
	defer h.remove(sub)
	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
	}
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
