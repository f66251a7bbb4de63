package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

// ProgressHub fans progress updates out to websocket subscribers.
//
// Publishing never blocks: a subscriber whose buffer is full misses the update.
type ProgressHub struct {
	mu       sync.Mutex
	subs     map[chan tasks.ProgressUpdate]struct{}
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewProgressHub creates an empty hub.
func NewProgressHub(logger *log.Logger) *ProgressHub {
	return &ProgressHub{
		subs: make(map[chan tasks.ProgressUpdate]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *ProgressHub) Routes() []string {
	return []string{"GET /api/progress"}
}

// Subscribe registers a new subscriber. The returned function unsubscribes and closes the channel.
func (h *ProgressHub) Subscribe() (<-chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers u to every subscriber with room in its buffer.
func (h *ProgressHub) Publish(u tasks.ProgressUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Pump publishes everything received on progress until it is closed.
func (h *ProgressHub) Pump(progress <-chan tasks.ProgressUpdate) {
	for u := range progress {
		h.Publish(u)
	}
}

// ServeHTTP upgrades the request to a websocket and streams progress updates as JSON text messages.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	updates, unsubscribe := h.Subscribe()
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("progress subscriber disconnected", "error", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(u); err != nil {
				h.logger.Debug("progress write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
