// Package events fans executor action updates out to websocket subscribers.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	model "github.com/babelcloud/voicepilot/pkg/agent"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

const (
	defaultBuffer = 32
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
)

// Event is one frame on a session's stream.
type Event struct {
	SessionID string              `json:"sessionId"`
	Action    model.BrowserAction `json:"action"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscription receives a session's events until cancelled or dropped.
type Subscription struct {
	C <-chan Event

	ch        chan Event
	closeOnce sync.Once
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

// Hub is an ActionObserver. Publishing never blocks: a subscriber whose
// buffer is full is dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
	log    *logger.Logger
}

func NewHub(buffer int, log *logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if log == nil {
		log = logger.New()
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer, log: log}
}

// Subscribe registers for sessionID's events. The returned func cancels the
// subscription and closes its channel; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string) (*Subscription, func()) {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub, func() {}
	}
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*Subscription]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	return sub, func() { h.remove(sessionID, sub) }
}

func (h *Hub) remove(sessionID string, sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// ActionUpdated publishes action to sessionID's subscribers.
func (h *Hub) ActionUpdated(sessionID string, action model.BrowserAction) {
	ev := Event{SessionID: sessionID, Action: action}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			h.log.Warn("Dropping slow event subscriber for session %s", sessionID)
			delete(h.subs[sessionID], sub)
			sub.close()
		}
	}
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// Close ends every subscription and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, id)
	}
}

// ServeWS upgrades the request and streams sessionID's events as JSON text
// frames until the client goes away or the subscription ends.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Error("Events [%s]: failed to upgrade connection: %v", sessionID, err)
		return
	}
	defer conn.Close()

	sub, cancel := h.Subscribe(sessionID)
	defer cancel()
	h.log.Debug("Events [%s]: subscriber connected", sessionID)

	// The read side only handles control frames and notices disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream ended"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("Events [%s]: write failed: %v", sessionID, err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			h.log.Debug("Events [%s]: subscriber disconnected", sessionID)
			return
		}
	}
}
