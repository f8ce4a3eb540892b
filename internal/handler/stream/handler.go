package stream

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/pipeline"
	"github.com/zhouzirui/moodmic/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	eventBuffer  = 16
)

// Event types pushed to clients.
const (
	EventSnapshot = "snapshot"
	EventStatus   = "status"
)

// ChatSource publishes session store snapshots.
type ChatSource interface {
	Snapshot() chat.Snapshot
	Subscribe(fn func(chat.Snapshot)) func()
}

// StatusSource publishes pipeline status changes.
type StatusSource interface {
	Status() pipeline.Status
	Subscribe(fn func(pipeline.Status)) func()
}

// Event is one message on the event stream.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Handler pushes store snapshots and pipeline status to the UI, over WebSocket
// or Server-Sent Events.
type Handler struct {
	chats    ChatSource
	status   StatusSource
	upgrader websocket.Upgrader
}

// New creates a new stream handler
func New(chats ChatSource, status StatusSource) *Handler {
	return &Handler{
		chats:  chats,
		status: status,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the event stream routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleWebSocket)
	r.Get("/events/sse", h.handleSSE)
}

// subscribe fans both sources into one channel. Events for a client that is not
// keeping up are dropped; the next snapshot supersedes them anyway.
func (h *Handler) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	push := func(ev Event) {
		select {
		case ch <- ev:
		default:
			log.Printf("[events] dropping %s event for slow client", ev.Type)
		}
	}

	cancelChats := h.chats.Subscribe(func(s chat.Snapshot) {
		push(newEvent(EventSnapshot, s))
	})
	cancelStatus := h.status.Subscribe(func(s pipeline.Status) {
		push(newEvent(EventStatus, s))
	})

	return ch, func() {
		cancelChats()
		cancelStatus()
	}
}

func (h *Handler) initialEvents() []Event {
	return []Event{
		newEvent(EventSnapshot, h.chats.Snapshot()),
		newEvent(EventStatus, h.status.Status()),
	}
}

func newEvent(typ string, data any) Event {
	return Event{Type: typ, Data: data, Timestamp: time.Now().Unix()}
}

// handleWebSocket upgrades the connection and streams events over it
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log.Printf("[websocket] client connected from %s", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.readLoop(conn, cancel)
	h.writeLoop(ctx, conn, events)

	log.Printf("[websocket] client disconnected from %s", r.RemoteAddr)
}

// readLoop discards client messages and cancels the connection once reading fails.
func (h *Handler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

// writeLoop is the only writer on conn, pings included.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan Event) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for _, ev := range h.initialEvents() {
		if err := h.send(conn, ev); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case ev := <-events:
			if err := h.send(conn, ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(conn *websocket.Conn, ev Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(ev); err != nil {
		log.Printf("[websocket] write %s failed: %v", ev.Type, err)
		return err
	}
	return nil
}

// handleSSE streams the same events as Server-Sent Events for clients without WebSocket.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	for _, ev := range h.initialEvents() {
		if err := utils.SendSSEEvent(w, flusher, ev.Type, ev); err != nil {
			log.Printf("[sse] %v", err)
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sse] client disconnected from %s", r.RemoteAddr)
			return
		case ev := <-events:
			if err := utils.SendSSEEvent(w, flusher, ev.Type, ev); err != nil {
				log.Printf("[sse] %v", err)
				return
			}
		}
	}
}
