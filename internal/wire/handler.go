package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/mobi/internal/fields"
	"github.com/matthewbaird/mobi/internal/listing"
	"github.com/matthewbaird/mobi/internal/metrics"
	"github.com/matthewbaird/mobi/internal/session"
	"github.com/matthewbaird/mobi/internal/types"
)

// DefaultQueueSize is how many state messages may wait for a slow client.
const DefaultQueueSize = 16

// Handler manages WebSocket connections bound to one listing session.
type Handler struct {
	sessions       *session.Manager
	metrics        *metrics.Metrics
	queueSize      int
	originPatterns []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetrics records connection counts and dropped states in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithQueueSize bounds the per-connection state queue.
func WithQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithOriginPatterns sets the origins allowed to connect.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// NewHandler creates a WebSocket handler over sessions.
func NewHandler(sessions *session.Manager, opts ...Option) *Handler {
	h := &Handler{
		sessions:       sessions,
		queueSize:      DefaultQueueSize,
		originPatterns: []string{"*"},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades to WebSocket and runs the message loop for the session
// named by the "id" URL parameter. The first message is always the current
// state; every later store mutation pushes another one.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Get(chi.URLParam(r, "id"))
	if sess == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "session not found", "code": "NOT_FOUND"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		zap.L().Warn("wire: websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	h.metrics.WSOpened()
	defer h.metrics.WSClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := newStateQueue(h.queueSize, h.metrics.WSDropped)
	unsubscribe := sess.Store.Subscribe(func(snap listing.Snapshot) {
		queue.push(NewStateData(snap))
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.pushStates(ctx, conn, queue)
	}()
	defer wg.Wait()
	defer cancel()

	log := zap.L().With(zap.String("session_id", sess.ID))
	log.Debug("wire: client connected")

	// Message loop
	for {
		var msg ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				log.Debug("wire: connection closed", zap.Int("status", int(status)))
			}
			return
		}
		sess.Touch()

		switch msg.Type {
		case TypeSetField:
			h.handleFieldValue(ctx, conn, sess, msg, sess.Store.SetFieldValue)
		case TypeInitField:
			h.handleFieldValue(ctx, conn, sess, msg, sess.Store.InitField)
		case TypeAccept:
			h.handleAccept(ctx, conn, sess, msg)
		case TypePing:
			h.send(ctx, conn, ServerMessage{Type: TypePong, RequestID: msg.ID})
		default:
			h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
		}
	}
}

func (h *Handler) pushStates(ctx context.Context, conn *websocket.Conn, queue *stateQueue) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-queue.ready:
			for _, state := range queue.drain() {
				if err := wsjson.Write(ctx, conn, ServerMessage{Type: TypeState, Data: state}); err != nil {
					return
				}
			}
		}
	}
}

func (h *Handler) handleFieldValue(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage, apply func(string, types.Value) uint64) {
	var data FieldValueData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.ID == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "expected {\"id\": string, \"value\": primitive}")
		return
	}

	desc, ok := sess.Descriptor(data.ID)
	if !ok {
		desc = types.FieldDescriptor{ID: data.ID}
	}
	v, err := fields.ParseFor(desc, data.Value)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_value", err.Error())
		return
	}

	version := apply(data.ID, v)
	h.send(ctx, conn, ServerMessage{Type: TypeAck, RequestID: msg.ID, Data: AckData{Version: version}})
}

func (h *Handler) handleAccept(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	var data FieldData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.ID == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "expected {\"id\": string}")
		return
	}
	version, ok := sess.Store.AcceptSuggestion(data.ID)
	if !ok {
		h.sendError(ctx, conn, msg.ID, "nothing_to_accept", "no pending suggestion for "+data.ID)
		return
	}
	h.send(ctx, conn, ServerMessage{Type: TypeAck, RequestID: msg.ID, Data: AckData{Version: version}})
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		zap.L().Debug("wire: write error", zap.Error(err))
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      TypeError,
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
