package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/observability"
	"github.com/voxbridge/voxbridge/internal/protocol"
	"github.com/voxbridge/voxbridge/internal/relay"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/store"
)

type Server struct {
	cfg      config.Config
	relay    *relay.Relay
	live     *session.Manager
	users    store.UserStore
	admin    *AdminState
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, rly *relay.Relay, live *session.Manager, users store.UserStore, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		relay:   rly,
		live:    live,
		users:   users,
		admin:   NewAdminState(cfg.DefaultVoice),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is applied after the upgrade so the client sees
			// a proper policy-violation close instead of a bare 403.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/ws", s.handleVoiceWS)

	r.Get("/v1/sessions/live", s.handleLiveSessions)
	r.Get("/v1/users/{phone}", s.handleGetUser)

	r.Get("/v1/admin/settings", s.handleGetSettings)
	r.Put("/v1/admin/settings", s.handlePutSettings)
	r.Get("/v1/admin/prompts", s.handleListPrompts)
	r.Post("/v1/admin/prompts", s.handleCreatePrompt)
	r.Post("/v1/admin/prompts/{id}/activate", s.handleActivatePrompt)
	r.Get("/v1/admin/knowledge", s.handleListKnowledge)
	r.Post("/v1/admin/knowledge", s.handleAddKnowledge)
	r.Delete("/v1/admin/knowledge/{id}", s.handleDeleteKnowledge)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.live.ActiveCount(),
	})
}

// handleVoiceWS runs one conversation: origin policy first, then the init /
// audio read loop against a fresh relay connection. Teardown is unconditional
// on exit, covering normal hangup, remote close, and transport errors alike.
func (s *Server) handleVoiceWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	tr := newWSTransport(conn, s.cfg.OutboundQueueSize)
	defer tr.shutdown()

	if origin := r.Header.Get("Origin"); !s.cfg.OriginAllowed(origin) {
		log.Printf("httpapi: blocked ws connection from origin %q", origin)
		tr.Close(protocol.ClosePolicyViolation, "origin not allowed")
		return
	}

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	// Store bookkeeping in teardown must finish even though the client is
	// gone, so the relay runs against a background context.
	ctx := context.Background()
	relayConn := s.relay.NewConn(tr)
	defer relayConn.Teardown(ctx)

	conn.SetReadLimit(2 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if t := inboundType(data); t != "" {
			s.metrics.WSMessages.WithLabelValues("inbound", t).Inc()
		}
		relayConn.HandleRaw(r.Context(), data)
	}
}

func inboundType(raw []byte) string {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return string(env.Type)
}

// wsTransport adapts one gorilla connection to the relay's Transport: a
// single writer goroutine drains a bounded queue so upstream callbacks and
// the read loop can both send without interleaving writes.
type wsTransport struct {
	conn       *websocket.Conn
	outbound   chan any
	done       chan struct{}
	writerDone chan struct{}
	once       sync.Once
}

func newWSTransport(conn *websocket.Conn, queueSize int) *wsTransport {
	if queueSize <= 0 {
		queueSize = 256
	}
	t := &wsTransport{
		conn:       conn,
		outbound:   make(chan any, queueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go t.writeLoop()
	return t
}

// closeRequest travels through the outbound queue so every envelope enqueued
// before it, the error message explaining a rejection in particular, is
// written before the close frame.
type closeRequest struct {
	code   int
	reason string
}

func (t *wsTransport) writeLoop() {
	defer close(t.writerDone)
	for {
		select {
		case <-t.done:
			return
		case msg := <-t.outbound:
			if req, ok := msg.(closeRequest); ok {
				t.writeClose(req.code, req.reason)
				return
			}
			_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := t.conn.WriteJSON(msg); err != nil {
				t.shutdown()
				return
			}
		}
	}
}

// Send enqueues without blocking; a saturated queue drops the message rather
// than stalling the upstream read pump.
func (t *wsTransport) Send(msg any) {
	select {
	case <-t.done:
	case t.outbound <- msg:
	default:
		log.Printf("httpapi: outbound queue full, dropping %T", msg)
	}
}

func (t *wsTransport) Close(code int, reason string) {
	select {
	case <-t.done:
	case t.outbound <- closeRequest{code: code, reason: reason}:
		// Wait for the flush so a caller that tears the connection down
		// right after Close cannot race the queued envelopes. Bounded by
		// the write deadlines.
		<-t.writerDone
	default:
		// Saturated queue: close without flushing.
		t.writeClose(code, reason)
	}
}

func (t *wsTransport) writeClose(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	t.shutdown()
}

func (t *wsTransport) shutdown() {
	t.once.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
