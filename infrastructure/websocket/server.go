package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"presence-relay/domain"
	rerrors "presence-relay/errors"
	"presence-relay/observability"
	"presence-relay/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const UsernameKey = "username"

// StatsProvider exposes the monitoring snapshot served on /stats.
type StatsProvider interface {
	Snapshot() observability.MonitoringStats
}

type Server struct {
	log        *slog.Logger
	hub        *Hub
	relay      services.IRelayService
	stats      StatsProvider
	upgrader   websocket.Upgrader
	bufferSize int
	// base outlives the HTTP request, so a disconnect is still queued once the handler returns.
	base context.Context
}

func NewServer(ctx context.Context, log *slog.Logger, hub *Hub, relay services.IRelayService,
	stats StatsProvider, bufferSize int) *Server {
	return &Server{
		log:   log,
		hub:   hub,
		relay: relay,
		stats: stats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		bufferSize: bufferSize,
		base:       ctx,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.ServeWS)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /stats", s.snapshot)
	return mux
}

// ServeWS upgrades the request and runs the connection until the client leaves.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.Header.Get(UsernameKey))
	if username == "" {
		username = strings.TrimSpace(r.URL.Query().Get(UsernameKey))
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "error", err)
		return
	}

	id := domain.ConnectionID(uuid.NewString())
	conn := NewConn(id, ws, s.log, s.bufferSize)
	s.hub.Register(conn)
	go conn.writePump()

	if err := s.relay.Connect(s.base, id, username); err != nil {
		s.log.Error("Unable to queue connection", "connection_id", id, "error", err)
		s.hub.Unregister(id)
		return
	}

	conn.readPump(func(f Frame) { s.onFrame(id, f) })

	s.hub.Unregister(id)
	if err := s.relay.Disconnect(s.base, id); err != nil {
		s.log.Warn("Unable to queue disconnection", "connection_id", id, "error", err)
	}
}

func (s *Server) onFrame(id domain.ConnectionID, f Frame) {
	err := s.relay.Handle(s.base, id, f.Event, f.Data)
	if err == nil {
		return
	}
	if errors.Is(err, rerrors.ErrValidation) || errors.Is(err, rerrors.ErrUnknownEvent) {
		if sendErr := s.hub.Send(id, domain.EventError, domain.ErrorPayload{Message: err.Error()}); sendErr != nil {
			s.log.Debug("Unable to report rejected frame", "connection_id", id, "error", sendErr)
		}
		return
	}
	s.log.Error("Unable to queue frame", "connection_id", id, "event", f.Event, "error", err)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
