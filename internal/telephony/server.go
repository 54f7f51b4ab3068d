package telephony

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/frontdesk-ai/callcore/internal/observability"
)

// Acceptor is implemented by the session registry (C8): given an accepted
// carrier channel and the tenant/call ids carried on the URL, it starts a
// new call session run-loop.
type Acceptor interface {
	Accept(tenantID, callID string, ch Channel)
}

// Server exposes the carrier-facing HTTP/WebSocket surface plus health and
// metrics endpoints.
type Server struct {
	acceptor Acceptor
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func NewServer(acceptor Acceptor, metrics *observability.Metrics, allowAnyOrigin bool) *Server {
	return &Server{
		acceptor: acceptor,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Carrier webhooks rarely set Origin; only browsers do.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/calls/{tenantID}/{callID}", s.handleUpgrade)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	callID := strings.TrimSpace(chi.URLParam(r, "callID"))
	if tenantID == "" || callID == "" {
		http.Error(w, "tenant_id and call_id are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	s.acceptor.Accept(tenantID, callID, newWSChannel(conn))
}
