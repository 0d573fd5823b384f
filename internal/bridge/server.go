// Package bridge serves the websocket protocol between the host shell and a
// storefront session, plus the health and metrics endpoints.
package bridge

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/R3E-Network/miniapp_storefront/internal/config"
	"github.com/R3E-Network/miniapp_storefront/internal/metrics"
	"github.com/R3E-Network/miniapp_storefront/internal/middleware"
	"github.com/R3E-Network/miniapp_storefront/internal/notify"
	"github.com/R3E-Network/miniapp_storefront/internal/session"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

// Config tunes the bridge listener and the sessions it creates.
type Config struct {
	AllowedOrigins []string
	ConnectRate    float64
	ConnectBurst   int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64

	NotificationTTL  time.Duration
	BuyerEmailDomain string
	DefaultCurrency  string
	Messages         config.Messages
}

func (c *Config) applyDefaults() {
	if c.ConnectRate <= 0 {
		c.ConnectRate = 5
	}
	if c.ConnectBurst <= 0 {
		c.ConnectBurst = 10
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 << 10
	}
	if c.NotificationTTL == 0 {
		c.NotificationTTL = notify.DefaultTTL
	}
	if c.Messages == (config.Messages{}) {
		c.Messages = config.DefaultMessages()
	}
}

// Server accepts host connections and runs one session per connection.
type Server struct {
	cfg      Config
	catalog  session.Catalog
	log      *logger.Logger
	cors     *middleware.CORS
	limiter  *middleware.RateLimiter
	upgrader websocket.Upgrader
	stop     chan struct{}
	stopOnce sync.Once

	mu    sync.Mutex
	conns map[*hostConn]struct{}
}

// NewServer creates a bridge server backed by catalog.
func NewServer(cfg Config, catalog session.Catalog, log *logger.Logger) *Server {
	cfg.applyDefaults()
	if log == nil {
		log = logger.NewDefault("bridge")
	}

	s := &Server{
		cfg:     cfg,
		catalog: catalog,
		log:     log,
		cors:    middleware.NewCORS(cfg.AllowedOrigins),
		limiter: middleware.NewRateLimiter(cfg.ConnectRate, cfg.ConnectBurst, log.Named("ratelimit")),
		stop:    make(chan struct{}),
		conns:   make(map[*hostConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      s.cors.CheckOrigin,
	}
	s.limiter.StartCleanup(5*time.Minute, s.stop)
	return s
}

// Router returns the HTTP handler for the bridge, health and metrics routes.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(s.log), middleware.Metrics(), s.cors.Handler)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.Handle("/bridge", s.limiter.Handler(http.HandlerFunc(s.handleBridge))).Methods(http.MethodGet)
	return r
}

// Sessions returns the number of open host connections.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close disconnects every host and stops background maintenance.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	conns := make([]*hostConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"sessions": s.Sessions(),
	})
}

func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.stop:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	log := s.log.Named("session").With("remote_addr", middleware.ClientIP(r))
	if id := middleware.RequestIDFrom(r.Context()); id != "" {
		log = log.With("request_id", id)
	}
	conn := newHostConn(ws, s.cfg.WriteTimeout, s.cfg.PingInterval, log)

	s.track(conn)
	defer s.untrack(conn)

	go conn.writePump()

	hs := newHostSession(s, conn, log)
	defer hs.shutdown()
	conn.readLoop(s.cfg.ReadLimit, hs.handle)
}

func (s *Server) track(c *hostConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	metrics.SessionOpened()
}

func (s *Server) untrack(c *hostConn) {
	c.close()
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	metrics.SessionClosed()
}
