package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

type Server struct {
	store     store.Store
	engine    *abtest.Engine
	port      int
	token     string
	tokenFile string
	router    *http.ServeMux
	startTime time.Time
	metrics   *Metrics
	logger    *slog.Logger
}

func New(s store.Store, engine *abtest.Engine, port int, tokenFile string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	srv := &Server{
		store:     s,
		engine:    engine,
		port:      port,
		token:     generateToken(),
		tokenFile: tokenFile,
		router:    http.NewServeMux(),
		startTime: time.Now(),
		metrics:   NewMetrics(registry),
		logger:    logger,
	}

	srv.setupRoutes(registry)
	return srv
}

func (s *Server) setupRoutes(registry *prometheus.Registry) {
	// Ingest and read endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/api/events", s.handleEvents)
	s.router.HandleFunc("/api/tests", s.handleTests)
	s.router.HandleFunc("/api/tests/", s.handleTestSubpath)

	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func (s *Server) Start() error {
	// Write token to file so operators can find it after the fact
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.logger.Warn("failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("server listening", "addr", addr)

	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 4)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4"
	}
	return hex.EncodeToString(bytes)
}
