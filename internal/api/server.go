package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ivishnuraj/vmaker/internal/artifacts"
	"github.com/ivishnuraj/vmaker/internal/clips"
	"github.com/ivishnuraj/vmaker/internal/events"
	"github.com/ivishnuraj/vmaker/internal/jobs"
	"github.com/ivishnuraj/vmaker/internal/media"
	"github.com/ivishnuraj/vmaker/internal/orchestrator"
	"github.com/ivishnuraj/vmaker/internal/templates"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Bind        string
	Port        int
	Service     *orchestrator.Service
	Scheduler   *orchestrator.Scheduler
	Jobs        *jobs.Store
	Bus         *events.Bus
	Templates   *templates.Store
	Clips       *clips.Library
	Artifacts   *artifacts.Server
	Doctor      *media.CachedDoctor
	Logger      *slog.Logger
	StartTime   time.Time
	Version     string
	SubmitRate  float64
	SubmitBurst int

	shutdown <-chan struct{}
}

func NewServer(cfg ServerConfig) *Server {
	closing, cancel := context.WithCancel(context.Background())
	cfg.shutdown = closing.Done()
	router := NewRouter(cfg)

	bind := cfg.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(bind, strconv.Itoa(cfg.Port)),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	httpServer.RegisterOnShutdown(cancel)

	return &Server{
		httpServer: httpServer,
		logger:     cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and tells open websocket
// connections to close.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
