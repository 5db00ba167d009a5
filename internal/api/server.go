package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hkzhang08/gradcafe-ingest/internal/config"
	"github.com/hkzhang08/gradcafe-ingest/internal/ingest"
	"github.com/hkzhang08/gradcafe-ingest/internal/storage"
	"github.com/hkzhang08/gradcafe-ingest/internal/task"
)

// Server holds the dependencies for the HTTP ops surface.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	pipeline   *ingest.Pipeline
	dispatcher *task.Dispatcher
	pgStore    *storage.PostgresStore
	redisStore *storage.RedisStore
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, p *ingest.Pipeline, d *task.Dispatcher, ps *storage.PostgresStore, rs *storage.RedisStore, l *zap.Logger) *Server {
	s := &Server{
		config:     cfg,
		pipeline:   p,
		dispatcher: d,
		pgStore:    ps,
		redisStore: rs,
		logger:     l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
