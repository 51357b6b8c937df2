// Package http 提供情感分析REST服务
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentilab/analyzer"
	"sentilab/config"
	"sentilab/db"
	"sentilab/monitoring"
)

// HistoryStore 上传与训练历史存储
type HistoryStore interface {
	RecordDataset(ctx context.Context, rec *db.DatasetRecord) error
	ListDatasets(ctx context.Context, limit int) ([]db.DatasetRecord, error)
	ListTrainingRuns(ctx context.Context, limit int) ([]db.TrainingRun, error)
}

// Deps 服务依赖，除Analyzer外均可为空
type Deps struct {
	Analyzer *analyzer.Analyzer
	History  HistoryStore
	Hub      *monitoring.Hub
	Metrics  *monitoring.Metrics
	Log      *zap.Logger
}

// Server HTTP服务器
type Server struct {
	server   *http.Server
	cfg      *config.Config
	analyzer *analyzer.Analyzer
	history  HistoryStore
	hub      *monitoring.Hub
	metrics  *monitoring.Metrics
	log      *zap.Logger
	routes   map[string]bool
}

// NewServer 创建HTTP服务器
func NewServer(cfg *config.Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		analyzer: deps.Analyzer,
		history:  deps.History,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		log:      log.Named("http"),
		routes:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var observer RequestObserver
	if s.metrics != nil {
		observer = s.metrics
	}
	chain := Chain(
		RecoveryMiddleware(s.log),
		LoggerMiddleware(s.log, observer, s.routeOf(mux)),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.Server.AllowedOrigins),
	)

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      chain(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /api/health", http.HandlerFunc(s.handleHealth))
	s.handle(mux, "POST /api/upload", http.HandlerFunc(s.handleUpload))
	s.handle(mux, "GET /api/datasets", http.HandlerFunc(s.handleDatasets))
	s.handle(mux, "POST /api/train", http.HandlerFunc(s.handleTrain))
	s.handle(mux, "GET /api/training_history", http.HandlerFunc(s.handleTrainingHistory))
	s.handle(mux, "POST /api/predict", http.HandlerFunc(s.handlePredict))
	s.handle(mux, "POST /api/batch_predict", http.HandlerFunc(s.handleBatchPredict))
	s.handle(mux, "GET /api/model_info", http.HandlerFunc(s.handleModelInfo))
	s.handle(mux, "POST /api/load_model", http.HandlerFunc(s.handleLoadModel))

	if s.hub != nil {
		s.handle(mux, "GET /api/ws/events", s.hub)
	}
	if s.metrics != nil {
		s.handle(mux, "GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, h)
	s.routes[pattern] = true
}

// routeOf 将请求映射到已注册路由的路径部分，其余请求（404、405、重定向）统一为unmatched
func (s *Server) routeOf(mux *http.ServeMux) RouteResolver {
	return func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		if !s.routes[pattern] {
			return "unmatched"
		}
		if _, path, ok := strings.Cut(pattern, " "); ok {
			return path
		}
		return pattern
	}
}

// Handler 返回带中间件的处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve 在给定监听器上提供服务
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.String("upload_dir", s.cfg.Storage.UploadDir),
		zap.String("model_path", s.cfg.Storage.ModelPath))

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 优雅关闭服务器
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
