package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notesync/internal/db"
	mcpserver "notesync/internal/mcp"
	"notesync/internal/notes"
	"notesync/internal/pagecache"

	"github.com/felixge/httpsnoop"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Tokens) == 0 {
		logger.Warn("NOTES_API_TOKENS is empty, every API request will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
	defer cancelStart()

	logger.Info("connecting to MongoDB", "uri", cfg.MongoURI)
	database, err := db.Connect(startCtx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.Client().Disconnect(disconnectCtx); err != nil {
			logger.Error("mongo disconnect error", "error", err)
		}
	}()

	backend, closeBackend, err := cacheBackend(startCtx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer closeBackend()
	cache := pagecache.New[notes.PageResult](backend, cfg.CacheTTL, logger)

	repo := notes.NewRepo(database)
	if err := repo.EnsureIndexes(startCtx); err != nil {
		logger.Warn("could not ensure note indexes", "error", err)
	}
	svc := notes.NewService(repo, cache, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      logRequests(logger, newRouter(svc, cfg.Tokens, logger)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "api", "/api/notes", "mcp", "/mcp")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	logger.Info("server stopped", "cache", cache.Stats())
	return nil
}

// cacheBackend picks Redis when a URL is configured and falls back to process memory.
func cacheBackend(ctx context.Context, redisURL string, logger *slog.Logger) (pagecache.Backend, func(), error) {
	if redisURL == "" {
		logger.Info("page cache in memory, REDIS_URL not set")
		return pagecache.NewMemoryBackend(), func() {}, nil
	}

	rdb, err := db.ConnectRedis(ctx, redisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("page cache backed by Redis")
	return pagecache.NewRedisBackend(rdb), func() { _ = rdb.Close() }, nil
}

func newRouter(svc *notes.Service, tokens map[string]string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	notes.NewHandler(svc, logger).Routes(mux, tokens)

	// streamable HTTP: POST for requests, GET for the SSE stream, DELETE ends a session
	mcpHTTP := mcpserver.Handler(svc, tokens)
	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		mux.Handle(method+" /mcp", mcpHTTP)
	}

	// also the clients' connectivity probe
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		logger.Info("handled", "method", r.Method, "path", r.URL.Path, "status", m.Code, "duration", m.Duration)
	})
}
