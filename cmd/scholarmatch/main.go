package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/scholarmatch/scholarmatch/internal/config"
	dbRedis "github.com/scholarmatch/scholarmatch/internal/db/redis"
	"github.com/scholarmatch/scholarmatch/internal/domain"
	"github.com/scholarmatch/scholarmatch/internal/index"
	logpkg "github.com/scholarmatch/scholarmatch/internal/logger"
	"github.com/scholarmatch/scholarmatch/internal/metrics"
	advisorrepo "github.com/scholarmatch/scholarmatch/internal/repository/advisor"
	"github.com/scholarmatch/scholarmatch/internal/repository/embcache"
	institutionrepo "github.com/scholarmatch/scholarmatch/internal/repository/institution"
	profilerepo "github.com/scholarmatch/scholarmatch/internal/repository/profile"
	"github.com/scholarmatch/scholarmatch/internal/store"
	chiTransport "github.com/scholarmatch/scholarmatch/internal/transport/chi"
	openaiEmb "github.com/scholarmatch/scholarmatch/internal/transport/openai"
	"github.com/scholarmatch/scholarmatch/internal/transport/openalex"
	healthuc "github.com/scholarmatch/scholarmatch/internal/usecase/health"
	matchinguc "github.com/scholarmatch/scholarmatch/internal/usecase/matching"
	syncuc "github.com/scholarmatch/scholarmatch/internal/usecase/sync"
	"github.com/scholarmatch/scholarmatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting scholarmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_path", cfg.Database.Path),
	)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer st.Close()
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSyncMetrics()

	embedder, base := buildEmbedder(cfg, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("cache", len(cfg.Cache.Addrs) > 0),
	)

	idx := loadIndex(cfg, logger)

	feed := openalex.NewClient(openalex.Config{
		BaseURL:  cfg.Feed.BaseURL,
		Mailto:   cfg.Feed.Mailto,
		PageSize: cfg.Feed.PageSize,
		Timeout:  time.Duration(cfg.Feed.TimeoutSec) * time.Second,
	})

	advisors := advisorrepo.New(st.DB())
	institutions := institutionrepo.New(st.DB())
	profiles := profilerepo.New(st.DB())

	matchingSvc := matchinguc.New(profiles, advisors, idx, embedder, logger).
		WithTopK(cfg.Index.DefaultTopK)
	syncSvc := syncuc.New(feed, advisors, institutions, idx, embedder, syncuc.Config{
		PageDelay:   time.Duration(cfg.Feed.PageDelayMS) * time.Millisecond,
		VectorPath:  cfg.Index.VectorPath,
		MappingPath: cfg.Index.MappingPath,
	}, logger)
	healthSvc := healthuc.New(st, base, idx)

	server := chiTransport.NewServer(matchingSvc, syncSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// cacheReadyTimeout bounds how long startup waits for the embedding cache.
const cacheReadyTimeout = 5 * time.Second

// buildEmbedder assembles the decorator chain: OpenAI -> Cached. The base
// provider is returned separately for health checks. A cache that never
// becomes ready is dropped rather than blocking startup.
func buildEmbedder(cfg config.Config, logger *zap.Logger) (domain.Embedder, *openaiEmb.Embedder) {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})

	if len(cfg.Cache.Addrs) == 0 {
		return base, base
	}

	kv, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Cache.Addrs,
		Password: cfg.Cache.Password,
	})
	if err != nil {
		logger.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
		return base, base
	}

	if err := kv.WaitForReady(context.Background(), cacheReadyTimeout); err != nil {
		logger.Warn("Embedding cache not ready, continuing without it", zap.Error(err))
		kv.Close()
		return base, base
	}

	return embcache.New(base, kv, metrics.EmbeddingCacheTotal, logger), base
}

// loadIndex restores the persisted vector index, serving with an empty one
// when no readable snapshot exists.
func loadIndex(cfg config.Config, logger *zap.Logger) *index.Flat {
	idx := index.LoadOrEmpty(cfg.Embedding.Dimensions, cfg.Index.VectorPath, cfg.Index.MappingPath, logger)

	metrics.IndexVectors.WithLabelValues("total").Set(float64(idx.Size()))
	metrics.IndexVectors.WithLabelValues("live").Set(float64(idx.Live()))
	logger.Info("Vector index ready",
		zap.Int("vectors", idx.Size()),
		zap.Int("live", idx.Live()),
	)
	return idx
}

// requestLogger stores a request-scoped logger carrying the request id in
// the context, so downstream handlers log with correlation.
func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))
			next.ServeHTTP(w, r.WithContext(logpkg.ContextWithLogger(r.Context(), reqLogger)))
		})
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
