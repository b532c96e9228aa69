package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	apihttp "moviesearch/internal/api/http"
	"moviesearch/internal/app"
	"moviesearch/internal/clock"
	"moviesearch/internal/metrics"
	"moviesearch/internal/providers/tmdb"
	"moviesearch/internal/session"
	"moviesearch/internal/suggest"
	"moviesearch/internal/telemetry"
)

func main() {
	if err := app.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "moviesearch",
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "moviesearch"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("tmdbBaseURL", cfg.TMDBBaseURL),
		slog.String("tmdbLanguage", cfg.TMDBLanguage),
		slog.Bool("hasTMDBKey", cfg.TMDBAPIKey != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.TMDBCacheTTL),
		slog.Duration("suggestDebounce", cfg.SuggestDebounce),
		slog.Int("revealBatch", cfg.RevealBatchSize),
		slog.Duration("revealInterval", cfg.RevealInterval),
	)

	redisClient := buildRedisClient(cfg, logger)
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()
	tmdbClient := buildTMDBClient(cfg, redisClient, logger)

	suggestCfg := suggest.DefaultConfig()
	if cfg.SuggestDebounce > 0 {
		suggestCfg.Debounce = cfg.SuggestDebounce
	}

	api := apihttp.NewServer(tmdbClient,
		apihttp.WithLogger(logger),
		apihttp.WithSuggestConfig(suggestCfg),
		apihttp.WithRateLimit(cfg.HTTPRateLimitRPS, cfg.HTTPRateBurst),
		apihttp.WithImageProxy(cfg.TMDBImageBaseURL, nil),
		apihttp.WithAllowedOrigins(cfg.AllowedWSOrigins),
		apihttp.WithSessionOptions(
			session.WithClock(clock.Real{}),
			session.WithSuggestConfig(suggestCfg),
			session.WithReveal(cfg.RevealBatchSize, cfg.RevealInterval),
			session.WithRequestTimeout(cfg.RequestTimeout),
		),
	)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// WebSocket sessions are long lived; per-message deadlines are set on the connection.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("movie search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Hijacked WebSocket connections are not tracked by Shutdown.
	api.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("movie search service stopped")
}

func newLogger(levelRaw, formatRaw, file string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if file = strings.TrimSpace(file); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			slog.Warn("could not create log directory", slog.String("path", file), slog.String("error", err.Error()))
		} else {
			out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
				Filename:   file,
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     14,
				Compress:   true,
			})
		}
	}

	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, options))
	}
	return slog.New(slog.NewTextHandler(out, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, tmdb cache disabled", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, tmdb cache disabled", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildTMDBClient(cfg app.Config, redisClient *redis.Client, logger *slog.Logger) *tmdb.Client {
	client := tmdb.NewClient(tmdb.Config{
		APIKey:       cfg.TMDBAPIKey,
		BaseURL:      cfg.TMDBBaseURL,
		ImageBaseURL: cfg.TMDBImageBaseURL,
		Language:     cfg.TMDBLanguage,
		Client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Redis:     redisClient,
		CacheTTL:  cfg.TMDBCacheTTL,
		RateLimit: cfg.TMDBRateLimitRPS,
	})
	if !client.Enabled() {
		logger.Warn("tmdb api key not configured, every search will fail")
	} else {
		logger.Info("tmdb client initialized", slog.Bool("cache", redisClient != nil))
	}
	return client
}
