package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr         string
	RequestTimeout   time.Duration
	LogLevel         string
	LogFormat        string
	LogFile          string
	TMDBAPIKey       string
	TMDBBaseURL      string
	TMDBImageBaseURL string
	TMDBLanguage     string
	TMDBRateLimitRPS float64
	RedisURL         string
	TMDBCacheTTL     time.Duration
	SuggestDebounce  time.Duration
	RevealBatchSize  int
	RevealInterval   time.Duration
	HTTPRateLimitRPS float64
	HTTPRateBurst    int
	OTLPEndpoint     string
	TraceSampleRatio float64
	AllowedWSOrigins []string
}

// LoadDotEnv populates the environment from the given files, or ./.env when
// none are named. Variables already set are left alone and missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:          getEnv("LOG_FILE", ""),
		TMDBAPIKey:       strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBImageBaseURL: getEnv("TMDB_IMAGE_BASE_URL", "https://image.tmdb.org/t/p"),
		TMDBLanguage:     getEnv("TMDB_LANGUAGE", "en-US"),
		TMDBRateLimitRPS: getEnvFloat("TMDB_RATE_LIMIT_RPS", 40),
		RedisURL:         getEnv("REDIS_URL", ""),
		TMDBCacheTTL:     time.Duration(getEnvInt("TMDB_CACHE_TTL_MINUTES", 360)) * time.Minute,
		SuggestDebounce:  time.Duration(getEnvInt("SUGGEST_DEBOUNCE_MS", 300)) * time.Millisecond,
		RevealBatchSize:  getEnvInt("REVEAL_BATCH_SIZE", 4),
		RevealInterval:   time.Duration(getEnvInt("REVEAL_INTERVAL_MS", 100)) * time.Millisecond,
		HTTPRateLimitRPS: getEnvFloat("HTTP_RATE_LIMIT_RPS", 50),
		HTTPRateBurst:    getEnvInt("HTTP_RATE_LIMIT_BURST", 100),
		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		AllowedWSOrigins: getEnvList("WS_ALLOWED_ORIGINS"),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			out = append(out, value)
		}
	}
	return out
}
