package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"moviesearch/internal/domain"
	"moviesearch/internal/providers/tmdb"
	"moviesearch/internal/ranking"
	"moviesearch/internal/session"
	"moviesearch/internal/suggest"
)

// Catalog is the remote movie catalogue the server searches.
type Catalog interface {
	SearchMulti(ctx context.Context, query string, page int) (domain.SearchPage, error)
	SearchMovie(ctx context.Context, query string) ([]domain.Movie, error)
	ImageURL(width string, fragment *string) string
}

type Server struct {
	catalog      Catalog
	logger       *slog.Logger
	ranker       *ranking.Ranker
	suggestCfg   suggest.Config
	sessionOpts  []session.Option
	rateRPS      float64
	rateBurst    int
	imageBase    string
	imageClient  *http.Client
	origins      []string
	upgrader     websocket.Upgrader
	hub          *wsHub
	handler      http.Handler
	sessionsCtx  context.Context
	stopSessions context.CancelFunc
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSessionOptions sets options applied to every interactive session.
func WithSessionOptions(opts ...session.Option) ServerOption {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithSuggestConfig sets the suggestion rules used by the REST endpoint.
func WithSuggestConfig(cfg suggest.Config) ServerOption {
	return func(s *Server) {
		s.suggestCfg = cfg
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 {
			s.rateRPS = rps
		}
		if burst > 0 {
			s.rateBurst = burst
		}
	}
}

// WithImageProxy points the image proxy at the CDN base URL, optionally
// with a dedicated client.
func WithImageProxy(baseURL string, client *http.Client) ServerOption {
	return func(s *Server) {
		if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
			s.imageBase = base
		}
		if client != nil {
			s.imageClient = client
		}
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the given origins.
// With no origins every origin is accepted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.origins = origins
	}
}

func NewServer(catalog Catalog, options ...ServerOption) *Server {
	server := &Server{
		catalog:    catalog,
		logger:     slog.Default(),
		ranker:     ranking.NewRanker(time.Now),
		suggestCfg: suggest.DefaultConfig(),
		rateRPS:    50,
		rateBurst:  100,
		imageBase:  tmdb.DefaultImageBaseURL,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.imageClient == nil {
		server.imageClient = newImageProxyClient(server.imageBase)
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(server.origins),
	}
	server.sessionsCtx, server.stopSessions = context.WithCancel(context.Background())
	server.hub = newWSHub(server.logger)
	go server.hub.run()
	server.handler = server.routes()
	return server
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects every WebSocket session.
func (s *Server) Close() {
	s.stopSessions()
	s.hub.Close()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.logger), requestID, rateLimit(s.rateRPS, s.rateBurst))
	r.Use(otelhttp.NewMiddleware("moviesearch",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/ws"
		}),
	))
	r.Use(instrument(s.logger))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/suggest", s.handleSuggest)
		r.Get("/movies", s.handleMovies)
		r.Get("/image", s.handleImageProxy)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  s.hub.clientCount(),
		"timestamp": time.Now().UTC(),
	})
}

type searchResponse struct {
	Query        string         `json:"query"`
	Items        []session.Card `json:"items"`
	Page         int            `json:"page"`
	TotalPages   int            `json:"totalPages"`
	TotalResults int            `json:"totalResults"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	page, err := parsePositiveInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid page")
		return
	}

	result, err := s.catalog.SearchMulti(r.Context(), query, page)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.Int("page", page),
			slog.String("error", err.Error()),
		)
		writeUpstreamError(w, err)
		return
	}

	entries := s.ranker.Process(result.Results)
	current := result.Page
	if current < 1 {
		current = page
	}
	if result.TotalPages > 0 {
		current = min(current, result.TotalPages)
	}
	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.Int("page", current),
		slog.Int("items", len(entries)),
	)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:        query,
		Items:        session.NewCards(s.catalog, entries),
		Page:         current,
		TotalPages:   result.TotalPages,
		TotalResults: result.TotalResults,
	})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	empty := map[string]any{"items": []session.SuggestionItem{}}
	if utf8.RuneCountInString(query) < s.suggestCfg.MinChars || len(query) > maxQueryLength {
		writeJSON(w, http.StatusOK, empty)
		return
	}

	result, err := s.catalog.SearchMulti(r.Context(), query, 1)
	if err != nil {
		s.logger.Warn("suggest request failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, empty)
		return
	}

	limit := s.suggestCfg.Limit
	if limit <= 0 {
		limit = suggest.DefaultConfig().Limit
	}
	items := suggest.Project(result.Results, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"items": session.NewSuggestionItems(s.catalog, items, query),
	})
}

func (s *Server) handleMovies(w http.ResponseWriter, r *http.Request) {
	query, ok := requireQuery(w, r)
	if !ok {
		return
	}
	movies, err := s.catalog.SearchMovie(r.Context(), query)
	if err != nil {
		s.logger.Warn("movie search failed",
			slog.String("query", truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		writeUpstreamError(w, err)
		return
	}

	results := make([]domain.SearchResult, 0, len(movies))
	for _, movie := range movies {
		results = append(results, domain.MovieResult{Movie: movie})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query": query,
		"items": session.NewCards(s.catalog, s.ranker.Process(results)),
	})
}

func requireQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return "", false
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return "", false
	}
	return query, true
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tmdb.ErrUpstreamStatus), errors.Is(err, tmdb.ErrTransport):
		writeError(w, http.StatusBadGateway, "upstream_error", session.FetchFailedMessage)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", session.FetchFailedMessage)
	}
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
