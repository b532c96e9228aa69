package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"moviesearch/internal/domain"
	"moviesearch/internal/providers/tmdb"
	"moviesearch/internal/session"
)

const testImageBase = "https://img.test/t/p"

type fakeCatalog struct {
	mu        sync.Mutex
	page      domain.SearchPage
	movies    []domain.Movie
	err       error
	calls     int
	lastQuery string
	lastPage  int
}

func (f *fakeCatalog) SearchMulti(_ context.Context, query string, page int) (domain.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = query
	f.lastPage = page
	if f.err != nil {
		return domain.SearchPage{}, f.err
	}
	return f.page, nil
}

func (f *fakeCatalog) SearchMovie(_ context.Context, query string) ([]domain.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.movies, nil
}

func (f *fakeCatalog) ImageURL(width string, fragment *string) string {
	return tmdb.NewImages(testImageBase).ImageURL(width, fragment)
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestServer(t *testing.T, catalog Catalog, opts ...ServerOption) *Server {
	t.Helper()
	server := NewServer(catalog, opts...)
	t.Cleanup(server.Close)
	return server
}

func ptr[T any](v T) *T { return &v }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &fakeCatalog{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
	}
	decodeBody(t, rec, &body)
	if body.Status != "ok" || body.Sessions != 0 {
		t.Fatalf("unexpected health body: %+v", body)
	}
}

func TestSearchReturnsRankedCards(t *testing.T) {
	catalog := &fakeCatalog{page: domain.SearchPage{
		Page:         2,
		TotalPages:   4,
		TotalResults: 61,
		Results: []domain.SearchResult{
			domain.MovieResult{Movie: domain.Movie{ID: 1, Title: "Plain"}},
			domain.PersonResult{Person: domain.Person{
				ID:   7,
				Name: "Ann",
				KnownFor: []domain.KnownFor{
					{MediaType: domain.MediaTypeMovie, Movie: domain.Movie{ID: 2, Title: "X", PosterPath: ptr("/x.jpg")}},
				},
			}},
			domain.OtherResult{ID: 3, Tag: "tv"},
		},
	}}
	server := newTestServer(t, catalog)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=%20ann%20&page=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if catalog.lastQuery != "ann" || catalog.lastPage != 2 {
		t.Fatalf("unexpected upstream call: %q page %d", catalog.lastQuery, catalog.lastPage)
	}
	var body searchResponse
	decodeBody(t, rec, &body)
	if body.Query != "ann" || body.Page != 2 || body.TotalPages != 4 || body.TotalResults != 61 {
		t.Fatalf("unexpected paging: %+v", body)
	}
	if len(body.Items) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(body.Items))
	}
	found := false
	for _, item := range body.Items {
		if item.Title == "X (featuring Ann)" {
			found = true
			if item.PosterURL != testImageBase+"/w500/x.jpg" {
				t.Fatalf("unexpected poster url: %q", item.PosterURL)
			}
		}
	}
	if !found {
		t.Fatalf("expected featuring card, got %+v", body.Items)
	}
}

func TestSearchValidation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{name: "missing query", url: "/api/search"},
		{name: "blank query", url: "/api/search?q=%20%20"},
		{name: "bad page", url: "/api/search?q=alien&page=zero"},
		{name: "negative page", url: "/api/search?q=alien&page=-1"},
		{name: "long query", url: "/api/search?q=" + strings.Repeat("a", maxQueryLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := &fakeCatalog{}
			server := newTestServer(t, catalog)

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			if catalog.callCount() != 0 {
				t.Fatalf("catalog must not be called")
			}
		})
	}
}

func TestSearchUpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "status", err: fmt.Errorf("%w: tmdb HTTP 401", tmdb.ErrUpstreamStatus), status: http.StatusBadGateway, code: "upstream_error"},
		{name: "transport", err: fmt.Errorf("%w: dial", tmdb.ErrTransport), status: http.StatusBadGateway, code: "upstream_error"},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, &fakeCatalog{err: tt.err})

			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=alien", nil))

			if rec.Code != tt.status {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			var body errorBody
			decodeBody(t, rec, &body)
			if body.Error.Code != tt.code || body.Error.Message != session.FetchFailedMessage {
				t.Fatalf("unexpected error body: %+v", body)
			}
		})
	}
}

func TestSuggestShortQueryReturnsEmpty(t *testing.T) {
	catalog := &fakeCatalog{}
	server := newTestServer(t, catalog)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suggest?q=a", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"items":[]}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if catalog.callCount() != 0 {
		t.Fatalf("catalog must not be called for short queries")
	}
}

func TestSuggestFailureIsSilent(t *testing.T) {
	server := newTestServer(t, &fakeCatalog{err: fmt.Errorf("%w: down", tmdb.ErrTransport)})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suggest?q=matrix", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"items":[]}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestSuggestProjectsAndHighlights(t *testing.T) {
	results := []domain.SearchResult{
		domain.OtherResult{ID: 99, Tag: "tv"},
		domain.MovieResult{Movie: domain.Movie{ID: 603, Title: "The Matrix", PosterPath: ptr("/m.jpg"), ReleaseDate: ptr("1999-03-31")}},
	}
	for i := 0; i < 8; i++ {
		results = append(results, domain.MovieResult{Movie: domain.Movie{ID: 1000 + i, Title: fmt.Sprintf("Matrix %d", i)}})
	}
	server := newTestServer(t, &fakeCatalog{page: domain.SearchPage{Results: results, Page: 1, TotalPages: 1}})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suggest?q=mat", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body struct {
		Items []session.SuggestionItem `json:"items"`
	}
	decodeBody(t, rec, &body)
	if len(body.Items) != 5 {
		t.Fatalf("expected 5 suggestions, got %d", len(body.Items))
	}
	first := body.Items[0]
	if first.ID != 603 || first.Year == nil || *first.Year != 1999 {
		t.Fatalf("unexpected first suggestion: %+v", first)
	}
	if first.ImageURL != testImageBase+"/w92/m.jpg" {
		t.Fatalf("unexpected thumbnail: %q", first.ImageURL)
	}
	matched := ""
	for _, segment := range first.Segments {
		if segment.Match {
			matched += segment.Text
		}
	}
	if matched != "Mat" {
		t.Fatalf("unexpected highlight %+v", first.Segments)
	}
}

func TestMoviesRanksMovieResults(t *testing.T) {
	catalog := &fakeCatalog{movies: []domain.Movie{
		{ID: 1, Title: "Unknown"},
		{ID: 2, Title: "Popular", PosterPath: ptr("/p.jpg"), VoteAverage: ptr(8.0), VoteCount: ptr(5000)},
	}}
	server := newTestServer(t, catalog)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/movies?q=pop", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body struct {
		Query string         `json:"query"`
		Items []session.Card `json:"items"`
	}
	decodeBody(t, rec, &body)
	if body.Query != "pop" || len(body.Items) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Items[0].Title != "Popular" || body.Items[0].Rating != "8.0" {
		t.Fatalf("expected Popular first, got %+v", body.Items)
	}
}

func TestUnknownRouteReturnsJSON(t *testing.T) {
	server := newTestServer(t, &fakeCatalog{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Error.Code != "not_found" {
		t.Fatalf("unexpected body: %+v", body)
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search?q=x", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unexpected status for POST: %d", rec.Code)
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	server := newTestServer(t, &fakeCatalog{}, WithRateLimit(0.001, 1))

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suggest?q=a", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: unexpected status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/suggest?q=a", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: unexpected status %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("missing Retry-After header")
	}

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health must bypass the limiter, got %d", rec.Code)
	}
}

func TestRecovererReturns500(t *testing.T) {
	handler := recoverer(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	server := newTestServer(t, &fakeCatalog{})

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected the client request id to be kept, got %q", got)
	}
}

func TestRouteLabel(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = routeLabel(req)
		})
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/search", func(http.ResponseWriter, *http.Request) {})
	})

	tests := map[string]string{
		"/api/search": "/api/search",
		"/api/nope":   "/other",
		"/random":     "/other",
	}
	for path, want := range tests {
		got = ""
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		if got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
