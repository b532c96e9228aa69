package session

import (
	"fmt"
	"strconv"
	"strings"

	"moviesearch/internal/domain"
	"moviesearch/internal/ranking"
	"moviesearch/internal/suggest"
)

const (
	FetchFailedMessage = "Failed to fetch results. Please try again."

	movieLinkFormat = "https://www.themoviedb.org/movie/%d"

	widthSuggestion = "w92"
	widthPoster     = "w500"
)

// ImageResolver turns an image path fragment into a URL, returning "" when
// there is no fragment.
type ImageResolver interface {
	ImageURL(width string, fragment *string) string
}

type noImages struct{}

func (noImages) ImageURL(string, *string) string { return "" }

// View is the render snapshot pushed to the client after every event.
type View struct {
	SessionID    string          `json:"sessionId,omitempty"`
	Text         string          `json:"text"`
	Term         string          `json:"term"`
	Loading      bool            `json:"loading"`
	Error        string          `json:"error,omitempty"`
	Suggestions  SuggestionsView `json:"suggestions"`
	Results      []Card          `json:"results"`
	Total        int             `json:"total"`
	Page         int             `json:"page"`
	TotalPages   int             `json:"totalPages"`
	TotalResults int             `json:"totalResults"`
	HasPrev      bool            `json:"hasPrev"`
	HasNext      bool            `json:"hasNext"`
	Detail       *Detail         `json:"detail,omitempty"`
}

type SuggestionsView struct {
	Open     bool             `json:"open"`
	Phase    string           `json:"phase"`
	Selected int              `json:"selected"`
	Items    []SuggestionItem `json:"items"`
}

type SuggestionItem struct {
	domain.Suggestion
	ImageURL string            `json:"imageUrl,omitempty"`
	Segments []suggest.Segment `json:"segments"`
}

type Card struct {
	Key       string  `json:"key"`
	ID        int     `json:"id"`
	Title     string  `json:"title"`
	PosterURL string  `json:"posterUrl,omitempty"`
	Year      int     `json:"year,omitempty"`
	Rating    string  `json:"rating,omitempty"`
	Votes     int     `json:"votes"`
	Score     float64 `json:"score"`
}

type Detail struct {
	Key         string `json:"key"`
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Overview    string `json:"overview,omitempty"`
	PosterURL   string `json:"posterUrl,omitempty"`
	Rating      string `json:"rating,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	Link        string `json:"link"`
}

func NewCard(images ImageResolver, entry ranking.Entry) Card {
	card := Card{
		Key:       entry.Key,
		ID:        entry.Movie.ID,
		Title:     entry.Movie.Title,
		PosterURL: images.ImageURL(widthPoster, entry.Movie.PosterPath),
		Rating:    formatRating(entry.Movie.VoteAverage),
		Votes:     entry.Movie.Votes(),
		Score:     entry.Score,
	}
	if year, ok := entry.Movie.ReleaseYear(); ok {
		card.Year = year
	}
	return card
}

func NewCards(images ImageResolver, entries []ranking.Entry) []Card {
	cards := make([]Card, 0, len(entries))
	for _, entry := range entries {
		cards = append(cards, NewCard(images, entry))
	}
	return cards
}

func NewDetail(images ImageResolver, entry ranking.Entry) *Detail {
	detail := &Detail{
		Key:       entry.Key,
		ID:        entry.Movie.ID,
		Title:     entry.Movie.Title,
		Overview:  entry.Movie.Synopsis(),
		PosterURL: images.ImageURL(widthPoster, entry.Movie.PosterPath),
		Rating:    formatRating(entry.Movie.VoteAverage),
		Link:      fmt.Sprintf(movieLinkFormat, entry.Movie.ID),
	}
	if entry.Movie.ReleaseDate != nil {
		detail.ReleaseDate = *entry.Movie.ReleaseDate
	}
	return detail
}

// NewSuggestionItems decorates suggestions with thumbnail URLs and the
// highlight segments for query. The query is trimmed the same way it is
// before the remote search.
func NewSuggestionItems(images ImageResolver, items []domain.Suggestion, query string) []SuggestionItem {
	query = strings.TrimSpace(query)
	out := make([]SuggestionItem, 0, len(items))
	for _, item := range items {
		out = append(out, SuggestionItem{
			Suggestion: item,
			ImageURL:   images.ImageURL(widthSuggestion, item.ImagePath),
			Segments:   suggest.Highlight(item.Title, query),
		})
	}
	return out
}

func formatRating(rating *float64) string {
	if rating == nil {
		return ""
	}
	return strconv.FormatFloat(*rating, 'f', 1, 64)
}

// View builds the current snapshot. It must only be called from the loop
// goroutine, or before Run starts.
func (s *Session) View() View {
	visible := s.reveal.Visible()
	if visible > len(s.entries) {
		visible = len(s.entries)
	}
	view := View{
		SessionID: s.id,
		Text:      s.suggest.Text,
		Term:      s.term,
		Loading:   s.loading,
		Error:     s.errMsg,
		Suggestions: SuggestionsView{
			Open:     s.suggest.Visible(),
			Phase:    s.suggest.Phase.String(),
			Selected: s.suggest.Selected,
			Items:    NewSuggestionItems(s.images, s.suggest.Items, s.suggest.Text),
		},
		Results:      NewCards(s.images, s.entries[:visible]),
		Total:        len(s.entries),
		Page:         s.page,
		TotalPages:   s.totalPages,
		TotalResults: s.totalResults,
		HasPrev:      s.hasPrev(),
		HasNext:      s.hasNext(),
	}
	if entry, ok := s.selectedEntry(); ok {
		view.Detail = NewDetail(s.images, entry)
	}
	return view
}
