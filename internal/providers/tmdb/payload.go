package tmdb

import (
	"strings"

	"moviesearch/internal/domain"
)

// result mirrors one entry of a TMDB results array. Every optional field is
// a pointer so null and missing both decode to nil.
type result struct {
	ID                 int      `json:"id"`
	MediaType          string   `json:"media_type"`
	Title              *string  `json:"title"`
	Name               *string  `json:"name"`
	PosterPath         *string  `json:"poster_path"`
	ProfilePath        *string  `json:"profile_path"`
	ReleaseDate        *string  `json:"release_date"`
	Overview           *string  `json:"overview"`
	VoteAverage        *float64 `json:"vote_average"`
	VoteCount          *int     `json:"vote_count"`
	KnownForDepartment *string  `json:"known_for_department"`
	KnownFor           []result `json:"known_for"`
}

type multiSearchResponse struct {
	Page         int      `json:"page"`
	Results      []result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

type movieSearchResponse struct {
	Results []result `json:"results"`
}

func (r result) movie() domain.Movie {
	return domain.Movie{
		ID:          r.ID,
		Title:       deref(r.Title),
		PosterPath:  nonEmpty(r.PosterPath),
		ReleaseDate: nonEmpty(r.ReleaseDate),
		Overview:    nonEmpty(r.Overview),
		VoteAverage: clampRating(r.VoteAverage),
		VoteCount:   nonNegative(r.VoteCount),
	}
}

func (r result) person() domain.Person {
	known := make([]domain.KnownFor, 0, len(r.KnownFor))
	for _, entry := range r.KnownFor {
		known = append(known, domain.KnownFor{
			MediaType: domain.MediaType(strings.ToLower(strings.TrimSpace(entry.MediaType))),
			Movie:     entry.movie(),
		})
	}
	return domain.Person{
		ID:                 r.ID,
		Name:               deref(r.Name),
		ProfilePath:        nonEmpty(r.ProfilePath),
		KnownForDepartment: deref(r.KnownForDepartment),
		KnownFor:           known,
	}
}

func (r result) searchResult() domain.SearchResult {
	tag := strings.ToLower(strings.TrimSpace(r.MediaType))
	switch domain.MediaType(tag) {
	case domain.MediaTypeMovie:
		return domain.MovieResult{Movie: r.movie()}
	case domain.MediaTypePerson:
		return domain.PersonResult{Person: r.person()}
	default:
		return domain.OtherResult{ID: r.ID, Tag: tag}
	}
}

func (r multiSearchResponse) page() domain.SearchPage {
	results := make([]domain.SearchResult, 0, len(r.Results))
	for _, item := range r.Results {
		results = append(results, item.searchResult())
	}
	return domain.SearchPage{
		Results:      results,
		Page:         r.Page,
		TotalPages:   r.TotalPages,
		TotalResults: r.TotalResults,
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return value
}

func nonNegative(value *int) *int {
	if value == nil || *value < 0 {
		return nil
	}
	return value
}

func clampRating(value *float64) *float64 {
	if value == nil {
		return nil
	}
	rating := *value
	switch {
	case rating < 0:
		rating = 0
	case rating > 10:
		rating = 10
	}
	return &rating
}
