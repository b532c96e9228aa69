package domain

import "strings"

type MediaType string

const (
	MediaTypeMovie  MediaType = "movie"
	MediaTypePerson MediaType = "person"
)

// Movie is a movie record as returned by the remote catalogue. Optional
// fields are nil when the upstream payload omitted them or sent null.
type Movie struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	PosterPath  *string  `json:"posterPath,omitempty"`
	ReleaseDate *string  `json:"releaseDate,omitempty"`
	Overview    *string  `json:"overview,omitempty"`
	VoteAverage *float64 `json:"voteAverage,omitempty"`
	VoteCount   *int     `json:"voteCount,omitempty"`
}

func (m Movie) HasPoster() bool {
	return m.PosterPath != nil && strings.TrimSpace(*m.PosterPath) != ""
}

func (m Movie) Rating() float64 {
	if m.VoteAverage == nil {
		return 0
	}
	return *m.VoteAverage
}

func (m Movie) Votes() int {
	if m.VoteCount == nil || *m.VoteCount < 0 {
		return 0
	}
	return *m.VoteCount
}

func (m Movie) Synopsis() string {
	if m.Overview == nil {
		return ""
	}
	return *m.Overview
}

// ReleaseYear returns the year of the release date, if one can be parsed.
func (m Movie) ReleaseYear() (int, bool) {
	if m.ReleaseDate == nil {
		return 0, false
	}
	return ParseYear(*m.ReleaseDate)
}

// Featuring returns a copy of m whose title names the person it was found
// through. The receiver is left untouched.
func (m Movie) Featuring(personName string) Movie {
	out := m
	out.Title = m.Title + " (featuring " + personName + ")"
	return out
}

// KnownFor is one entry of a person's known-for list. Entries carry their own
// media type tag; only movie entries are of interest to this service.
type KnownFor struct {
	MediaType MediaType `json:"mediaType"`
	Movie
}

type Person struct {
	ID                 int        `json:"id"`
	Name               string     `json:"name"`
	ProfilePath        *string    `json:"profilePath,omitempty"`
	KnownForDepartment string     `json:"knownForDepartment,omitempty"`
	KnownFor           []KnownFor `json:"knownFor,omitempty"`
}

// ParseYear reads the leading four digit year of an ISO date ("2021-03-04").
func ParseYear(date string) (int, bool) {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0, false
	}
	year := 0
	for _, c := range date[:4] {
		if c < '0' || c > '9' {
			return 0, false
		}
		year = year*10 + int(c-'0')
	}
	return year, true
}
