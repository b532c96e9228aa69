package ranking

import (
	"strconv"
	"strings"
	"time"

	"moviesearch/internal/domain"
)

// Entry is one movie of the ranked list. Key is unique within a result set
// and is what renderers use to identify a card; the same movie reached
// directly and through several people yields several entries.
type Entry struct {
	Key   string       `json:"key"`
	Movie domain.Movie `json:"movie"`
	Score float64      `json:"score"`
}

// Flatten turns a heterogeneous multi-search page into movies, in input
// order. People contribute their known-for movies relabeled with their name.
// Anything else is dropped, as are movies without an id or a title.
func Flatten(results []domain.SearchResult) []Entry {
	out := make([]Entry, 0, len(results))
	seen := make(map[string]int, len(results))
	emit := func(key string, movie domain.Movie) {
		if n := seen[key]; n > 0 {
			seen[key] = n + 1
			key = key + "#" + strconv.Itoa(n+1)
		} else {
			seen[key] = 1
		}
		out = append(out, Entry{Key: key, Movie: movie})
	}

	for _, result := range results {
		switch item := result.(type) {
		case domain.MovieResult:
			if !renderable(item.Movie) {
				continue
			}
			emit("m"+strconv.Itoa(item.ID), item.Movie)
		case domain.PersonResult:
			for _, known := range item.KnownFor {
				if known.MediaType != domain.MediaTypeMovie || !renderable(known.Movie) {
					continue
				}
				key := "p" + strconv.Itoa(item.ID) + "-m" + strconv.Itoa(known.ID)
				emit(key, known.Movie.Featuring(item.Name))
			}
		default:
		}
	}
	return out
}

func renderable(movie domain.Movie) bool {
	return movie.ID != 0 && strings.TrimSpace(movie.Title) != ""
}

// Ranker flattens and sorts multi-search pages against the current year.
type Ranker struct {
	now func() time.Time
}

func NewRanker(now func() time.Time) *Ranker {
	if now == nil {
		now = time.Now
	}
	return &Ranker{now: now}
}

func (r *Ranker) CurrentYear() int {
	return r.now().Year()
}

func (r *Ranker) Process(results []domain.SearchResult) []Entry {
	return Sort(Flatten(results), r.CurrentYear())
}
