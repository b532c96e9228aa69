package ranking

import (
	"math"
	"sort"

	"moviesearch/internal/domain"
)

const (
	ratingWeight     = 10.0
	popularityWeight = 20.0
	posterBonus      = 50.0
	recencyWindow    = 10
)

// Score blends quality, popularity, poster availability and recency.
// Missing fields contribute nothing; a missing release date counts as the
// current year.
func Score(movie domain.Movie, currentYear int) float64 {
	score := movie.Rating() * ratingWeight
	score += math.Log(float64(movie.Votes())+1) * popularityWeight
	if movie.HasPoster() {
		score += posterBonus
	}
	releaseYear, ok := movie.ReleaseYear()
	if !ok {
		releaseYear = currentYear
	}
	if recency := recencyWindow - (currentYear - releaseYear); recency > 0 {
		score += float64(recency)
	}
	return score
}

// Sort scores entries and orders them by descending score. Equal scores keep
// their input order.
func Sort(entries []Entry, currentYear int) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	for i := range out {
		out[i].Score = Score(out[i].Movie, currentYear)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
