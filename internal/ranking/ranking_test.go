package ranking

import (
	"math"
	"testing"
	"time"

	"moviesearch/internal/domain"
)

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func TestScoreKnownValue(t *testing.T) {
	movie := domain.Movie{
		ID:          1,
		Title:       "Blockbuster",
		VoteAverage: floatPtr(8),
		VoteCount:   intPtr(1000),
		PosterPath:  strPtr("/x.jpg"),
		ReleaseDate: strPtr("2026-05-01"),
	}
	// 8*10 + ln(1001)*20 + 50 + 10
	const want = 278.1750955863044
	if got := Score(movie, 2026); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Score = %.12f, want %.12f", got, want)
	}
}

func TestScoreComponents(t *testing.T) {
	tests := []struct {
		name  string
		movie domain.Movie
		want  float64
	}{
		{
			name:  "empty record gets only the recency bonus",
			movie: domain.Movie{ID: 1, Title: "Bare"},
			want:  10,
		},
		{
			name:  "old release gets no recency",
			movie: domain.Movie{ID: 1, Title: "Old", ReleaseDate: strPtr("1999-03-31")},
			want:  0,
		},
		{
			name:  "recency decays linearly",
			movie: domain.Movie{ID: 1, Title: "Recent", ReleaseDate: strPtr("2020-01-01")},
			want:  4,
		},
		{
			name:  "unparsable date counts as current year",
			movie: domain.Movie{ID: 1, Title: "Odd", ReleaseDate: strPtr("soon")},
			want:  10,
		},
		{
			name:  "poster bonus",
			movie: domain.Movie{ID: 1, Title: "Poster", PosterPath: strPtr("/p.jpg"), ReleaseDate: strPtr("2000-01-01")},
			want:  50,
		},
		{
			name:  "rating only",
			movie: domain.Movie{ID: 1, Title: "Rated", VoteAverage: floatPtr(7.5), ReleaseDate: strPtr("2000-01-01")},
			want:  75,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.movie, 2026); math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortIsStableForEqualScores(t *testing.T) {
	entries := []Entry{
		{Key: "a", Movie: domain.Movie{ID: 1, Title: "A", ReleaseDate: strPtr("2001-01-01")}},
		{Key: "b", Movie: domain.Movie{ID: 2, Title: "B", PosterPath: strPtr("/b.jpg")}},
		{Key: "c", Movie: domain.Movie{ID: 3, Title: "C", ReleaseDate: strPtr("2002-01-01")}},
		{Key: "d", Movie: domain.Movie{ID: 4, Title: "D", ReleaseDate: strPtr("1990-01-01")}},
	}
	sorted := Sort(entries, 2026)

	keys := make([]string, 0, len(sorted))
	for _, entry := range sorted {
		keys = append(keys, entry.Key)
	}
	want := []string{"b", "a", "c", "d"}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("order = %v, want %v", keys, want)
		}
	}
	if entries[0].Score != 0 {
		t.Fatal("Sort must not write scores into its input")
	}
}

func TestSortDescending(t *testing.T) {
	entries := []Entry{
		{Key: "low", Movie: domain.Movie{ID: 1, Title: "Low", VoteAverage: floatPtr(2)}},
		{Key: "high", Movie: domain.Movie{ID: 2, Title: "High", VoteAverage: floatPtr(9), PosterPath: strPtr("/h.jpg")}},
		{Key: "mid", Movie: domain.Movie{ID: 3, Title: "Mid", VoteAverage: floatPtr(6), VoteCount: intPtr(50)}},
	}
	sorted := Sort(entries, 2026)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Score < sorted[i].Score {
			t.Fatalf("not descending at %d: %v < %v", i, sorted[i-1].Score, sorted[i].Score)
		}
	}
	if sorted[0].Key != "high" {
		t.Fatalf("expected high first, got %s", sorted[0].Key)
	}
}

func TestFlattenMoviesAndPeople(t *testing.T) {
	results := []domain.SearchResult{
		domain.MovieResult{Movie: domain.Movie{ID: 1, Title: "Direct"}},
		domain.PersonResult{Person: domain.Person{
			ID:   7,
			Name: "Ann",
			KnownFor: []domain.KnownFor{
				{MediaType: domain.MediaTypeMovie, Movie: domain.Movie{ID: 2, Title: "X"}},
			},
		}},
	}
	entries := Flatten(results)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Movie.Title != "Direct" {
		t.Fatalf("unexpected first title %q", entries[0].Movie.Title)
	}
	if entries[1].Movie.Title != "X (featuring Ann)" {
		t.Fatalf("unexpected relabeled title %q", entries[1].Movie.Title)
	}
	person := results[1].(domain.PersonResult)
	if person.KnownFor[0].Title != "X" {
		t.Fatal("flatten mutated the source payload")
	}
}

func TestFlattenDropsOtherVariants(t *testing.T) {
	results := []domain.SearchResult{
		domain.OtherResult{ID: 10, Tag: "tv"},
		domain.OtherResult{ID: 11},
		domain.PersonResult{Person: domain.Person{
			ID:   3,
			Name: "Bo",
			KnownFor: []domain.KnownFor{
				{MediaType: "tv", Movie: domain.Movie{ID: 12, Title: "Show"}},
				{MediaType: domain.MediaTypeMovie, Movie: domain.Movie{ID: 13, Title: "Film"}},
			},
		}},
		domain.MovieResult{Movie: domain.Movie{ID: 0, Title: "No id"}},
		domain.MovieResult{Movie: domain.Movie{ID: 14, Title: "  "}},
	}
	entries := Flatten(results)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %+v", entries)
	}
	if entries[0].Movie.ID != 13 || entries[0].Movie.Title != "Film (featuring Bo)" {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestFlattenKeepsDuplicatesWithDistinctKeys(t *testing.T) {
	shared := domain.Movie{ID: 5, Title: "Shared"}
	results := []domain.SearchResult{
		domain.MovieResult{Movie: shared},
		domain.MovieResult{Movie: shared},
		domain.PersonResult{Person: domain.Person{ID: 1, Name: "A", KnownFor: []domain.KnownFor{{MediaType: domain.MediaTypeMovie, Movie: shared}}}},
		domain.PersonResult{Person: domain.Person{ID: 2, Name: "B", KnownFor: []domain.KnownFor{{MediaType: domain.MediaTypeMovie, Movie: shared}}}},
	}
	entries := Flatten(results)
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	keys := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := keys[entry.Key]; dup {
			t.Fatalf("duplicate key %q", entry.Key)
		}
		keys[entry.Key] = struct{}{}
	}
}

func TestRankerProcessUsesClock(t *testing.T) {
	ranker := NewRanker(func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) })
	entries := ranker.Process([]domain.SearchResult{
		domain.MovieResult{Movie: domain.Movie{ID: 1, Title: "Old", ReleaseDate: strPtr("1980-01-01")}},
		domain.MovieResult{Movie: domain.Movie{ID: 2, Title: "New", ReleaseDate: strPtr("2026-01-01")}},
	})
	if len(entries) != 2 || entries[0].Movie.Title != "New" {
		t.Fatalf("unexpected ranking %+v", entries)
	}
	if entries[0].Score != 10 {
		t.Fatalf("expected recency score 10, got %v", entries[0].Score)
	}
}
