package suggest

import "moviesearch/internal/domain"

// Project keeps movie and person results in their original order, truncates
// to limit and converts each one into a Suggestion.
func Project(results []domain.SearchResult, limit int) []domain.Suggestion {
	out := make([]domain.Suggestion, 0, min(len(results), limit))
	for _, result := range results {
		if len(out) >= limit {
			break
		}
		switch item := result.(type) {
		case domain.MovieResult:
			out = append(out, fromMovie(item.Movie))
		case domain.PersonResult:
			out = append(out, fromPerson(item.Person))
		default:
		}
	}
	return out
}

func fromMovie(movie domain.Movie) domain.Suggestion {
	suggestion := domain.Suggestion{
		ID:          movie.ID,
		Title:       movie.Title,
		MediaType:   domain.MediaTypeMovie,
		ImagePath:   movie.PosterPath,
		VoteAverage: movie.VoteAverage,
	}
	if year, ok := movie.ReleaseYear(); ok {
		suggestion.Year = &year
	}
	return suggestion
}

func fromPerson(person domain.Person) domain.Suggestion {
	suggestion := domain.Suggestion{
		ID:        person.ID,
		Title:     person.Name,
		MediaType: domain.MediaTypePerson,
		ImagePath: person.ProfilePath,
	}
	if len(person.KnownFor) == 0 {
		return suggestion
	}
	first := person.KnownFor[0]
	if year, ok := first.ReleaseYear(); ok {
		suggestion.Year = &year
	}
	if first.Title != "" {
		character := first.Title
		suggestion.Character = &character
	}
	return suggestion
}
