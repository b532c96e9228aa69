package domain

// SearchResult is one entry of a multi-search reply. It is a closed sum over
// MovieResult, PersonResult and OtherResult; consumers switch on the concrete
// type and drop OtherResult.
type SearchResult interface {
	MediaType() MediaType
	isSearchResult()
}

type MovieResult struct {
	Movie
}

func (MovieResult) MediaType() MediaType { return MediaTypeMovie }
func (MovieResult) isSearchResult()      {}

type PersonResult struct {
	Person
}

func (PersonResult) MediaType() MediaType { return MediaTypePerson }
func (PersonResult) isSearchResult()      {}

// OtherResult stands for any variant this service does not handle (tv, or a
// missing tag). Tag keeps the raw discriminant for logging.
type OtherResult struct {
	ID  int
	Tag string
}

func (o OtherResult) MediaType() MediaType { return MediaType(o.Tag) }
func (OtherResult) isSearchResult()        {}

type SearchPage struct {
	Results      []SearchResult
	Page         int
	TotalPages   int
	TotalResults int
}

// Suggestion is the typeahead projection of a SearchResult.
type Suggestion struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	MediaType   MediaType `json:"mediaType"`
	Year        *int      `json:"year,omitempty"`
	Character   *string   `json:"character,omitempty"`
	ImagePath   *string   `json:"imagePath,omitempty"`
	VoteAverage *float64  `json:"voteAverage,omitempty"`
}
