package tmdb

import "strings"

const (
	DefaultImageBaseURL = "https://image.tmdb.org/t/p"

	WidthSuggestion = "w92"
	WidthPoster     = "w500"
)

var allowedWidths = map[string]struct{}{
	"w92":      {},
	"w154":     {},
	"w185":     {},
	"w342":     {},
	"w500":     {},
	"w780":     {},
	"original": {},
}

func ValidWidth(width string) bool {
	_, ok := allowedWidths[width]
	return ok
}

// Images resolves path fragments against the image CDN.
type Images struct {
	base string
}

func NewImages(baseURL string) Images {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultImageBaseURL
	}
	return Images{base: base}
}

func (i Images) Base() string {
	if i.base == "" {
		return DefaultImageBaseURL
	}
	return i.base
}

// ImageURL returns "" when there is no fragment, so callers can drop the image
// element instead of requesting a broken URL.
func (i Images) ImageURL(width string, fragment *string) string {
	if fragment == nil {
		return ""
	}
	path := strings.TrimSpace(*fragment)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return i.Base() + "/" + width + path
}
