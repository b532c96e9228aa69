package suggest

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

type Segment struct {
	Text  string `json:"text"`
	Match bool   `json:"match"`
}

// Highlight splits text into alternating plain and matching segments, where
// a match is any case-insensitive occurrence of query. Both inputs are NFC
// normalized so composed and decomposed accents compare equal.
func Highlight(text, query string) []Segment {
	text = norm.NFC.String(text)
	if text == "" {
		return nil
	}
	query = norm.NFC.String(query)
	if strings.TrimSpace(query) == "" {
		return []Segment{{Text: text}}
	}

	runes := []rune(text)
	needle := []rune(query)
	n := len(needle)

	var segments []Segment
	plainStart := 0
	for i := 0; i+n <= len(runes); {
		if !strings.EqualFold(string(runes[i:i+n]), query) {
			i++
			continue
		}
		if plainStart < i {
			segments = append(segments, Segment{Text: string(runes[plainStart:i])})
		}
		segments = append(segments, Segment{Text: string(runes[i : i+n]), Match: true})
		i += n
		plainStart = i
	}
	if plainStart < len(runes) {
		segments = append(segments, Segment{Text: string(runes[plainStart:])})
	}
	return segments
}
