package session

import (
	"moviesearch/internal/domain"
)

// Event is anything the session loop processes. Client events are exported;
// timer and network completions are internal and only posted by the session
// itself.
type Event interface{ sessionEvent() }

// Client events. Input is a keystroke-level change of the search box text,
// Key a navigation key pressed in it, Submit a form submission of the current
// text and Pick activates the suggestion at Index with a pointer.
type (
	Input       struct{ Text string }
	Key         struct{ Name string }
	Submit      struct{}
	Pick        struct{ Index int }
	NextPage    struct{}
	PrevPage    struct{}
	OpenDetail  struct{ Key string }
	CloseDetail struct{}
	Reset       struct{}
	Focus       struct{}
	Blur        struct{}
)

type (
	debounceFired struct{ gen uint64 }
	revealTick    struct{ gen uint64 }
	suggestReply  struct {
		seq     uint64
		results []domain.SearchResult
		err     error
	}
	searchReply struct {
		seq       uint64
		term      string
		requested int
		page      domain.SearchPage
		err       error
	}
)

func (Input) sessionEvent()         {}
func (Key) sessionEvent()           {}
func (Submit) sessionEvent()        {}
func (Pick) sessionEvent()          {}
func (NextPage) sessionEvent()      {}
func (PrevPage) sessionEvent()      {}
func (OpenDetail) sessionEvent()    {}
func (CloseDetail) sessionEvent()   {}
func (Reset) sessionEvent()         {}
func (Focus) sessionEvent()         {}
func (Blur) sessionEvent()          {}
func (debounceFired) sessionEvent() {}
func (revealTick) sessionEvent()    {}
func (suggestReply) sessionEvent()  {}
func (searchReply) sessionEvent()   {}
