// Package suggest implements the typeahead engine as a pure transition
// function. Callers feed events in and execute the returned effects
// (timers, fetches, commits); the engine never blocks or spawns work.
package suggest

import (
	"time"
	"unicode/utf8"

	"moviesearch/internal/domain"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDebouncing
	PhaseFetching
	PhasePopulated
	PhaseEmpty
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDebouncing:
		return "debouncing"
	case PhaseFetching:
		return "fetching"
	case PhasePopulated:
		return "populated"
	case PhaseEmpty:
		return "empty"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

const (
	KeyArrowDown = "ArrowDown"
	KeyArrowUp   = "ArrowUp"
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
)

type Config struct {
	MinChars int
	Debounce time.Duration
	Limit    int
}

func DefaultConfig() Config {
	return Config{
		MinChars: 2,
		Debounce: 300 * time.Millisecond,
		Limit:    5,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MinChars <= 0 {
		c.MinChars = def.MinChars
	}
	if c.Debounce <= 0 {
		c.Debounce = def.Debounce
	}
	if c.Limit <= 0 {
		c.Limit = def.Limit
	}
	return c
}

// State is a value; Transition never mutates the slices it was given.
//
// TimerGen identifies the only debounce timer allowed to fire. Seq identifies
// the only fetch whose reply may be applied. Both only ever grow, including
// across Reset, so events from before a reset stay stale.
type State struct {
	Text     string
	Phase    Phase
	Items    []domain.Suggestion
	Selected int
	Open     bool
	TimerGen uint64
	Seq      uint64
	InFlight bool
}

func NewState() State {
	return State{Selected: -1}
}

// Visible reports whether the dropdown should be drawn.
func (s State) Visible() bool {
	return s.Open && len(s.Items) > 0
}

type Event interface{ isEvent() }

type (
	Input           struct{ Text string }
	TimerFired      struct{ Gen uint64 }
	ResponseArrived struct {
		Seq     uint64
		Results []domain.SearchResult
		Err     error
	}
	Key    struct{ Name string }
	Pick   struct{ Index int }
	Submit struct{}
	Focus  struct{}
	Blur   struct{}
	Reset  struct{}
)

func (Input) isEvent()           {}
func (TimerFired) isEvent()      {}
func (ResponseArrived) isEvent() {}
func (Key) isEvent()             {}
func (Pick) isEvent()            {}
func (Submit) isEvent()          {}
func (Focus) isEvent()           {}
func (Blur) isEvent()            {}
func (Reset) isEvent()           {}

type Effect interface{ isEffect() }

type (
	// ScheduleDebounce replaces any pending debounce timer.
	ScheduleDebounce struct {
		Gen   uint64
		Delay time.Duration
	}
	CancelDebounce struct{}
	// Fetch asks for page 1 of a multi-search for Query.
	Fetch struct {
		Seq   uint64
		Query string
	}
	// Commit asks the session to search for Term.
	Commit     struct{ Term string }
	LogFailure struct {
		Query string
		Err   error
	}
	DiscardStale struct{ Seq uint64 }
)

func (ScheduleDebounce) isEffect() {}
func (CancelDebounce) isEffect()   {}
func (Fetch) isEffect()            {}
func (Commit) isEffect()           {}
func (LogFailure) isEffect()       {}
func (DiscardStale) isEffect()     {}

// Transition applies one event and returns the next state along with the
// effects the caller must execute, in order.
func (c Config) Transition(s State, ev Event) (State, []Effect) {
	c = c.normalized()
	switch e := ev.(type) {
	case Input:
		return c.onInput(s, e.Text)
	case TimerFired:
		return c.onTimer(s, e.Gen)
	case ResponseArrived:
		return c.onResponse(s, e)
	case Key:
		return c.onKey(s, e.Name)
	case Pick:
		if e.Index < 0 || e.Index >= len(s.Items) {
			return s, nil
		}
		return commit(s, s.Items[e.Index].Title)
	case Submit:
		return commit(s, s.Text)
	case Focus:
		s.Open = true
		return s, nil
	case Blur:
		s.Open = false
		s.Selected = -1
		return s, nil
	case Reset:
		next := NewState()
		next.TimerGen = s.TimerGen + 1
		next.Seq = s.Seq + 1
		return next, []Effect{CancelDebounce{}}
	default:
		return s, nil
	}
}

func (c Config) onInput(s State, text string) (State, []Effect) {
	s.Text = text
	s.Open = true
	s.Selected = -1
	s.TimerGen++
	if utf8.RuneCountInString(text) < c.MinChars {
		s.Items = nil
		s.Phase = PhaseIdle
		s.Seq++
		s.InFlight = false
		return s, []Effect{CancelDebounce{}}
	}
	s.Phase = PhaseDebouncing
	return s, []Effect{ScheduleDebounce{Gen: s.TimerGen, Delay: c.Debounce}}
}

func (c Config) onTimer(s State, gen uint64) (State, []Effect) {
	if gen != s.TimerGen || s.Phase != PhaseDebouncing {
		return s, nil
	}
	s.Seq++
	s.InFlight = true
	s.Phase = PhaseFetching
	return s, []Effect{Fetch{Seq: s.Seq, Query: s.Text}}
}

func (c Config) onResponse(s State, e ResponseArrived) (State, []Effect) {
	if e.Seq != s.Seq || !s.InFlight {
		return s, []Effect{DiscardStale{Seq: e.Seq}}
	}
	s.InFlight = false
	s.Selected = -1
	// A reply for the latest request can land while a newer keystroke is
	// still debouncing; it is applied but the phase stays Debouncing.
	settle := func(p Phase) {
		if s.Phase != PhaseDebouncing {
			s.Phase = p
		}
	}
	if e.Err != nil {
		s.Items = nil
		settle(PhaseFailed)
		return s, []Effect{LogFailure{Query: s.Text, Err: e.Err}}
	}
	s.Items = Project(e.Results, c.Limit)
	if len(s.Items) == 0 {
		settle(PhaseEmpty)
	} else {
		settle(PhasePopulated)
	}
	return s, nil
}

func (c Config) onKey(s State, name string) (State, []Effect) {
	switch name {
	case KeyArrowDown:
		if !s.Visible() {
			return s, nil
		}
		if s.Selected < len(s.Items)-1 {
			s.Selected++
		}
		return s, nil
	case KeyArrowUp:
		if !s.Visible() {
			return s, nil
		}
		if s.Selected > -1 {
			s.Selected--
		}
		return s, nil
	case KeyEnter:
		if s.Visible() && s.Selected >= 0 && s.Selected < len(s.Items) {
			return commit(s, s.Items[s.Selected].Title)
		}
		return commit(s, s.Text)
	case KeyEscape:
		s.Open = false
		s.Selected = -1
		return s, nil
	default:
		return s, nil
	}
}

// commit closes the dropdown, drops any pending debounce or in-flight fetch
// and hands term to the session.
func commit(s State, term string) (State, []Effect) {
	s.Text = term
	s.Open = false
	s.Selected = -1
	s.TimerGen++
	if s.InFlight {
		s.Seq++
		s.InFlight = false
	}
	if s.Phase == PhaseDebouncing || s.Phase == PhaseFetching {
		s.Phase = PhaseIdle
	}
	return s, []Effect{CancelDebounce{}, Commit{Term: term}}
}
