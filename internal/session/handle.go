package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"moviesearch/internal/metrics"
	"moviesearch/internal/ranking"
	"moviesearch/internal/suggest"
)

func (s *Session) handle(ev Event) {
	switch e := ev.(type) {
	case Input:
		s.applySuggest(suggest.Input{Text: e.Text})
	case Key:
		s.applySuggest(suggest.Key{Name: e.Name})
	case Submit:
		s.applySuggest(suggest.Submit{})
	case Pick:
		s.applySuggest(suggest.Pick{Index: e.Index})
	case Focus:
		s.applySuggest(suggest.Focus{})
	case Blur:
		s.applySuggest(suggest.Blur{})
	case debounceFired:
		s.debounce.clear()
		s.applySuggest(suggest.TimerFired{Gen: e.gen})
	case suggestReply:
		s.applySuggest(suggest.ResponseArrived{Seq: e.seq, Results: e.results, Err: e.err})
	case searchReply:
		s.onSearchReply(e)
	case revealTick:
		s.onRevealTick(e.gen)
	case NextPage:
		if s.hasNext() {
			s.trySubmit(s.term, s.page+1)
		}
	case PrevPage:
		if s.hasPrev() {
			s.trySubmit(s.term, s.page-1)
		}
	case OpenDetail:
		for _, entry := range s.entries {
			if entry.Key == e.Key {
				s.selected = e.Key
				return
			}
		}
	case CloseDetail:
		s.selected = ""
	case Reset:
		s.reset()
	default:
		s.logger.Warn("unhandled session event", slog.String("event", fmt.Sprintf("%T", ev)))
	}
}

func (s *Session) applySuggest(ev suggest.Event) {
	next, effects := s.suggestCfg.Transition(s.suggest, ev)
	s.suggest = next
	for _, effect := range effects {
		s.runEffect(effect)
	}
}

func (s *Session) runEffect(effect suggest.Effect) {
	switch e := effect.(type) {
	case suggest.ScheduleDebounce:
		gen := e.Gen
		s.debounce.set(s.clock.AfterFunc(e.Delay, func() {
			s.Post(debounceFired{gen: gen})
		}))
	case suggest.CancelDebounce:
		s.debounce.stop()
	case suggest.Fetch:
		s.fetchSuggestions(e.Seq, e.Query)
	case suggest.Commit:
		s.trySubmit(e.Term, 1)
	case suggest.LogFailure:
		s.logger.Warn("suggestion fetch failed",
			slog.String("query", e.Query),
			slog.String("error", e.Err.Error()),
		)
	case suggest.DiscardStale:
		metrics.StaleRepliesTotal.WithLabelValues("suggestion").Inc()
		s.logger.Debug("stale suggestion reply discarded", slog.Uint64("seq", e.Seq))
	}
}

func (s *Session) fetchSuggestions(seq uint64, query string) {
	if s.suggestCancel != nil {
		s.suggestCancel()
	}
	s.suggestCancel = s.launch(func(ctx context.Context) {
		page, err := s.searcher.SearchMulti(ctx, query, 1)
		s.Post(suggestReply{seq: seq, results: page.Results, err: err})
	})
}

func (s *Session) trySubmit(term string, page int) {
	if err := s.submit(term, page); err != nil && !errors.Is(err, ErrValidationSkip) {
		s.logger.Error("search submit failed", slog.String("error", err.Error()))
	}
}

// submit starts the primary search for term. Only the reply of the latest
// submit is applied.
func (s *Session) submit(term string, page int) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return ErrValidationSkip
	}
	if page < 1 {
		page = 1
	}

	s.searchSeq++
	seq := s.searchSeq
	s.loading = true
	s.errMsg = ""

	if s.searchCancel != nil {
		s.searchCancel()
	}
	s.searchCancel = s.launch(func(ctx context.Context) {
		result, err := s.searcher.SearchMulti(ctx, term, page)
		s.Post(searchReply{seq: seq, term: term, requested: page, page: result, err: err})
	})
	s.logger.Debug("search submitted", slog.String("term", term), slog.Int("page", page))
	return nil
}

func (s *Session) onSearchReply(r searchReply) {
	if r.seq != s.searchSeq {
		metrics.StaleRepliesTotal.WithLabelValues("search").Inc()
		return
	}
	s.searchCancel = nil
	s.loading = false
	if r.err != nil {
		s.errMsg = FetchFailedMessage
		s.logger.Warn("search failed",
			slog.String("term", r.term),
			slog.Int("page", r.requested),
			slog.String("error", r.err.Error()),
		)
		return
	}

	s.entries = s.ranker.Process(r.page.Results)
	s.term = r.term
	s.totalPages = max(r.page.TotalPages, 0)
	s.totalResults = max(r.page.TotalResults, 0)
	page := r.page.Page
	if page < 1 {
		page = r.requested
	}
	if s.totalPages > 0 {
		page = min(max(page, 1), s.totalPages)
	}
	s.page = page
	s.selected = ""

	s.reveal.Replace(len(s.entries))
	s.scheduleReveal()
}

func (s *Session) scheduleReveal() {
	s.revealTimer.stop()
	if !s.reveal.Pending() {
		return
	}
	s.revealGen++
	gen := s.revealGen
	s.revealTimer.set(s.clock.AfterFunc(s.revealInterval, func() {
		s.Post(revealTick{gen: gen})
	}))
}

func (s *Session) onRevealTick(gen uint64) {
	if gen != s.revealGen {
		return
	}
	s.revealTimer.clear()
	s.reveal.Tick()
	s.scheduleReveal()
}

func (s *Session) reset() {
	s.applySuggest(suggest.Reset{})
	s.stopTimers()
	s.revealGen++
	s.searchSeq++
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}
	if s.suggestCancel != nil {
		s.suggestCancel()
		s.suggestCancel = nil
	}

	s.entries = nil
	s.reveal.Reset()
	s.term = ""
	s.page = 0
	s.totalPages = 0
	s.totalResults = 0
	s.loading = false
	s.errMsg = ""
	s.selected = ""

	if s.navigator != nil {
		s.navigator.Refresh()
	}
}

func (s *Session) hasPrev() bool {
	return s.totalPages > 0 && s.page > 1
}

func (s *Session) hasNext() bool {
	return s.totalPages > 0 && s.page < s.totalPages
}

func (s *Session) selectedEntry() (ranking.Entry, bool) {
	if s.selected == "" {
		return ranking.Entry{}, false
	}
	for _, entry := range s.entries {
		if entry.Key == s.selected {
			return entry, true
		}
	}
	return ranking.Entry{}, false
}
