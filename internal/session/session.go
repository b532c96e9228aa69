// Package session drives one interactive search: typeahead suggestions,
// the primary paginated search, reveal pacing and the detail selection.
//
// All state is owned by a single loop goroutine (Run). Timers and network
// replies never touch state; they post events back into the loop.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"moviesearch/internal/clock"
	"moviesearch/internal/domain"
	"moviesearch/internal/ranking"
	"moviesearch/internal/reveal"
	"moviesearch/internal/suggest"
)

// ErrValidationSkip is returned for a search with a blank term. It is never
// shown to the user.
var ErrValidationSkip = errors.New("empty search term")

const eventBuffer = 64

type Searcher interface {
	SearchMulti(ctx context.Context, query string, page int) (domain.SearchPage, error)
}

// Navigator is the host page. Refresh is called when the session is reset.
type Navigator interface {
	Refresh()
}

type Session struct {
	id             string
	searcher       Searcher
	images         ImageResolver
	navigator      Navigator
	render         func(View)
	clock          clock.Clock
	ranker         *ranking.Ranker
	logger         *slog.Logger
	suggestCfg     suggest.Config
	revealInterval time.Duration
	requestTimeout time.Duration

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     conc.WaitGroup

	// Loop-owned state below.
	suggest       suggest.State
	debounce      timerSlot
	revealTimer   timerSlot
	revealGen     uint64
	reveal        *reveal.Controller
	entries       []ranking.Entry
	term          string
	page          int
	totalPages    int
	totalResults  int
	loading       bool
	errMsg        string
	searchSeq     uint64
	searchCancel  context.CancelFunc
	suggestCancel context.CancelFunc
	selected      string
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithImages(images ImageResolver) Option {
	return func(s *Session) {
		if images != nil {
			s.images = images
		}
	}
}

func WithNavigator(nav Navigator) Option {
	return func(s *Session) { s.navigator = nav }
}

// WithRenderer registers a callback receiving a snapshot after every event.
// It runs on the loop goroutine and must not block.
func WithRenderer(render func(View)) Option {
	return func(s *Session) { s.render = render }
}

func WithSuggestConfig(cfg suggest.Config) Option {
	return func(s *Session) { s.suggestCfg = cfg }
}

func WithReveal(batch int, interval time.Duration) Option {
	return func(s *Session) {
		s.reveal = reveal.New(batch)
		if interval > 0 {
			s.revealInterval = interval
		}
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Session) { s.requestTimeout = timeout }
}

func New(searcher Searcher, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		searcher:       searcher,
		images:         noImages{},
		clock:          clock.Real{},
		logger:         slog.Default(),
		suggestCfg:     suggest.DefaultConfig(),
		revealInterval: reveal.DefaultInterval,
		events:         make(chan Event, eventBuffer),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		suggest:        suggest.NewState(),
		reveal:         reveal.New(reveal.DefaultBatch),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ranker = ranking.NewRanker(s.clock.Now)
	if s.id != "" {
		s.logger = s.logger.With(slog.String("session", s.id))
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Post queues ev for the loop. It reports false once the session is closed.
func (s *Session) Post(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Run processes events until ctx is done or Close is called. The initial
// snapshot is rendered before the first event. When ctx ends the session is
// closed, so later Posts fail instead of filling the queue.
func (s *Session) Run(ctx context.Context) error {
	defer s.stopTimers()
	s.publish()
	for {
		select {
		case <-s.done:
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case <-s.done:
			return nil
		case ev := <-s.events:
			s.handle(ev)
			s.publish()
		}
	}
}

// Close stops the loop, cancels in-flight requests and waits for their
// goroutines to finish. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Session) publish() {
	if s.render != nil {
		s.render(s.View())
	}
}

// launch runs fn on a tracked goroutine with a request-scoped context.
// The returned cancel aborts just this request.
func (s *Session) launch(fn func(ctx context.Context)) context.CancelFunc {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.requestTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return cancel
	}
	s.wg.Go(func() {
		defer cancel()
		fn(ctx)
	})
	return cancel
}

func (s *Session) stopTimers() {
	s.debounce.stop()
	s.revealTimer.stop()
}

// timerSlot holds at most one pending timer; setting a new one stops the old.
type timerSlot struct {
	timer clock.Timer
}

func (t *timerSlot) set(timer clock.Timer) {
	t.stop()
	t.timer = timer
}

func (t *timerSlot) stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *timerSlot) clear() {
	t.timer = nil
}
