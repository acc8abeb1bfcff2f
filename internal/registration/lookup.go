package registration

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Fetcher resolves a query against a remote source.
type Fetcher[T any] func(ctx context.Context, query string) ([]T, error)

// LookupConfig parametrizes a Lookup for one use site.
type LookupConfig struct {
	Name      string
	MinLength int
	Delay     time.Duration
}

// Default lookup parameters per use site.
var (
	CityLookupConfig     = LookupConfig{Name: "city", MinLength: 2, Delay: 300 * time.Millisecond}
	ActivityLookupConfig = LookupConfig{Name: "activity_code", MinLength: 3, Delay: 350 * time.Millisecond}
	ProgramLookupConfig  = LookupConfig{Name: "program", MinLength: 2, Delay: 250 * time.Millisecond}
)

// LookupResult is the suggestion list currently visible for a lookup.
type LookupResult[T any] struct {
	Query      string `json:"query"`
	Items      []T    `json:"items"`
	Generation uint64 `json:"generation"`
	Pending    bool   `json:"pending"`
}

// Lookup is a debounced asynchronous search. Each Search supersedes the
// previous one: a pending timer is stopped, and a response that arrives after
// a newer Search was issued is dropped. In-flight fetches are never cancelled;
// only their results are discarded.
type Lookup[T any] struct {
	cfg    LookupConfig
	fetch  Fetcher[T]
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	current    LookupResult[T]
	onChange   func(LookupResult[T])
	closed     bool
}

// NewLookup constructs a Lookup using fetch as its remote source.
func NewLookup[T any](cfg LookupConfig, fetch Fetcher[T], logger *slog.Logger) *Lookup[T] {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Lookup[T]{
		cfg:    cfg,
		fetch:  fetch,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnChange registers a callback invoked whenever the visible result changes.
func (l *Lookup[T]) OnChange(fn func(LookupResult[T])) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Search schedules a fetch for query after the configured delay. Queries
// shorter than the minimum length clear the suggestions immediately and
// issue no fetch.
func (l *Lookup[T]) Search(query string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.generation++
	gen := l.generation
	l.stopTimerLocked()

	if utf8.RuneCountInString(strings.TrimSpace(query)) < l.cfg.MinLength {
		l.current = LookupResult[T]{Query: query, Generation: gen}
		snapshot, notify := l.current, l.onChange
		l.mu.Unlock()
		recordLookup(l.cfg.Name, "short")
		if notify != nil {
			notify(snapshot)
		}
		return
	}

	l.current.Query = query
	l.current.Pending = true
	l.timer = time.AfterFunc(l.cfg.Delay, func() { l.dispatch(gen, query) })
	l.mu.Unlock()
}

func (l *Lookup[T]) dispatch(gen uint64, query string) {
	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.mu.Unlock()

	items, err := l.fetch(l.ctx, strings.TrimSpace(query))
	if err != nil {
		l.logger.Warn("lookup fetch failed",
			slog.String("lookup", l.cfg.Name),
			slog.String("query", query),
			slog.Any("error", err))
		items = nil
	}

	l.mu.Lock()
	if gen != l.generation {
		l.mu.Unlock()
		recordLookup(l.cfg.Name, "stale")
		return
	}
	l.current = LookupResult[T]{Query: query, Items: items, Generation: gen}
	snapshot, notify := l.current, l.onChange
	l.mu.Unlock()

	if err != nil {
		recordLookup(l.cfg.Name, "error")
	} else {
		recordLookup(l.cfg.Name, "ok")
	}
	if notify != nil {
		notify(snapshot)
	}
}

// Result returns the currently visible suggestions.
func (l *Lookup[T]) Result() LookupResult[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.current
	out.Items = append([]T(nil), l.current.Items...)
	return out
}

// Reset clears query and suggestions and invalidates anything in flight.
// Selecting a suggestion goes through Reset.
func (l *Lookup[T]) Reset() {
	l.mu.Lock()
	l.generation++
	l.stopTimerLocked()
	l.current = LookupResult[T]{Generation: l.generation}
	snapshot, notify := l.current, l.onChange
	l.mu.Unlock()
	if notify != nil {
		notify(snapshot)
	}
}

// Close stops any pending timer and cancels in-flight fetches.
func (l *Lookup[T]) Close() {
	l.mu.Lock()
	l.closed = true
	l.generation++
	l.stopTimerLocked()
	l.mu.Unlock()
	l.cancel()
}

func (l *Lookup[T]) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
