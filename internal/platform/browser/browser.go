// Package browser drives a paginated record view: it owns the current query,
// dispatches a fetch for every effective query change and publishes
// snapshots to subscribers.
//
// Only the response to the most recently dispatched fetch may update the
// browser. Earlier responses are still allowed to complete but are dropped
// when they arrive; no cancellation is sent to the data source.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/pkg/pagination"
)

// ErrClosed is returned by operations on a closed Browser.
var ErrClosed = errors.New("browser is closed")

// Status is the phase of the browser's state machine.
type Status int

const (
	Idle Status = iota
	Loading
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Fetcher loads one page of rows for a query.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q query.State) (*pagination.Page[T], error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[T any] func(ctx context.Context, q query.State) (*pagination.Page[T], error)

func (f FetcherFunc[T]) Fetch(ctx context.Context, q query.State) (*pagination.Page[T], error) {
	return f(ctx, q)
}

// FetchError records a failed fetch and the query it was issued for.
type FetchError struct {
	Query query.State
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Snapshot is an immutable view of the browser at one point in time.
type Snapshot[T any] struct {
	Status Status
	// Query is the query currently displayed or awaited.
	Query query.State
	// Page is the last page loaded successfully, possibly for an earlier
	// query. It is nil until the first fetch succeeds.
	Page *pagination.Page[T]
	// PageQuery is the query Page was loaded for.
	PageQuery query.State
	// Err is set only in the Failed state.
	Err *FetchError
	// Seq is the tag of the most recently dispatched fetch.
	Seq uint64
}

// Browser is safe for concurrent use. It is the only writer of its query
// and page.
type Browser[T any] struct {
	schema  *query.Schema
	fetcher Fetcher[T]
	logger  zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	seq       uint64
	status    Status
	query     query.State
	page      *pagination.Page[T]
	pageQuery query.State
	err       *FetchError
	closed    bool
	nextSub   int
	subs      map[int]chan Snapshot[T]
}

// New returns an Idle browser holding the schema's default query. Nothing is
// fetched until Start, Restore or Apply is called.
func New[T any](schema *query.Schema, fetcher Fetcher[T], logger zerolog.Logger) *Browser[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &Browser[T]{
		schema:  schema,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "browser").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		query:   schema.Defaults(),
		subs:    make(map[int]chan Snapshot[T]),
	}
}

// Start fetches the current query.
func (b *Browser[T]) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.dispatch()
	return nil
}

// Restore replaces the query with one decoded from its shareable form and
// fetches it.
func (b *Browser[T]) Restore(values url.Values) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.query = b.schema.Decode(values)
	b.dispatch()
	return nil
}

// Apply merges p into the current query. A fetch is dispatched only when
// the resulting query differs from the current one, or when nothing has
// been fetched yet.
func (b *Browser[T]) Apply(p query.Patch) (query.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return query.State{}, ErrClosed
	}
	next := b.schema.ApplyUpdate(b.query, p)
	if next.Equal(b.query) && b.status != Idle {
		return next.Clone(), nil
	}
	b.query = next
	b.dispatch()
	return next.Clone(), nil
}

// Refresh re-issues the current query. It is the only retry path after a
// failure.
func (b *Browser[T]) Refresh() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.dispatch()
	return nil
}

// Snapshot returns the current state.
func (b *Browser[T]) Snapshot() Snapshot[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

// Encoded returns the shareable form of the current query.
func (b *Browser[T]) Encoded() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.schema.Encode(b.query)
}

// Subscribe returns a channel receiving every state change, starting with
// the current state. A slow subscriber only ever sees the latest snapshot.
// The channel is closed by cancel or by Close.
func (b *Browser[T]) Subscribe() (<-chan Snapshot[T], func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Snapshot[T], 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	ch <- b.snapshot()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Await blocks until the most recent fetch has settled and returns the
// resulting snapshot. An Idle browser returns immediately.
func (b *Browser[T]) Await(ctx context.Context) (Snapshot[T], error) {
	ch, cancel := b.Subscribe()
	defer cancel()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return b.Snapshot(), ErrClosed
			}
			if snap.Status != Loading {
				return snap, nil
			}
		case <-ctx.Done():
			return b.Snapshot(), ctx.Err()
		}
	}
}

// Wait blocks until every dispatched fetch has returned, including the
// ones whose responses were discarded.
func (b *Browser[T]) Wait() {
	b.wg.Wait()
}

// Close stops the browser. Responses still in flight are discarded and
// subscriber channels are closed.
func (b *Browser[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cancel()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// dispatch must be called with mu held.
func (b *Browser[T]) dispatch() {
	b.seq++
	seq := b.seq
	q := b.query.Clone()

	b.status = Loading
	b.err = nil
	b.publish()

	b.logger.Debug().Uint64("seq", seq).Str("query", b.schema.String(q)).Msg("fetch dispatched")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		page, err := b.fetcher.Fetch(b.ctx, q)
		b.complete(seq, q, page, err)
	}()
}

func (b *Browser[T]) complete(seq uint64, q query.State, page *pagination.Page[T], err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if seq != b.seq {
		b.logger.Debug().Uint64("seq", seq).Uint64("latest", b.seq).Msg("discarding stale response")
		return
	}

	if err == nil && page == nil {
		err = errors.New("data source returned no page")
	}
	if err == nil {
		err = page.Validate()
	}
	if err != nil {
		b.status = Failed
		b.err = &FetchError{Query: q, Err: err}
		b.logger.Warn().Err(err).Uint64("seq", seq).Msg("fetch failed")
		b.publish()
		return
	}

	b.status = Loaded
	b.page = page
	b.pageQuery = q
	b.publish()
}

func (b *Browser[T]) snapshot() Snapshot[T] {
	return Snapshot[T]{
		Status:    b.status,
		Query:     b.query.Clone(),
		Page:      b.page,
		PageQuery: b.pageQuery.Clone(),
		Err:       b.err,
		Seq:       b.seq,
	}
}

// publish must be called with mu held. Each channel has one slot; an unread
// snapshot is replaced by the newer one.
func (b *Browser[T]) publish() {
	snap := b.snapshot()
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
