package browser

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bharatemr/practice/internal/platform/query"
	"github.com/bharatemr/practice/pkg/pagination"
)

func testSchema(t *testing.T) *query.Schema {
	t.Helper()
	s, err := query.NewSchema(query.Config{
		Filters:         []query.Filter{{Name: "gender", Kind: query.String}},
		SortKeys:        []string{"createdAt", "name"},
		DefaultSort:     "createdAt",
		DefaultPageSize: 10,
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

// pageFor returns a one-row page whose row is the query's search text.
func pageFor(q query.State) *pagination.Page[string] {
	return pagination.NewPage([]string{q.Search}, 1, pagination.Params{Page: q.Page, PageSize: q.PageSize})
}

// gatedFetcher holds each fetch until the test releases it by search text.
type gatedFetcher struct {
	mu     sync.Mutex
	gates  map[string]chan error
	called chan string
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: make(map[string]chan error), called: make(chan string, 16)}
}

func (g *gatedFetcher) gate(search string) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[search]
	if !ok {
		ch = make(chan error, 1)
		g.gates[search] = ch
	}
	return ch
}

func (g *gatedFetcher) Fetch(ctx context.Context, q query.State) (*pagination.Page[string], error) {
	g.called <- q.Search
	if err := <-g.gate(q.Search); err != nil {
		return nil, err
	}
	return pageFor(q), nil
}

func (g *gatedFetcher) release(search string, err error) { g.gate(search) <- err }

func awaitSettled(t *testing.T, b *Browser[string]) Snapshot[string] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := b.Await(ctx)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	return snap
}

func TestBrowser_InitialState(t *testing.T) {
	b := New[string](testSchema(t), newGatedFetcher(), zerolog.Nop())
	defer b.Close()

	snap := b.Snapshot()
	if snap.Status != Idle {
		t.Errorf("expected idle, got %s", snap.Status)
	}
	if snap.Page != nil || snap.Err != nil {
		t.Error("expected no page and no error before the first fetch")
	}
	if len(b.Encoded()) != 0 {
		t.Errorf("expected empty encoding, got %v", b.Encoded())
	}
}

func TestBrowser_LoadsAfterStart(t *testing.T) {
	f := newGatedFetcher()
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	if got := b.Snapshot().Status; got != Loading {
		t.Errorf("expected loading right after start, got %s", got)
	}
	f.release("", nil)

	snap := awaitSettled(t, b)
	if snap.Status != Loaded {
		t.Fatalf("expected loaded, got %s", snap.Status)
	}
	if snap.Page == nil || len(snap.Page.Rows) != 1 {
		t.Errorf("expected one row, got %+v", snap.Page)
	}
}

func TestBrowser_DiscardsStaleResponse(t *testing.T) {
	f := newGatedFetcher()
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	if _, err := b.Apply(query.SetSearch("a")); err != nil {
		t.Fatal(err)
	}
	<-f.called
	if _, err := b.Apply(query.SetSearch("ab")); err != nil {
		t.Fatal(err)
	}
	<-f.called

	// B resolves first, then A arrives late.
	f.release("ab", nil)
	snap := awaitSettled(t, b)
	if snap.Page.Rows[0] != "ab" {
		t.Fatalf("expected rows for ab, got %v", snap.Page.Rows)
	}

	f.release("a", nil)
	b.Wait()

	snap = b.Snapshot()
	if snap.Status != Loaded {
		t.Errorf("expected loaded, got %s", snap.Status)
	}
	if snap.Page.Rows[0] != "ab" || snap.PageQuery.Search != "ab" {
		t.Errorf("stale response leaked into state: rows %v for %q", snap.Page.Rows, snap.PageQuery.Search)
	}
}

func TestBrowser_OutOfOrderTimings(t *testing.T) {
	delays := map[string]time.Duration{"a": 200 * time.Millisecond, "ab": 20 * time.Millisecond}
	f := FetcherFunc[string](func(ctx context.Context, q query.State) (*pagination.Page[string], error) {
		time.Sleep(delays[q.Search])
		return pageFor(q), nil
	})
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	b.Apply(query.SetSearch("a"))
	b.Apply(query.SetSearch("ab"))
	b.Wait()

	snap := b.Snapshot()
	if snap.Status != Loaded {
		t.Fatalf("expected loaded, got %s", snap.Status)
	}
	if got := snap.Page.Rows[0]; got != "ab" {
		t.Errorf("expected visible rows for ab, got %q", got)
	}
}

func TestBrowser_FailureKeepsLastGoodPage(t *testing.T) {
	f := newGatedFetcher()
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	b.Apply(query.SetSearch("ok"))
	<-f.called
	f.release("ok", nil)
	awaitSettled(t, b)

	boom := errors.New("connection reset")
	b.Apply(query.SetSearch("bad"))
	<-f.called
	f.release("bad", boom)

	snap := awaitSettled(t, b)
	if snap.Status != Failed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	if !errors.Is(snap.Err, boom) {
		t.Errorf("expected wrapped cause, got %v", snap.Err)
	}
	if snap.Err.Query.Search != "bad" {
		t.Errorf("expected error tagged with failed query, got %q", snap.Err.Query.Search)
	}
	if snap.Page == nil || snap.Page.Rows[0] != "ok" {
		t.Errorf("expected last good page to remain visible, got %+v", snap.Page)
	}

	// Refresh is the retry path.
	if err := b.Refresh(); err != nil {
		t.Fatal(err)
	}
	<-f.called
	f.release("bad", nil)
	snap = awaitSettled(t, b)
	if snap.Status != Loaded || snap.Err != nil {
		t.Errorf("expected loaded after refresh, got %s err %v", snap.Status, snap.Err)
	}
}

func TestBrowser_RejectsMalformedPage(t *testing.T) {
	f := FetcherFunc[string](func(ctx context.Context, q query.State) (*pagination.Page[string], error) {
		return &pagination.Page[string]{Rows: []string{"x"}, TotalItems: 0, Page: 1, PageSize: 10}, nil
	})
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	b.Start()
	snap := awaitSettled(t, b)
	if snap.Status != Failed {
		t.Errorf("expected failed for malformed page, got %s", snap.Status)
	}
}

func TestBrowser_ApplyWithoutChangeDoesNotRefetch(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	f := FetcherFunc[string](func(ctx context.Context, q query.State) (*pagination.Page[string], error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return pageFor(q), nil
	})
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	b.Apply(query.SetPage(2))
	b.Wait()
	b.Apply(query.SetPage(2))
	b.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected 1 fetch, got %d", calls)
	}
}

func TestBrowser_RestoreAndEncoded(t *testing.T) {
	f := FetcherFunc[string](func(ctx context.Context, q query.State) (*pagination.Page[string], error) {
		return pagination.NewPage[string](nil, 0, pagination.Params{Page: q.Page, PageSize: q.PageSize}), nil
	})
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	values := url.Values{"gender": {"FEMALE"}, "page": {"3"}}
	if err := b.Restore(values); err != nil {
		t.Fatal(err)
	}
	b.Wait()

	snap := b.Snapshot()
	if snap.Query.Page != 3 {
		t.Errorf("expected page 3, got %d", snap.Query.Page)
	}
	if got := b.Encoded().Encode(); got != "gender=FEMALE&page=3" {
		t.Errorf("unexpected encoding %q", got)
	}
}

func TestBrowser_SubscribeReceivesSnapshots(t *testing.T) {
	f := newGatedFetcher()
	b := New[string](testSchema(t), f, zerolog.Nop())
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	first := <-ch
	if first.Status != Idle {
		t.Errorf("expected idle first, got %s", first.Status)
	}

	b.Start()
	<-f.called
	f.release("", nil)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.Status == Loaded {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for loaded snapshot")
		}
	}
}

func TestBrowser_Close(t *testing.T) {
	f := newGatedFetcher()
	b := New[string](testSchema(t), f, zerolog.Nop())

	ch, _ := b.Subscribe()
	<-ch
	b.Start()
	<-f.called
	b.Close()
	f.release("", nil)
	b.Wait()

	if _, ok := <-ch; ok {
		// drain a snapshot published before close
		if _, ok := <-ch; ok {
			t.Error("expected subscriber channel to be closed")
		}
	}
	if got := b.Snapshot().Status; got != Loading {
		t.Errorf("expected response after close to be dropped, got %s", got)
	}
	if err := b.Refresh(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
