// Package pagination grows the room list one page at a time. A Controller
// is a single-flight, cursor-driven state machine: a visible load-more
// sentinel starts a fetch, the completion appends exactly one page, and a
// query change resets everything and orphans whatever was in flight.
//
// The controller never blocks. Trigger methods hand back a Ticket; the
// caller performs the fetch wherever it likes (a goroutine, a bubbletea
// command) and reports back through Complete on the control thread.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/timeaxis"
)

// State is the controller's position in its state machine.
type State int

const (
	Idle State = iota
	Fetching
	Exhausted
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Exhausted:
		return "exhausted"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Fetcher loads one page for q starting at cursor.
type Fetcher interface {
	FetchPage(ctx context.Context, q model.Query, cursor string) (*model.Page, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q model.Query, cursor string) (*model.Page, error)

// FetchPage calls f.
func (f FetcherFunc) FetchPage(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
	return f(ctx, q, cursor)
}

var (
	// ErrNotRetryable is returned by Retry outside the Error state.
	ErrNotRetryable = errors.New("nothing to retry")
	// ErrExhausted is returned by Retry once every page has been loaded.
	ErrExhausted = errors.New("all pages loaded")
)

// NetworkError wraps a failed page fetch.
type NetworkError struct {
	Cursor string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetching page at cursor %q: %v", e.Cursor, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Outcome says what Complete did with a response.
type Outcome int

const (
	Appended Outcome = iota
	Discarded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Discarded:
		return "discarded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Ticket authorizes exactly one fetch. It is bound to the query generation
// it was issued under.
type Ticket struct {
	gen    uint64
	Query  model.Query
	Cursor string
}

// Dataset is the append-only page list for the current query.
type Dataset struct {
	Pages   []model.Page
	HasMore bool
	Cursor  string
}

// Rooms returns every room across all pages, in page order.
func (d Dataset) Rooms() []model.RoomCategory {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Rooms)
	}
	out := make([]model.RoomCategory, 0, n)
	for _, p := range d.Pages {
		out = append(out, p.Rooms...)
	}
	return out
}

// Option configures a Controller.
type Option func(*Controller)

// WithInitialCursor sets the cursor the first page is requested with.
func WithInitialCursor(cursor string) Option {
	return func(c *Controller) { c.initial = cursor }
}

// Controller is safe for concurrent use, although the intended model is a
// single control thread.
type Controller struct {
	mu      sync.Mutex
	fetcher Fetcher
	initial string

	query    model.Query
	hasQuery bool
	gen      uint64

	state    State
	data     Dataset
	seen     map[string]bool
	err      error
	inflight *Ticket
}

// New returns an Idle controller with no query.
func New(f Fetcher, opts ...Option) *Controller {
	c := &Controller{fetcher: f}
	for _, opt := range opts {
		opt(c)
	}
	c.reset()
	return c
}

// reset empties the dataset. Caller holds mu (or owns c exclusively).
func (c *Controller) reset() {
	c.state = Idle
	c.data = Dataset{HasMore: true, Cursor: c.initial}
	c.seen = make(map[string]bool)
	c.err = nil
	c.inflight = nil
}

// SetQuery establishes q as the current parameter set. An invalid q is
// rejected before any state changes. A different q clears the dataset,
// orphans any in-flight fetch and returns the ticket for the first page.
// Setting the current query again is a no-op.
func (c *Controller) SetQuery(q model.Query) (*Ticket, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := timeaxis.Build(q.Start, q.End); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasQuery && c.query.Equal(q) {
		return nil, nil
	}
	if c.inflight != nil {
		slog.Debug("query changed with fetch in flight", "old", c.query.Key(), "new", q.Key())
	}
	c.query, c.hasQuery = q, true
	c.gen++
	c.reset()
	return c.begin(), nil
}

// OnSentinel reports the load-more sentinel's visibility. It returns a
// ticket only when the controller moves from Idle to Fetching.
func (c *Controller) OnSentinel(visible bool) *Ticket {
	if !visible {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasQuery || c.state != Idle || !c.data.HasMore {
		return nil
	}
	return c.begin()
}

// Retry re-enters Fetching from Error with the same cursor.
func (c *Controller) Retry() (*Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Error:
	case Exhausted:
		return nil, ErrExhausted
	default:
		return nil, ErrNotRetryable
	}
	c.err = nil
	return c.begin(), nil
}

// begin issues a ticket for the current cursor. Caller holds mu.
func (c *Controller) begin() *Ticket {
	t := &Ticket{gen: c.gen, Query: c.query, Cursor: c.data.Cursor}
	c.state = Fetching
	c.inflight = t
	return t
}

// Fetch performs the ticket's request. It blocks and must not run on the
// control thread.
func (c *Controller) Fetch(ctx context.Context, t *Ticket) (*model.Page, error) {
	return c.fetcher.FetchPage(ctx, t.Query, t.Cursor)
}

// Start runs the ticket's fetch on a new goroutine and hands the completion
// to post, which must execute it on the control thread.
func (c *Controller) Start(ctx context.Context, t *Ticket, post func(func())) {
	if t == nil {
		return
	}
	go func() {
		page, err := c.Fetch(ctx, t)
		post(func() { c.Complete(t, page, err) })
	}()
}

// Complete applies a fetch result. Results for an orphaned ticket are
// dropped without touching the dataset.
func (c *Controller) Complete(t *Ticket, page *model.Page, err error) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t == nil || t != c.inflight || t.gen != c.gen || !t.Query.Equal(c.query) {
		slog.Debug("discarding stale page", "cursor", cursorOf(t))
		return Discarded
	}
	c.inflight = nil

	if err != nil {
		c.state = Error
		c.err = &NetworkError{Cursor: t.Cursor, Err: err}
		return Failed
	}
	if page == nil {
		page = &model.Page{}
	}

	kept := make([]model.RoomCategory, 0, len(page.Rooms))
	for _, room := range page.Rooms {
		if c.seen[room.ID] {
			slog.Warn("dropping duplicate room category", "id", room.ID, "cursor", t.Cursor)
			continue
		}
		c.seen[room.ID] = true
		kept = append(kept, room)
	}
	c.data.Pages = append(c.data.Pages, model.Page{
		Rooms:      kept,
		Cursor:     t.Cursor,
		NextCursor: page.NextCursor,
	})
	c.data.Cursor = page.NextCursor
	c.data.HasMore = page.HasMore()
	if c.data.HasMore {
		c.state = Idle
	} else {
		c.state = Exhausted
	}
	return Appended
}

func cursorOf(t *Ticket) string {
	if t == nil {
		return ""
	}
	return t.Cursor
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the NetworkError behind the Error state, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Query returns the current query and whether one is set.
func (c *Controller) Query() (model.Query, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query, c.hasQuery
}

// Dataset returns a copy of the dataset. Page contents are shared and must
// be treated as read-only.
func (c *Controller) Dataset() Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.data
	d.Pages = append([]model.Page(nil), c.data.Pages...)
	return d
}

// RoomCount returns the number of rooms loaded so far.
func (c *Controller) RoomCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
