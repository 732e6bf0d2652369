package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/newearthmartin/irdin/internal/textmatch"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is the quiet period before a query is sent.
const DefaultDebounce = 300 * time.Millisecond

// Phase is the controller's position in its request cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDebouncing
	PhaseFetching
	PhaseSettled
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDebouncing:
		return "debouncing"
	case PhaseFetching:
		return "fetching"
	case PhaseSettled:
		return "settled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of what the presentation layer shows.
type State struct {
	Query   string
	Fields  []Field
	Phase   Phase
	Results []ResultCard
	Total   int
	Page    int
	Pages   int
	// Err holds the last fetch failure; previous results are kept alongside it.
	Err error
}

// Loading reports whether a request is in flight.
func (s State) Loading() bool {
	return s.Phase == PhaseFetching
}

// Terms returns the match terms of the current query.
func (s State) Terms() []string {
	return textmatch.Terms(s.Query)
}

// FieldStore persists the field selection.
type FieldStore interface {
	SaveFields(fields []Field) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithScheduler replaces the debounce timer source.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithDebounce sets the debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithFields sets the initial field selection.
func WithFields(fields []Field) Option {
	return func(c *Controller) { c.fields = dedupeFields(fields) }
}

// WithFieldStore persists field selection changes.
func WithFieldStore(store FieldStore) Option {
	return func(c *Controller) { c.store = store }
}

// OnChange registers a callback invoked with every visible state change.
func OnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller owns query and field state, debounces input and reconciles
// responses so that only the latest request is ever displayed.
type Controller struct {
	svc      Service
	sched    Scheduler
	debounce time.Duration
	store    FieldStore
	onChange func(State)
	logger   *logrus.Entry

	mu      sync.Mutex
	query   string
	fields  []Field
	phase   Phase
	page    *Page
	// current reports whether page answers the present query and fields.
	current bool
	err     error
	seq     uint64
	timer   Timer
	cancel  context.CancelFunc
	changed chan struct{}
	closed  bool

	inflight sync.WaitGroup
}

// NewController creates an idle controller searching all fields by default.
func NewController(svc Service, opts ...Option) *Controller {
	c := &Controller{
		svc:      svc,
		sched:    RealScheduler{},
		debounce: DefaultDebounce,
		fields:   append([]Field(nil), AllFields...),
		page:     EmptyPage(),
		changed:  make(chan struct{}),
		logger:   logrus.WithField("component", "search"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetQuery updates the query and restarts the debounce timer. Repeating the
// query while it is pending or settled is a no-op; after a failure it retries.
func (c *Controller) SetQuery(q string) {
	c.mu.Lock()
	if c.closed || (q == c.query && c.phase != PhaseIdle && c.phase != PhaseFailed) {
		c.mu.Unlock()
		return
	}
	c.query = q
	c.restartLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(st)
}

// SetFields replaces the field selection and restarts the debounce timer. An
// empty selection searches nothing.
func (c *Controller) SetFields(fields []Field) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.fields = dedupeFields(fields)
	c.restartLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(st.Fields)
	c.emit(st)
}

// ToggleField adds or removes one field.
func (c *Controller) ToggleField(f Field) {
	c.mu.Lock()
	next := make([]Field, 0, len(c.fields)+1)
	found := false
	for _, existing := range c.fields {
		if existing == f {
			found = true
			continue
		}
		next = append(next, existing)
	}
	if !found {
		next = append(next, f)
	}
	c.mu.Unlock()

	c.SetFields(next)
}

// Next requests the following page immediately. It reports false, without
// contacting the service, when already on the last page or when no page of
// the current query has arrived yet.
func (c *Controller) Next() bool {
	return c.goTo(func(p *Page) int { return p.Page + 1 })
}

// Previous requests the preceding page immediately. It reports false, without
// contacting the service, when already on the first page or when no page of
// the current query has arrived yet.
func (c *Controller) Previous() bool {
	return c.goTo(func(p *Page) int { return p.Page - 1 })
}

func (c *Controller) goTo(target func(*Page) int) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if !c.current {
		phase := c.phase
		c.mu.Unlock()
		c.logger.WithField("phase", phase).Debug("No page of the current query yet, paging ignored")
		return false
	}
	page := target(c.page)
	if page < 1 || page > c.page.Pages {
		c.mu.Unlock()
		c.logger.WithField("page", page).Debug("Page request out of range, ignored")
		return false
	}
	c.stopTimerLocked()
	c.issueLocked(page)
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(st)
	return true
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Terms returns the match terms of the current query.
func (c *Controller) Terms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return textmatch.Terms(c.query)
}

// Wait blocks until no debounce or request is pending and returns the
// resulting state.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		if c.phase != PhaseDebouncing && c.phase != PhaseFetching {
			st := c.snapshotLocked()
			c.mu.Unlock()
			return st, nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
}

// Close cancels pending work and waits for in-flight requests to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.seq++
	c.stopTimerLocked()
	if c.phase == PhaseDebouncing || c.phase == PhaseFetching {
		c.phase = PhaseIdle
	}
	c.broadcastLocked()
	c.mu.Unlock()

	c.inflight.Wait()
}

// restartLocked invalidates outstanding work and schedules the trailing edge.
func (c *Controller) restartLocked() {
	c.stopTimerLocked()
	c.seq++
	gen := c.seq
	c.current = false
	c.phase = PhaseDebouncing
	c.timer = c.sched.ScheduleAfter(c.debounce, func() { c.fire(gen) })
	c.broadcastLocked()
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.seq {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.issueLocked(1)
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(st)
}

// issueLocked starts a request for page with the current query and fields.
func (c *Controller) issueLocked(page int) {
	c.seq++
	seq := c.seq
	defer c.broadcastLocked()

	if strings.TrimSpace(c.query) == "" {
		c.page = EmptyPage()
		c.current = true
		c.err = nil
		c.phase = PhaseIdle
		return
	}
	if len(c.fields) == 0 {
		c.logger.Debug("No search fields selected, returning empty page")
		c.page = EmptyPage()
		c.current = true
		c.err = nil
		c.phase = PhaseSettled
		return
	}

	req := Request{
		Query:  c.query,
		Page:   page,
		Fields: append([]Field(nil), c.fields...),
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.phase = PhaseFetching

	c.logger.WithFields(logrus.Fields{
		"query":  req.Query,
		"page":   req.Page,
		"fields": req.Fields,
		"seq":    seq,
	}).Debug("Issuing search request")

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer cancel()
		page, err := c.svc.Search(ctx, req)
		c.resolve(seq, req, page, err)
	}()
}

func (c *Controller) resolve(seq uint64, req Request, page *Page, err error) {
	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.WithFields(logrus.Fields{
			"query": req.Query,
			"page":  req.Page,
			"seq":   seq,
		}).Debug("Discarding stale search response")
		return
	}
	c.cancel = nil
	if err != nil {
		c.phase = PhaseFailed
		c.err = err
		c.logger.WithError(err).WithField("query", req.Query).Warn("Search request failed")
	} else {
		if page == nil {
			page = EmptyPage()
		}
		page.normalize()
		c.page = page
		c.current = true
		c.err = nil
		c.phase = PhaseSettled
	}
	c.broadcastLocked()
	st := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(st)
}

func (c *Controller) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Controller) snapshotLocked() State {
	return State{
		Query:   c.query,
		Fields:  append([]Field(nil), c.fields...),
		Phase:   c.phase,
		Results: c.page.Results,
		Total:   c.page.Total,
		Page:    c.page.Page,
		Pages:   c.page.Pages,
		Err:     c.err,
	}
}

func (c *Controller) emit(st State) {
	if c.onChange != nil {
		c.onChange(st)
	}
}

func (c *Controller) persist(fields []Field) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveFields(fields); err != nil {
		c.logger.WithError(err).Warn("Failed to persist search fields")
	}
}

func dedupeFields(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	seen := make(map[Field]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
