package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"peoplefinder/internal/platform/metrics"
	dErrors "peoplefinder/pkg/domain-errors"
)

// State is the controller's lifecycle phase. A new trigger is accepted only
// from Idle or Settled.
type State string

const (
	StateIdle            State = "idle"
	StateCheckingCredits State = "checking_credits"
	StateFetching        State = "fetching"
	StateSettled         State = "settled"
)

var tracer = otel.Tracer("peoplefinder/session")

// Controller owns the one SearchSession of a browser session. All mutation
// goes through its operations; consumers read back via Snapshot and get
// change notifications via Subscribe. Snapshots are persisted synchronously
// before subscribers are notified, so a reload never observes a fetch in
// flight.
type Controller struct {
	gateway  Gateway
	credits  CreditChecker
	recorder Recorder
	tokens   TokenSource
	store    SnapshotStore

	logger     *slog.Logger
	metrics    *metrics.Metrics
	searchCost int

	mu                 sync.Mutex
	inFlight           bool
	state              State
	query              Query
	searchType         SearchType
	filters            *Filter
	sort               Sort
	page               int
	limit              int
	results            []Person
	totalResults       int
	newSearchPerformed bool
	lastErr            error

	subs    map[int]func()
	nextSub int
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithSearchCost overrides the per-fetch credit cost.
func WithSearchCost(cost int) Option {
	return func(c *Controller) {
		if cost > 0 {
			c.searchCost = cost
		}
	}
}

// New constructs a Controller with an empty default session. Call Restore to
// re-seed it from a persisted snapshot.
func New(gateway Gateway, credits CreditChecker, recorder Recorder, tokens TokenSource, store SnapshotStore, opts ...Option) (*Controller, error) {
	if gateway == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "gateway is required")
	}
	if credits == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "credit checker is required")
	}
	if recorder == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "history recorder is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "token source is required")
	}
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "snapshot store is required")
	}

	c := &Controller{
		gateway:    gateway,
		credits:    credits,
		recorder:   recorder,
		tokens:     tokens,
		store:      store,
		logger:     slog.Default(),
		searchCost: 1,
		state:      StateIdle,
		sort:       DefaultSort(),
		page:       1,
		limit:      DefaultLimit,
		subs:       make(map[int]func()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Restore re-seeds the session from the snapshot store. Absent or expired
// snapshots leave the default session in place.
func (c *Controller) Restore(ctx context.Context) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load session snapshot")
	}
	if snap == nil {
		return nil
	}

	c.mu.Lock()
	c.query = snap.Query
	c.searchType = snap.Type
	c.filters = snap.Filters
	c.sort = snap.Sort
	if c.sort == nil {
		c.sort = DefaultSort()
	}
	c.page = snap.Page
	if c.page < 1 {
		c.page = 1
	}
	c.limit = snap.Limit
	if c.limit <= 0 {
		c.limit = DefaultLimit
	}
	c.results = snap.Persons
	c.totalResults = snap.TotalResults
	c.newSearchPerformed = snap.NewSearchPerformed
	c.mu.Unlock()

	c.notify()
	return nil
}

// StartNewSearch validates and executes a brand-new search: page 1, default
// limit and sort, credit-gated, history-logged. On refusal or failure the
// previously rendered results stay intact.
func (c *Controller) StartNewSearch(ctx context.Context, searchType SearchType, query Query, filters *Filter) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	if !searchType.IsValid() {
		return c.settle(ctx, dErrors.Newf(dErrors.CodeInvalidInput, "invalid search type %q", searchType))
	}
	if query.IsZero() {
		return c.settle(ctx, dErrors.New(dErrors.CodeInvalidInput, "search query is required"))
	}

	req := SearchRequest{
		Type:    searchType,
		Query:   query,
		Filters: filters,
		Limit:   DefaultLimit,
		Offset:  0,
		Sort:    DefaultSort(),
	}
	// Structural validation (notably the address street requirement) must
	// fail before the credit check so bad input never reaches the network.
	if err := c.gateway.Validate(req); err != nil {
		return c.settle(ctx, err)
	}
	if !c.tokens.IsAuthenticated() {
		return c.settle(ctx, dErrors.New(dErrors.CodeUnauthorized, "no credential available"))
	}

	c.setState(StateCheckingCredits)
	report, err := c.credits.CheckCredits(ctx, c.searchCost)
	if err != nil {
		return c.settle(ctx, dErrors.Wrap(err, dErrors.CodeInternal, "credit check failed"))
	}
	if !report.Available {
		// Record what was attempted so the caller can show it; results and
		// totals keep their prior values.
		c.mu.Lock()
		c.query = query
		c.searchType = searchType
		c.filters = filters
		c.mu.Unlock()
		c.persist(ctx)
		c.metrics.RecordSearch(searchType.String(), "credits_exceeded")
		return c.settle(ctx, creditsExceeded(*report))
	}

	res, err := c.fetch(ctx, req)
	if err != nil {
		c.mu.Lock()
		c.query = query
		c.searchType = searchType
		c.filters = filters
		c.mu.Unlock()
		c.persist(ctx)
		c.metrics.RecordSearch(searchType.String(), string(dErrors.CodeOf(err)))
		return c.settle(ctx, err)
	}

	c.mu.Lock()
	c.query = query
	c.searchType = searchType
	c.filters = filters
	c.page = 1
	c.limit = DefaultLimit
	c.sort = DefaultSort()
	c.results = tagPersons(res.Documents)
	c.totalResults = res.Count
	c.newSearchPerformed = true
	c.lastErr = nil
	c.state = StateSettled
	c.mu.Unlock()
	c.persist(ctx)
	c.notify()

	c.record(ctx, req, res)
	c.metrics.RecordSearch(searchType.String(), "success")
	return nil
}

// ChangePage re-fetches the current search at another page. Browsing an
// already-paid search is never credit-gated; each fetched page of a live
// search is still logged to history.
func (c *Controller) ChangePage(ctx context.Context, page int) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	c.mu.Lock()
	limit, sort := c.limit, c.sort
	page = clampPage(page, c.totalResults, limit)
	c.mu.Unlock()

	return c.browse(ctx, page, limit, sort)
}

// ChangeSort re-fetches the current search under a new single-field sort,
// resetting to the first page.
func (c *Controller) ChangeSort(ctx context.Context, field, direction string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	if field == "" || !ValidDirection(direction) {
		return c.settle(ctx, dErrors.Newf(dErrors.CodeInvalidInput, "invalid sort %s %s", field, direction))
	}

	c.mu.Lock()
	limit := c.limit
	c.mu.Unlock()

	return c.browse(ctx, 1, limit, NewSort(field, direction))
}

// ChangeLimit re-fetches the current search with a new page size, resetting
// to the first page so the page bound holds trivially.
func (c *Controller) ChangeLimit(ctx context.Context, limit int) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	if !ValidLimit(limit) {
		return c.settle(ctx, dErrors.Newf(dErrors.CodeInvalidInput, "invalid page size %d", limit))
	}

	c.mu.Lock()
	sort := c.sort
	c.mu.Unlock()

	return c.browse(ctx, 1, limit, sort)
}

// RerunFromHistory hydrates the session from a past entry's stored response:
// no upstream call, no credit check, no new history entry. Result rows get
// fresh local ids.
func (c *Controller) RerunFromHistory(ctx context.Context, rec Record) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	sort := rec.Sort
	if sort == nil {
		sort = DefaultSort()
	}
	page := rec.Page
	if page < 1 {
		page = 1
	}

	c.mu.Lock()
	c.query = TextQuery(rec.Keyword)
	c.searchType = rec.Type
	c.filters = rec.Filters
	c.sort = sort
	c.page = page
	c.results = tagPersons(rec.Response.Documents)
	c.totalResults = rec.Count
	c.newSearchPerformed = false
	c.lastErr = nil
	c.state = StateSettled
	c.mu.Unlock()

	c.persist(ctx)
	c.notify()
	return nil
}

// ClearError dismisses the last error without touching session data.
func (c *Controller) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.notify()
}

// Reset clears the session and its persisted snapshot back to defaults.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.finish()

	c.mu.Lock()
	c.query = Query{}
	c.searchType = ""
	c.filters = nil
	c.sort = DefaultSort()
	c.page = 1
	c.limit = DefaultLimit
	c.results = nil
	c.totalResults = 0
	c.newSearchPerformed = false
	c.lastErr = nil
	c.state = StateIdle
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to clear session snapshot", "error", err)
	}
	c.notify()
	return nil
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the controller's lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Loading reports whether a fetch or credit check is outstanding.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateCheckingCredits || c.state == StateFetching
}

// LastError returns the typed reason of the most recent settle-with-error,
// or nil after a successful operation or dismissal.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers a change callback and returns its unsubscribe func.
// Callbacks run synchronously after each state write, after the snapshot has
// been persisted.
func (c *Controller) Subscribe(fn func()) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// browse executes one non-gated re-fetch of the active search. Callers hold
// the in-flight slot.
func (c *Controller) browse(ctx context.Context, page, limit int, sort Sort) error {
	c.mu.Lock()
	if c.searchType == "" || c.query.IsZero() {
		c.mu.Unlock()
		return c.settle(ctx, dErrors.New(dErrors.CodeInvalidInput, "no active search to browse"))
	}
	req := SearchRequest{
		Type:    c.searchType,
		Query:   c.query,
		Filters: c.filters,
		Limit:   limit,
		Offset:  (page - 1) * limit,
		Sort:    sort,
	}
	live := c.newSearchPerformed
	c.mu.Unlock()

	if !c.tokens.IsAuthenticated() {
		return c.settle(ctx, dErrors.New(dErrors.CodeUnauthorized, "no credential available"))
	}

	res, err := c.fetch(ctx, req)
	if err != nil {
		c.metrics.RecordSearch(req.Type.String(), string(dErrors.CodeOf(err)))
		return c.settle(ctx, err)
	}

	c.mu.Lock()
	c.page = clampPage(page, res.Count, limit)
	c.limit = limit
	c.sort = sort
	c.results = tagPersons(res.Documents)
	c.totalResults = res.Count
	c.lastErr = nil
	c.state = StateSettled
	c.mu.Unlock()
	c.persist(ctx)
	c.notify()

	if live {
		c.record(ctx, req, res)
	}
	c.metrics.RecordSearch(req.Type.String(), "success")
	return nil
}

func (c *Controller) fetch(ctx context.Context, req SearchRequest) (*Result, error) {
	c.setState(StateFetching)

	ctx, span := tracer.Start(ctx, "session.fetch")
	span.SetAttributes(
		attribute.String("search.type", req.Type.String()),
		attribute.Int("search.offset", req.Offset),
		attribute.Int("search.limit", req.Limit),
	)
	defer span.End()

	start := time.Now()
	res, err := c.gateway.Execute(ctx, req)
	c.metrics.ObserveUpstreamLatency(time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return res, nil
}

// record writes the history trace of one executed fetch. Failures are logged
// and counted, never surfaced: the results are already rendered.
func (c *Controller) record(ctx context.Context, req SearchRequest, res *Result) {
	page := 1
	if req.Limit > 0 {
		page = req.Offset/req.Limit + 1
	}
	rec := Record{
		Date:        time.Now().UTC(),
		Keyword:     req.Query.Keyword(),
		Type:        req.Type,
		ResultType:  Classify(res.Count),
		Response:    *res,
		Sort:        req.Sort,
		Offset:      req.Offset,
		Page:        page,
		Count:       res.Count,
		Filters:     req.Filters,
		CreditsUsed: c.searchCost,
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		c.logger.WarnContext(ctx, "failed to record search history",
			"keyword", rec.Keyword,
			"type", rec.Type,
			"error", err,
		)
		c.metrics.RecordHistoryFailure()
		return
	}
	c.metrics.RecordCreditsSpent(rec.CreditsUsed)
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return ErrSearchInFlight
	}
	c.inFlight = true
	return nil
}

func (c *Controller) finish() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

// settle parks the controller in the settled state with a typed error,
// leaving previously rendered results visible.
func (c *Controller) settle(ctx context.Context, err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.state = StateSettled
	c.mu.Unlock()

	c.logger.WarnContext(ctx, "search settled with error", "error", err)
	c.notify()
	return err
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) snapshotLocked() Snapshot {
	persons := make([]Person, len(c.results))
	copy(persons, c.results)
	return Snapshot{
		Query:              c.query,
		Type:               c.searchType,
		Filters:            c.filters,
		Sort:               c.sort,
		Page:               c.page,
		Limit:              c.limit,
		Persons:            persons,
		TotalResults:       c.totalResults,
		NewSearchPerformed: c.newSearchPerformed,
	}
}

// persist writes the snapshot before subscribers observe the change. A save
// failure degrades persistence, not the search itself.
func (c *Controller) persist(ctx context.Context) {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	snap.SavedAt = time.Now().UTC()

	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.WarnContext(ctx, "failed to persist session snapshot", "error", err)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func clampPage(page, total, limit int) int {
	if page < 1 {
		return 1
	}
	if max := pageCount(total, limit); page > max {
		return max
	}
	return page
}

func pageCount(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	n := (total + limit - 1) / limit
	if n < 1 {
		return 1
	}
	return n
}
