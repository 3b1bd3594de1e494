package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "peoplefinder/pkg/domain-errors"
)

// =============================================================================
// Search Session Controller Test Suite
// =============================================================================
// Justification for unit tests: the controller carries the whole lifecycle
// contract (single in-flight fetch, credit gating, browse-without-charge,
// save-before-notify) and every branch is reachable with hand-written fakes,
// which is far more precise than driving it through HTTP.

type fakeGateway struct {
	mu          sync.Mutex
	validateErr error
	executeErr  error
	result      *Result
	requests    []SearchRequest
	block       chan struct{}
}

func (g *fakeGateway) Validate(SearchRequest) error {
	return g.validateErr
}

func (g *fakeGateway) Execute(_ context.Context, req SearchRequest) (*Result, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	block := g.block
	g.mu.Unlock()
	if block != nil {
		<-block
	}
	if g.executeErr != nil {
		return nil, g.executeErr
	}
	res := *g.result
	return &res, nil
}

func (g *fakeGateway) calls() []SearchRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]SearchRequest(nil), g.requests...)
}

type fakeCredits struct {
	report *CreditReport
	err    error
	calls  int
}

func (c *fakeCredits) CheckCredits(context.Context, int) (*CreditReport, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.report, nil
}

type fakeRecorder struct {
	records []Record
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, rec Record) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

type fakeTokens struct {
	authed bool
}

func (t *fakeTokens) IsAuthenticated() bool {
	return t.authed
}

type fakeStore struct {
	mu      sync.Mutex
	snap    *Snapshot
	saves   int
	saveErr error
	cleared int
}

func (s *fakeStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.snap = &snap
	return nil
}

func (s *fakeStore) Load(context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	snap := *s.snap
	return &snap, nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	s.cleared++
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func persons(n int) []Person {
	out := make([]Person, n)
	for i := range out {
		out[i] = Person{FirstName: "First", LastName: "Last"}
	}
	return out
}

type ControllerSuite struct {
	suite.Suite
	ctx      context.Context
	gateway  *fakeGateway
	credits  *fakeCredits
	recorder *fakeRecorder
	tokens   *fakeTokens
	store    *fakeStore
	ctrl     *Controller
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.ctx = context.Background()
	s.gateway = &fakeGateway{result: &Result{Count: 3, Documents: persons(3)}}
	s.credits = &fakeCredits{report: &CreditReport{Available: true, AvailableCredits: 990, TotalUsed: 10, Limit: 1000}}
	s.recorder = &fakeRecorder{}
	s.tokens = &fakeTokens{authed: true}
	s.store = &fakeStore{}

	var err error
	s.ctrl, err = New(s.gateway, s.credits, s.recorder, s.tokens, s.store)
	s.Require().NoError(err)
}

// =============================================================================
// Constructor Tests (Invariant Enforcement)
// =============================================================================

func (s *ControllerSuite) TestNew() {
	s.Run("nil gateway returns error", func() {
		_, err := New(nil, s.credits, s.recorder, s.tokens, s.store)
		s.Error(err)
		s.Contains(err.Error(), "gateway is required")
	})

	s.Run("nil store returns error", func() {
		_, err := New(s.gateway, s.credits, s.recorder, s.tokens, nil)
		s.Error(err)
		s.Contains(err.Error(), "snapshot store is required")
	})

	s.Run("fresh controller starts idle with defaults", func() {
		s.Equal(StateIdle, s.ctrl.State())
		snap := s.ctrl.Snapshot()
		s.Equal(1, snap.Page)
		s.Equal(DefaultLimit, snap.Limit)
		s.Equal(DefaultSort(), snap.Sort)
		s.Empty(snap.Persons)
		s.False(snap.NewSearchPerformed)
	})
}

// =============================================================================
// StartNewSearch Tests
// =============================================================================

func (s *ControllerSuite) TestStartNewSearch() {
	s.Run("successful search resets paging and records history", func() {
		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane doe"), nil)
		s.Require().NoError(err)

		s.Equal(StateSettled, s.ctrl.State())
		s.Nil(s.ctrl.LastError())

		snap := s.ctrl.Snapshot()
		s.Equal(1, snap.Page)
		s.Equal(DefaultLimit, snap.Limit)
		s.Equal(DefaultSort(), snap.Sort)
		s.Equal(3, snap.TotalResults)
		s.Len(snap.Persons, 3)
		s.True(snap.NewSearchPerformed)

		s.Equal(1, s.credits.calls)
		s.Require().Len(s.recorder.records, 1)
		rec := s.recorder.records[0]
		s.Equal("jane doe", rec.Keyword)
		s.Equal(SearchByName, rec.Type)
		s.Equal(ResultSet, rec.ResultType)
		s.Equal(1, rec.Page)
		s.Equal(1, rec.CreditsUsed)
	})

	s.Run("result rows get session-local ids", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))

		snap := s.ctrl.Snapshot()
		seen := make(map[string]bool)
		for _, p := range snap.Persons {
			s.NotEmpty(p.LocalID)
			s.False(seen[p.LocalID])
			seen[p.LocalID] = true
		}
	})

	s.Run("history keeps response rows untagged", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))

		rec := s.recorder.records[len(s.recorder.records)-1]
		for _, p := range rec.Response.Documents {
			s.Empty(p.LocalID)
		}
	})

	s.Run("a single hit is recorded as a single result", func() {
		s.gateway.result = &Result{Count: 1, Documents: persons(1)}

		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))

		rec := s.recorder.records[len(s.recorder.records)-1]
		s.Equal(ResultSingle, rec.ResultType)
		s.Equal(1, rec.Count)
	})

	s.Run("no hits are recorded as an empty result", func() {
		s.gateway.result = &Result{Count: 0, Documents: []Person{}}

		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("nobody"), nil))

		rec := s.recorder.records[len(s.recorder.records)-1]
		s.Equal(ResultEmpty, rec.ResultType)
		s.Zero(rec.Count)
		s.Empty(s.ctrl.Snapshot().Persons)
	})

	s.Run("invalid search type settles without touching the network", func() {
		before := len(s.gateway.calls())
		err := s.ctrl.StartNewSearch(s.ctx, SearchType("fingerprint"), TextQuery("x"), nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
		s.Equal(StateSettled, s.ctrl.State())
		s.Len(s.gateway.calls(), before)
	})

	s.Run("empty query settles with invalid input", func() {
		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, Query{}, nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("structural validation failure skips credit check and fetch", func() {
		s.gateway.validateErr = dErrors.New(dErrors.CodeInvalidInput, "street is required")
		creditsBefore := s.credits.calls
		fetchesBefore := len(s.gateway.calls())

		err := s.ctrl.StartNewSearch(s.ctx, SearchByAddress, AddressQuery(Address{City: "Boston"}), nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
		s.Equal(creditsBefore, s.credits.calls)
		s.Len(s.gateway.calls(), fetchesBefore)
		s.gateway.validateErr = nil
	})

	s.Run("missing credential refuses the search before any call", func() {
		s.tokens.authed = false
		creditsBefore := s.credits.calls

		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
		s.Equal(creditsBefore, s.credits.calls)
		s.tokens.authed = true
	})
}

// =============================================================================
// Credit Gating Tests
// =============================================================================

func (s *ControllerSuite) TestCreditGating() {
	s.Run("denied credits keep prior results but show the attempted query", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("first"), nil))
		fetchesBefore := len(s.gateway.calls())

		s.credits.report = &CreditReport{Available: false, AvailableCredits: 0, TotalUsed: 1000, Limit: 1000}
		err := s.ctrl.StartNewSearch(s.ctx, SearchByEmail, TextQuery("a@b.com"), nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeCreditsExceeded))

		var denied *CreditsExceededError
		s.Require().True(errors.As(err, &denied))
		s.Equal(1000, denied.Report.Limit)
		s.Equal(0, denied.Report.AvailableCredits)

		snap := s.ctrl.Snapshot()
		s.Equal(SearchByEmail, snap.Type)
		s.Equal("a@b.com", snap.Query.Text)
		s.Len(snap.Persons, 3)
		s.Equal(3, snap.TotalResults)
		s.Len(s.gateway.calls(), fetchesBefore)
	})

	s.Run("ledger failure fails closed", func() {
		s.credits.err = errors.New("ledger unreachable")
		fetchesBefore := len(s.gateway.calls())

		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInternal))
		s.Len(s.gateway.calls(), fetchesBefore)
		s.credits.err = nil
	})

	s.Run("browsing never consults the ledger", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		creditsBefore := s.credits.calls

		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 1))
		s.Require().NoError(s.ctrl.ChangeSort(s.ctx, "last_name", "desc"))
		s.Require().NoError(s.ctrl.ChangeLimit(s.ctx, 10))
		s.Equal(creditsBefore, s.credits.calls)
	})
}

// =============================================================================
// Upstream Failure Tests
// =============================================================================

func (s *ControllerSuite) TestUpstreamFailure() {
	s.Run("fetch failure settles with error and keeps prior results", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("first"), nil))

		s.gateway.executeErr = dErrors.New(dErrors.CodeUpstreamFailed, "provider returned 503")
		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("second"), nil)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUpstreamFailed))
		s.Equal(StateSettled, s.ctrl.State())

		snap := s.ctrl.Snapshot()
		s.Len(snap.Persons, 3)
		s.Equal("second", snap.Query.Text)
		s.gateway.executeErr = nil
	})

	s.Run("failed fetch is not recorded to history", func() {
		s.gateway.executeErr = dErrors.New(dErrors.CodeUpstreamFailed, "boom")
		recordsBefore := len(s.recorder.records)

		_ = s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("x"), nil)
		s.Len(s.recorder.records, recordsBefore)
		s.gateway.executeErr = nil
	})

	s.Run("history failure never fails the search", func() {
		s.recorder.err = errors.New("history store down")
		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil)
		s.NoError(err)
		s.Nil(s.ctrl.LastError())
		s.recorder.err = nil
	})
}

// =============================================================================
// Browse Tests (Page / Sort / Limit)
// =============================================================================

func (s *ControllerSuite) TestBrowse() {
	s.Run("page change fetches the requested window", func() {
		s.gateway.result = &Result{Count: 40, Documents: persons(5)}
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))

		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 3))
		calls := s.gateway.calls()
		last := calls[len(calls)-1]
		s.Equal(10, last.Offset)
		s.Equal(5, last.Limit)
		s.Equal(3, s.ctrl.Snapshot().Page)
	})

	s.Run("page is clamped to the last available page", func() {
		s.gateway.result = &Result{Count: 12, Documents: persons(5)}
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))

		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 99))
		s.Equal(3, s.ctrl.Snapshot().Page)

		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 0))
		s.Equal(1, s.ctrl.Snapshot().Page)
	})

	s.Run("sort change resets to the first page", func() {
		s.gateway.result = &Result{Count: 40, Documents: persons(5)}
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 4))

		s.Require().NoError(s.ctrl.ChangeSort(s.ctx, "last_name", "desc"))
		snap := s.ctrl.Snapshot()
		s.Equal(1, snap.Page)
		s.Equal(Sort{"last_name": "desc"}, snap.Sort)
	})

	s.Run("limit change resets to the first page", func() {
		s.gateway.result = &Result{Count: 40, Documents: persons(5)}
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 4))

		s.Require().NoError(s.ctrl.ChangeLimit(s.ctx, 25))
		snap := s.ctrl.Snapshot()
		s.Equal(1, snap.Page)
		s.Equal(25, snap.Limit)
	})

	s.Run("rejects unknown sort direction and page size", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))

		err := s.ctrl.ChangeSort(s.ctx, "last_name", "sideways")
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

		err = s.ctrl.ChangeLimit(s.ctx, 7)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("browsing without an active search settles with invalid input", func() {
		err := s.ctrl.ChangePage(s.ctx, 2)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("live search pages are logged to history", func() {
		s.gateway.result = &Result{Count: 40, Documents: persons(5)}
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		recordsBefore := len(s.recorder.records)

		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 2))
		s.Require().Len(s.recorder.records, recordsBefore+1)
		s.Equal(2, s.recorder.records[len(s.recorder.records)-1].Page)
	})
}

// =============================================================================
// Rerun From History Tests
// =============================================================================

func (s *ControllerSuite) TestRerunFromHistory() {
	rec := Record{
		Keyword:    "john smith",
		Type:       SearchByName,
		ResultType: ResultSet,
		Response:   Result{Count: 2, Documents: persons(2)},
		Sort:       Sort{"age": "desc"},
		Page:       2,
		Count:      2,
	}

	s.Run("hydrates the session from the stored response", func() {
		s.Require().NoError(s.ctrl.RerunFromHistory(s.ctx, rec))

		snap := s.ctrl.Snapshot()
		s.Equal("john smith", snap.Query.Text)
		s.Equal(SearchByName, snap.Type)
		s.Equal(Sort{"age": "desc"}, snap.Sort)
		s.Equal(2, snap.Page)
		s.Equal(2, snap.TotalResults)
		s.Len(snap.Persons, 2)
		s.False(snap.NewSearchPerformed)
		for _, p := range snap.Persons {
			s.NotEmpty(p.LocalID)
		}
	})

	s.Run("makes no upstream, credit, or history calls", func() {
		fetches := len(s.gateway.calls())
		credits := s.credits.calls
		records := len(s.recorder.records)

		s.Require().NoError(s.ctrl.RerunFromHistory(s.ctx, rec))
		s.Len(s.gateway.calls(), fetches)
		s.Equal(credits, s.credits.calls)
		s.Len(s.recorder.records, records)
	})

	s.Run("browsing a rerun session fetches but does not log", func() {
		s.gateway.result = &Result{Count: 40, Documents: persons(5)}
		s.Require().NoError(s.ctrl.RerunFromHistory(s.ctx, rec))
		records := len(s.recorder.records)
		fetches := len(s.gateway.calls())

		s.Require().NoError(s.ctrl.ChangePage(s.ctx, 1))
		s.Len(s.gateway.calls(), fetches+1)
		s.Len(s.recorder.records, records)
	})
}

// =============================================================================
// Concurrency Tests (Single In-Flight Fetch)
// =============================================================================

func (s *ControllerSuite) TestSingleInFlight() {
	s.Run("second trigger is rejected while a fetch is outstanding", func() {
		s.gateway.block = make(chan struct{})
		done := make(chan error, 1)
		go func() {
			done <- s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("slow"), nil)
		}()

		// Wait until the fetch is actually in flight.
		for len(s.gateway.calls()) == 0 {
			time.Sleep(time.Millisecond)
		}

		snapBefore := s.ctrl.Snapshot()
		err := s.ctrl.ChangePage(s.ctx, 2)
		s.Require().ErrorIs(err, ErrSearchInFlight)
		s.Equal(snapBefore, s.ctrl.Snapshot())

		close(s.gateway.block)
		s.NoError(<-done)
		s.gateway.block = nil
	})

	s.Run("a settled controller accepts the next trigger", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("one"), nil))
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("two"), nil))
		s.Equal("two", s.ctrl.Snapshot().Query.Text)
	})
}

// =============================================================================
// Persistence and Notification Tests
// =============================================================================

func (s *ControllerSuite) TestPersistence() {
	s.Run("snapshot is saved before subscribers run", func() {
		savedAtNotify := -1
		unsub := s.ctrl.Subscribe(func() {
			if savedAtNotify == -1 {
				savedAtNotify = s.store.saveCount()
			}
		})
		defer unsub()

		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		s.GreaterOrEqual(savedAtNotify, 1)
	})

	s.Run("restore reproduces the persisted session", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane doe"), nil))
		want := s.ctrl.Snapshot()

		fresh, err := New(s.gateway, s.credits, s.recorder, s.tokens, s.store)
		s.Require().NoError(err)
		s.Require().NoError(fresh.Restore(s.ctx))

		got := fresh.Snapshot()
		s.Equal(want.Query, got.Query)
		s.Equal(want.Type, got.Type)
		s.Equal(want.Sort, got.Sort)
		s.Equal(want.Page, got.Page)
		s.Equal(want.Limit, got.Limit)
		s.Equal(want.Persons, got.Persons)
		s.Equal(want.TotalResults, got.TotalResults)
		s.Equal(want.NewSearchPerformed, got.NewSearchPerformed)
	})

	s.Run("restore with no snapshot keeps defaults", func() {
		fresh, err := New(s.gateway, s.credits, s.recorder, s.tokens, &fakeStore{})
		s.Require().NoError(err)
		s.Require().NoError(fresh.Restore(s.ctx))
		s.Equal(1, fresh.Snapshot().Page)
		s.Empty(fresh.Snapshot().Persons)
	})

	s.Run("save failure does not fail the search", func() {
		s.store.saveErr = errors.New("disk full")
		err := s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil)
		s.NoError(err)
		s.store.saveErr = nil
	})

	s.Run("unsubscribe stops notifications", func() {
		calls := 0
		unsub := s.ctrl.Subscribe(func() { calls++ })
		s.ctrl.ClearError()
		s.Require().Greater(calls, 0)

		unsub()
		before := calls
		s.ctrl.ClearError()
		s.Equal(before, calls)
	})
}

// =============================================================================
// ClearError and Reset Tests
// =============================================================================

func (s *ControllerSuite) TestClearAndReset() {
	s.Run("clear error keeps session data", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		s.gateway.executeErr = dErrors.New(dErrors.CodeUpstreamFailed, "boom")
		_ = s.ctrl.ChangePage(s.ctx, 1)
		s.gateway.executeErr = nil
		s.Require().Error(s.ctrl.LastError())

		s.ctrl.ClearError()
		s.Nil(s.ctrl.LastError())
		s.Len(s.ctrl.Snapshot().Persons, 3)
	})

	s.Run("reset returns to defaults and clears the stored snapshot", func() {
		s.Require().NoError(s.ctrl.StartNewSearch(s.ctx, SearchByName, TextQuery("jane"), nil))
		s.Require().NoError(s.ctrl.Reset(s.ctx))

		snap := s.ctrl.Snapshot()
		s.Empty(snap.Persons)
		s.Equal(1, snap.Page)
		s.Equal(DefaultLimit, snap.Limit)
		s.Equal(StateIdle, s.ctrl.State())
		s.Equal(1, s.store.cleared)

		loaded, err := s.store.Load(s.ctx)
		s.NoError(err)
		s.Nil(loaded)
	})
}
