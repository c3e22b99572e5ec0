package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/core/model"
)

var testBBox = model.BBox{MinLng: 69.1, MinLat: 41.2, MaxLng: 69.4, MaxLat: 41.4}

func fac(id, org string) model.Facility {
	return model.Facility{ID: id, OrgID: org, Name: id, Type: "FIELD", Status: model.StatusActive}
}

type stubSource struct {
	mu      sync.Mutex
	byOrg   map[string][]model.Facility
	errOrgs map[string]bool
	calls   int32
	block   chan struct{} // when set, FetchByOrg waits on it
}

func (s *stubSource) FetchByOrg(ctx context.Context, orgID string, q model.Query) ([]model.Facility, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errOrgs[orgID] {
		return nil, errors.New("upstream unavailable")
	}
	return s.byOrg[orgID], nil
}

type sinkRec struct {
	mu      sync.Mutex
	results []Result
}

func (r *sinkRec) add(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *sinkRec) snapshot() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

// last result carrying facilities, if any. Setting inputs one by one
// publishes interim empty results by design, so tests look for the
// fetched one.
func (r *sinkRec) lastNonEmpty() (Result, bool) {
	rs := r.snapshot()
	for i := len(rs) - 1; i >= 0; i-- {
		if len(rs[i].Facilities) > 0 {
			return rs[i], true
		}
	}
	return Result{}, false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached in time")
}

func newFetcher(src Source, rec *sinkRec, debounce time.Duration) *Fetcher {
	return New(src, rec.add, Options{Debounce: debounce, Logger: zerolog.Nop()})
}

func TestDebounceCoalescesBursts(t *testing.T) {
	src := &stubSource{byOrg: map[string][]model.Facility{
		"org-1": {fac("f1", "org-1")},
	}}
	rec := &sinkRec{}
	f := newFetcher(src, rec, 40*time.Millisecond)
	defer f.Close()

	// three input changes inside the debounce window
	f.SetTypes([]string{"FIELD"})
	f.SetCheckedOrgs([]string{"org-1"})
	f.SetBBox(testBBox)

	waitFor(t, func() bool { _, ok := rec.lastNonEmpty(); return ok })
	time.Sleep(100 * time.Millisecond)

	if got := atomic.LoadInt32(&src.calls); got != 1 {
		t.Fatalf("burst must collapse to one fetch, got %d source calls", got)
	}
	res, _ := rec.lastNonEmpty()
	if len(res.Facilities) != 1 || res.Facilities[0].ID != "f1" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestEachInputGapPublishesEmptyImmediately(t *testing.T) {
	src := &stubSource{byOrg: map[string][]model.Facility{"org-1": {fac("f1", "org-1")}}}
	rec := &sinkRec{}
	f := newFetcher(src, rec, time.Hour) // debounce never fires in this test
	defer f.Close()

	f.SetTypes([]string{"FIELD"})
	if rs := rec.snapshot(); len(rs) != 1 || len(rs[0].Facilities) != 0 {
		t.Fatalf("missing orgs and bbox must publish empty at once, got %v", rs)
	}
	f.SetCheckedOrgs([]string{"org-1"})
	if rs := rec.snapshot(); len(rs) != 2 || len(rs[1].Facilities) != 0 {
		t.Fatalf("missing bbox must publish empty at once, got %v", rs)
	}
	if atomic.LoadInt32(&src.calls) != 0 {
		t.Fatalf("no upstream call while inputs are incomplete")
	}
}

func TestMergeDedupFirstCheckedWins(t *testing.T) {
	src := &stubSource{byOrg: map[string][]model.Facility{
		"org-1": {fac("shared", "org-1"), fac("a", "org-1")},
		"org-2": {fac("shared", "org-2"), fac("b", "org-2")},
	}}
	rec := &sinkRec{}
	f := newFetcher(src, rec, 10*time.Millisecond)
	defer f.Close()

	f.SetTypes([]string{"FIELD"})
	f.SetBBox(testBBox)
	f.SetCheckedOrgs([]string{"org-1", "org-2"})

	waitFor(t, func() bool { _, ok := rec.lastNonEmpty(); return ok })
	res, _ := rec.lastNonEmpty()

	if len(res.Facilities) != 3 {
		t.Fatalf("expected 3 after dedup, got %d", len(res.Facilities))
	}
	ids := []string{res.Facilities[0].ID, res.Facilities[1].ID, res.Facilities[2].ID}
	if ids[0] != "shared" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("merge must keep check order, got %v", ids)
	}
	if res.Facilities[0].OrgID != "org-1" {
		t.Fatalf("first checked org must win the duplicate, got %s", res.Facilities[0].OrgID)
	}
}

func TestPartialOrgFailureKeepsOthers(t *testing.T) {
	src := &stubSource{
		byOrg:   map[string][]model.Facility{"org-2": {fac("b", "org-2")}},
		errOrgs: map[string]bool{"org-1": true},
	}
	rec := &sinkRec{}
	f := newFetcher(src, rec, 10*time.Millisecond)
	defer f.Close()

	f.SetTypes([]string{"FIELD"})
	f.SetBBox(testBBox)
	f.SetCheckedOrgs([]string{"org-1", "org-2"})

	waitFor(t, func() bool { _, ok := rec.lastNonEmpty(); return ok })
	res, _ := rec.lastNonEmpty()
	if len(res.Facilities) != 1 || res.Facilities[0].ID != "b" {
		t.Fatalf("failed org must contribute nothing without sinking the rest: %+v", res.Facilities)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	block := make(chan struct{})
	src := &stubSource{
		byOrg: map[string][]model.Facility{"org-1": {fac("old", "org-1")}},
		block: block,
	}
	rec := &sinkRec{}
	f := newFetcher(src, rec, 10*time.Millisecond)
	defer f.Close()

	f.SetTypes([]string{"FIELD"})
	f.SetCheckedOrgs([]string{"org-1"})
	f.SetBBox(testBBox)

	// wait for the first fetch to be in flight
	waitFor(t, func() bool { return atomic.LoadInt32(&src.calls) >= 1 })

	// key changes while the fetch is stuck upstream
	src.mu.Lock()
	src.byOrg["org-1"] = []model.Facility{fac("new", "org-1")}
	src.mu.Unlock()
	f.SetBBox(model.BBox{MinLng: 66.9, MinLat: 39.6, MaxLng: 67.2, MaxLat: 39.8})

	close(block)

	waitFor(t, func() bool {
		res, ok := rec.lastNonEmpty()
		return ok && res.Facilities[0].ID == "new"
	})

	for _, r := range rec.snapshot() {
		for _, fc := range r.Facilities {
			if fc.ID == "old" {
				t.Fatalf("stale result leaked into the sink")
			}
		}
	}
}

func TestRefreshForcesNewKey(t *testing.T) {
	src := &stubSource{byOrg: map[string][]model.Facility{"org-1": {fac("f1", "org-1")}}}
	rec := &sinkRec{}
	f := newFetcher(src, rec, 10*time.Millisecond)
	defer f.Close()

	f.SetTypes([]string{"FIELD"})
	f.SetCheckedOrgs([]string{"org-1"})
	f.SetBBox(testBBox)
	waitFor(t, func() bool { _, ok := rec.lastNonEmpty(); return ok })
	first, _ := rec.lastNonEmpty()
	before := len(rec.snapshot())

	f.Refresh()
	waitFor(t, func() bool { return len(rec.snapshot()) > before })

	rs := rec.snapshot()
	second := rs[len(rs)-1]
	if len(second.Facilities) != 1 {
		t.Fatalf("refresh must re-publish the data, got %+v", second)
	}
	if first.Key == second.Key {
		t.Fatalf("refresh must produce a distinct key")
	}
}

func TestCloseStopsPipeline(t *testing.T) {
	src := &stubSource{byOrg: map[string][]model.Facility{"org-1": {fac("f1", "org-1")}}}
	rec := &sinkRec{}
	f := newFetcher(src, rec, 50*time.Millisecond)

	f.SetTypes([]string{"FIELD"})
	f.SetCheckedOrgs([]string{"org-1"})
	f.SetBBox(testBBox)

	// close before the debounce fires
	f.Close()
	time.Sleep(120 * time.Millisecond)

	if _, ok := rec.lastNonEmpty(); ok {
		t.Fatalf("nothing may publish after close")
	}
	if atomic.LoadInt32(&src.calls) != 0 {
		t.Fatalf("closed before debounce, no fetch may run")
	}

	// further input changes are ignored
	n := len(rec.snapshot())
	f.SetBBox(testBBox)
	if len(rec.snapshot()) != n {
		t.Fatalf("closed fetcher must ignore inputs")
	}
}
