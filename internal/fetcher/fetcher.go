// Package fetcher runs the viewport fetch pipeline: debounce input
// changes, fan out one fetch per checked org, merge with first-wins
// dedup, and discard results whose query key went stale while they
// were in flight.
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/core/model"
	"github.com/umarovb/agromap-core/internal/core/observability"
)

// Source serves one per-org facility lookup. Implementations must be
// safe for concurrent use; the pipeline calls one goroutine per org.
type Source interface {
	FetchByOrg(ctx context.Context, orgID string, q model.Query) ([]model.Facility, error)
}

// Result is one published snapshot of the viewport's facilities.
type Result struct {
	Facilities []model.Facility
	Key        model.QueryKey
}

type Options struct {
	// Debounce is how long inputs must stay quiet before a fetch
	// fires. Zero means the 250ms default.
	Debounce time.Duration
	Logger   zerolog.Logger
}

const defaultDebounce = 250 * time.Millisecond

type Fetcher struct {
	src      Source
	sink     func(Result)
	log      zerolog.Logger
	debounce time.Duration

	mu       sync.Mutex
	bbox     model.BBox
	orgIDs   []string
	types    []string
	reload   uint64
	current  model.QueryKey
	timer    *time.Timer
	inflight context.CancelFunc
	closed   bool

	wg sync.WaitGroup

	afterFunc func(time.Duration, func()) *time.Timer // for tests
}

// New builds a pipeline publishing to sink. The sink is called from
// pipeline goroutines for fetched results and from the caller's
// goroutine for immediate empty publishes.
func New(src Source, sink func(Result), opts Options) *Fetcher {
	d := opts.Debounce
	if d <= 0 {
		d = defaultDebounce
	}
	return &Fetcher{
		src:       src,
		sink:      sink,
		log:       opts.Logger,
		debounce:  d,
		afterFunc: time.AfterFunc,
	}
}

func (f *Fetcher) SetBBox(bb model.BBox) {
	f.apply(func() { f.bbox = bb })
}

func (f *Fetcher) SetCheckedOrgs(orgIDs []string) {
	cp := make([]string, len(orgIDs))
	copy(cp, orgIDs)
	f.apply(func() { f.orgIDs = cp })
}

func (f *Fetcher) SetTypes(types []string) {
	cp := make([]string, len(types))
	copy(cp, types)
	f.apply(func() { f.types = cp })
}

// Refresh bumps the reload token, forcing a re-fetch whose result
// cannot be satisfied by anything already in flight.
func (f *Fetcher) Refresh() {
	f.apply(func() { f.reload++ })
}

// apply mutates the inputs, recomputes the current key and either
// short-circuits an empty query or re-arms the debounce timer.
func (f *Fetcher) apply(mutate func()) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	mutate()
	key := model.NewQueryKey(f.bbox, f.orgIDs, f.types, f.reload)
	f.current = key

	if f.bbox.IsZero() || len(f.orgIDs) == 0 || len(f.types) == 0 {
		f.stopTimerLocked()
		f.cancelInflightLocked()
		f.mu.Unlock()

		observability.IncFetch(observability.FetchEmptyInput)
		f.sink(Result{Facilities: []model.Facility{}, Key: key})
		return
	}

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = f.afterFunc(f.debounce, f.fire)
	f.mu.Unlock()
}

// fire snapshots the inputs and launches the fan-out.
func (f *Fetcher) fire() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	key := f.current
	bbox := f.bbox
	orgIDs := make([]string, len(f.orgIDs))
	copy(orgIDs, f.orgIDs)
	types := make([]string, len(f.types))
	copy(types, f.types)

	f.cancelInflightLocked()
	ctx, cancel := context.WithCancel(context.Background())
	f.inflight = cancel

	f.wg.Add(1)
	f.mu.Unlock()

	go f.run(ctx, key, model.Query{BBox: bbox, Types: types}, orgIDs)
}

func (f *Fetcher) run(ctx context.Context, key model.QueryKey, q model.Query, orgIDs []string) {
	defer f.wg.Done()

	merged := FetchMerged(ctx, f.src, q, orgIDs, f.log)

	f.mu.Lock()
	stale := f.closed || key != f.current
	f.mu.Unlock()
	if stale {
		observability.IncFetch(observability.FetchStaleDiscard)
		f.log.Debug().Str("key", key.String()).Msg("stale result discarded")
		return
	}

	observability.IncFetch(observability.FetchPublished)
	f.sink(Result{Facilities: merged, Key: key})
}

// FetchMerged fans out one fetch per org and merges the contributions
// in check order with first-wins dedup by facility id. A failed org
// contributes nothing; the rest still render.
func FetchMerged(ctx context.Context, src Source, q model.Query, orgIDs []string, log zerolog.Logger) []model.Facility {
	perOrg := make([][]model.Facility, len(orgIDs))
	var wg sync.WaitGroup
	wg.Add(len(orgIDs))

	for i, orgID := range orgIDs {
		go func(i int, orgID string) {
			defer wg.Done()
			facs, err := src.FetchByOrg(ctx, orgID, q)
			if err != nil {
				observability.IncOrgFetchError(orgID)
				log.Warn().Err(err).Str("org_id", orgID).Msg("org fetch failed")
				return
			}
			perOrg[i] = facs
		}(i, orgID)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	merged := make([]model.Facility, 0)
	for _, facs := range perOrg {
		for _, fac := range facs {
			if _, ok := seen[fac.ID]; ok {
				continue
			}
			seen[fac.ID] = struct{}{}
			merged = append(merged, fac)
		}
	}
	return merged
}

func (f *Fetcher) stopTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Fetcher) cancelInflightLocked() {
	if f.inflight != nil {
		f.inflight()
		f.inflight = nil
	}
}

// Close stops the timer, cancels in-flight fetches and waits for
// their goroutines. Nothing is published after Close returns.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.stopTimerLocked()
	f.cancelInflightLocked()
	f.mu.Unlock()

	f.wg.Wait()
}
