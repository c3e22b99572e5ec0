package source

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/cache/cellindex"
	"github.com/umarovb/agromap-core/internal/cache/keys"
	"github.com/umarovb/agromap-core/internal/cache/redisstore"
	"github.com/umarovb/agromap-core/internal/core/model"
	"github.com/umarovb/agromap-core/internal/fetcher"
	h3mapper "github.com/umarovb/agromap-core/internal/mapper/h3"
)

// CacheOptions tune the read-through cache.
type CacheOptions struct {
	TTLDefault time.Duration
	// per facility type; the shortest TTL among the requested types wins
	TTLOverrides map[string]time.Duration
	OpTimeout    time.Duration
	Logger       zerolog.Logger
}

// Cached is a read-through cache in front of another source. Hits are
// served from redis, misses fall through and get written back along
// with the h3 cell index entries the invalidator consumes.
type Cached struct {
	inner fetcher.Source
	store *redisstore.Client
	index cellindex.Index
	cells *h3mapper.Mapper
	opts  CacheOptions
}

func NewCached(inner fetcher.Source, store *redisstore.Client, index cellindex.Index, cells *h3mapper.Mapper, opts CacheOptions) *Cached {
	if opts.TTLDefault <= 0 {
		opts.TTLDefault = time.Minute
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	return &Cached{inner: inner, store: store, index: index, cells: cells, opts: opts}
}

func (c *Cached) FetchByOrg(ctx context.Context, orgID string, q model.Query) ([]model.Facility, error) {
	key := keys.Query(orgID, q.BBox.String(), q.Types)

	if val, found := c.lookup(ctx, key); found {
		var out []model.Facility
		if err := json.Unmarshal(val, &out); err == nil {
			return out, nil
		}
		// a corrupt entry is treated as a miss and overwritten below
		c.opts.Logger.Warn().Str("key", key).Msg("corrupt cache entry")
	}

	out, err := c.inner.FetchByOrg(ctx, orgID, q)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, key, q, out)
	return out, nil
}

// cache trouble must never fail the read, it only costs a miss
func (c *Cached) lookup(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	val, found, err := c.store.Get(opCtx, key)
	if err != nil {
		c.opts.Logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return nil, false
	}
	return val, found
}

func (c *Cached) fill(ctx context.Context, key string, q model.Query, facilities []model.Facility) {
	body, err := json.Marshal(facilities)
	if err != nil {
		c.opts.Logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}
	ttl := c.ttlFor(q.Types)

	opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
	defer cancel()
	if err := c.store.Set(opCtx, key, body, ttl); err != nil {
		c.opts.Logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}

	cells, err := c.cells.CellsForBBox(q.BBox)
	if err != nil {
		c.opts.Logger.Warn().Err(err).Str("key", key).Msg("cell cover failed")
		return
	}
	if err := c.index.Register(opCtx, key, cells, ttl); err != nil {
		c.opts.Logger.Warn().Err(err).Str("key", key).Msg("cell index register failed")
	}
}

func (c *Cached) ttlFor(types []string) time.Duration {
	ttl := c.opts.TTLDefault
	for _, t := range types {
		if ovr, ok := c.opts.TTLOverrides[t]; ok && ovr > 0 && ovr < ttl {
			ttl = ovr
		}
	}
	return ttl
}
