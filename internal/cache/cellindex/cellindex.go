// Package cellindex maintains the reverse index from h3 cells to the
// cached query keys whose viewport covers them. A facility change maps
// to its covering cells, and the index yields exactly the cached
// queries that must be dropped.
package cellindex

import (
	"context"
	"fmt"
	"time"

	"github.com/umarovb/agromap-core/internal/cache/redisstore"
)

type Index interface {
	// Register records that the cached query key covers the given cells.
	Register(ctx context.Context, queryKey string, cells []string, ttl time.Duration) error

	// QueryKeysFor returns the cached query keys registered for a cell.
	QueryKeysFor(ctx context.Context, cell string) ([]string, error)

	// Drop removes the index entries for the given cells.
	Drop(ctx context.Context, cells []string) error
}

type redisIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) Index {
	return &redisIndex{cli: cli}
}

func cellKey(cell string) string { return "cellidx:" + cell }

func (ix *redisIndex) Register(ctx context.Context, queryKey string, cells []string, ttl time.Duration) error {
	if queryKey == "" || len(cells) == 0 {
		return nil
	}
	for _, cell := range cells {
		k := cellKey(cell)
		if err := ix.cli.SAdd(ctx, k, queryKey); err != nil {
			return fmt.Errorf("cellindex register %q: %w", cell, err)
		}
		// keep the index from outliving the cached entries it points at
		if ttl > 0 {
			if err := ix.cli.Expire(ctx, k, ttl); err != nil {
				return fmt.Errorf("cellindex expire %q: %w", cell, err)
			}
		}
	}
	return nil
}

func (ix *redisIndex) QueryKeysFor(ctx context.Context, cell string) ([]string, error) {
	members, err := ix.cli.SMembers(ctx, cellKey(cell))
	if err != nil {
		return nil, fmt.Errorf("cellindex lookup %q: %w", cell, err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}

func (ix *redisIndex) Drop(ctx context.Context, cells []string) error {
	if len(cells) == 0 {
		return nil
	}
	ks := make([]string, len(cells))
	for i, c := range cells {
		ks[i] = cellKey(c)
	}
	if err := ix.cli.Del(ctx, ks...); err != nil {
		return fmt.Errorf("cellindex drop: %w", err)
	}
	return nil
}
