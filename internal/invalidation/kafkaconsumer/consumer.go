// Package kafkaconsumer drives cache invalidation from facility change
// events. An event resolves to the h3 cells its location touches, the
// cell index yields the cached viewport queries covering those cells,
// and those entries are dropped before the fetch pipeline is nudged to
// reload.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/cache/cellindex"
	"github.com/umarovb/agromap-core/internal/cache/redisstore"
	"github.com/umarovb/agromap-core/internal/core/observability"
	"github.com/umarovb/agromap-core/internal/invalidation"
	h3mapper "github.com/umarovb/agromap-core/internal/mapper/h3"
)

// Refresher is nudged after cached entries were dropped, so open
// viewports reload. The fetch pipeline satisfies this.
type Refresher interface {
	Refresh()
}

type Consumer struct {
	cfg       Config
	logger    zerolog.Logger
	store     *redisstore.Client
	index     cellindex.Index
	mapper    *h3mapper.Mapper
	refresher Refresher
	dedupe    *seqDedupe
}

func New(cfg Config, logger zerolog.Logger, store *redisstore.Client, index cellindex.Index, mapper *h3mapper.Mapper, refresher Refresher) *Consumer {
	return &Consumer{
		cfg:       cfg,
		logger:    logger.With().Str("component", "kafka_consumer").Logger(),
		store:     store,
		index:     index,
		mapper:    mapper,
		refresher: refresher,
		dedupe:    newSeqDedupe(cfg.DedupeSize),
	}
}

// Start consumes until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil || c.index == nil || c.mapper == nil {
		return errors.New("kafkaconsumer: missing dependencies (store/index/mapper)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("kafka invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single facility change message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("decode_error")
		c.logger.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("undecodable invalidation event")
		// poison messages are logged and skipped, not retried forever
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation("invalid")
		c.logger.Warn().Err(err).Str("facility_id", ev.FacilityID).Msg("invalid invalidation event")
		return nil
	}

	if !c.dedupe.shouldApply(ev.FacilityID, ev.Seq) {
		observability.IncInvalidation("duplicate")
		c.logger.Debug().Str("facility_id", ev.FacilityID).Uint64("seq", ev.Seq).Msg("stale event skipped")
		return nil
	}

	cells, err := c.cellsForEvent(ev)
	if err != nil {
		observability.IncInvalidation("map_error")
		return fmt.Errorf("derive cells: %w", err)
	}
	if len(cells) == 0 {
		observability.IncInvalidation("no_cells")
		return nil
	}

	dropped := 0
	for _, cell := range cells {
		queryKeys, err := c.index.QueryKeysFor(ctx, cell)
		if err != nil {
			observability.IncInvalidation("index_error")
			return fmt.Errorf("cell index lookup: %w", err)
		}
		if len(queryKeys) == 0 {
			continue
		}
		if err := c.store.Del(ctx, queryKeys...); err != nil {
			observability.IncInvalidation("redis_error")
			return fmt.Errorf("drop cached queries: %w", err)
		}
		dropped += len(queryKeys)
	}
	if err := c.index.Drop(ctx, cells); err != nil {
		observability.IncInvalidation("index_error")
		return fmt.Errorf("drop cell index: %w", err)
	}

	if dropped > 0 && c.refresher != nil {
		c.refresher.Refresh()
	}

	observability.IncInvalidation("applied")
	c.logger.Info().
		Str("op", ev.Op).
		Str("facility_id", ev.FacilityID).
		Str("org_id", ev.OrgID).
		Int("cells", len(cells)).
		Int("keys", dropped).
		Msg("invalidated cached queries")
	return nil
}

func (c *Consumer) cellsForEvent(ev invalidation.Event) ([]string, error) {
	if ev.Lat != nil && ev.Lng != nil {
		cell, err := c.mapper.CellForPoint(*ev.Lat, *ev.Lng)
		if err != nil {
			return nil, err
		}
		return []string{cell}, nil
	}
	g, err := geojson.UnmarshalGeometry(ev.Geometry)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	return c.mapper.CellsForGeometry(g.Geometry())
}
