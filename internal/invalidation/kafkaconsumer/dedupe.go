package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seqDedupe drops replayed or reordered events per facility. Kafka
// redelivers on rebalance, so the consumer has to be idempotent.
type seqDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newSeqDedupe(size int) *seqDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &seqDedupe{lru: c}
}

// returns true if seq is greater than the last applied one
func (d *seqDedupe) shouldApply(facilityID string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(facilityID); ok {
		if seq <= last {
			return false
		}
	}
	d.lru.Add(facilityID, seq)
	return true
}
