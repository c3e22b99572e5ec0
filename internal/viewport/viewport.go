// Package viewport tracks the settled map viewport as a bounding box.
package viewport

import (
	"sync"

	"github.com/umarovb/agromap-core/internal/core/model"
)

// MapHost is the surface the tracker needs from a map front end. Hosts
// call the ready callback once initialization finishes and the moveend
// callback after every settled pan or zoom, never during continuous
// motion.
type MapHost interface {
	Bounds() (model.BBox, bool)
	WhenReady(fn func())
	OnMoveEnd(fn func()) (unsubscribe func())
	FlyTo(lat, lng float64, zoom int)
}

// Tracker forwards the host's settled bounds to a sink. One emission
// when the host becomes ready, one per settled motion, none after
// Close.
type Tracker struct {
	host MapHost
	sink func(model.BBox)

	mu     sync.Mutex
	unsub  func()
	closed bool
}

func New(host MapHost, sink func(model.BBox)) *Tracker {
	t := &Tracker{host: host, sink: sink}
	t.unsub = host.OnMoveEnd(t.emit)
	host.WhenReady(t.emit)
	return t
}

func (t *Tracker) emit() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	bb, ok := t.host.Bounds()
	if !ok {
		return
	}
	t.sink(bb)
}

// FlyTo delegates a navigation request to the host. The resulting
// moveend produces the follow-up emission.
func (t *Tracker) FlyTo(lat, lng float64, zoom int) {
	t.host.FlyTo(lat, lng, zoom)
}

func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	if t.unsub != nil {
		t.unsub()
	}
}
