package worker

import (
	"slices"
	"sync"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
	"github.com/google/uuid"
)

// pendingTracker is the ordered list of accepted jobs which have not finished.
// Every change is signalled on Changed; readers re-read the current state,
// so a burst of changes collapses into one wake up.
type pendingTracker struct {
	mx      sync.Mutex
	jobs    []*job
	added   bool
	changed chan struct{}
}

func newPendingTracker() *pendingTracker {
	return &pendingTracker{changed: make(chan struct{}, 1)}
}

func (p *pendingTracker) Add(j *job) {
	p.mx.Lock()
	p.jobs = append(p.jobs, j)
	p.added = true
	p.mx.Unlock()
	p.signal()
}

func (p *pendingTracker) Remove(id uuid.UUID) bool {
	p.mx.Lock()
	idx := slices.IndexFunc(p.jobs, func(j *job) bool { return j.id == id })
	if idx >= 0 {
		p.jobs = slices.Delete(p.jobs, idx, idx+1)
	}
	p.mx.Unlock()
	if idx < 0 {
		return false
	}
	p.signal()
	return true
}

func (p *pendingTracker) Len() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return len(p.jobs)
}

// Observe reports whether the list is empty and whether anything was added
// since the previous call, so a short busy period is not lost when its
// signals collapse.
func (p *pendingTracker) Observe() (empty, added bool) {
	p.mx.Lock()
	defer p.mx.Unlock()
	empty, added = len(p.jobs) == 0, p.added
	p.added = false
	return empty, added
}

// HasOtherMediaWork reports whether a fetch or an upload of the product other
// than the job except is still pending.
func (p *pendingTracker) HasOtherMediaWork(productID int64, except uuid.UUID) bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	return slices.ContainsFunc(p.jobs, func(j *job) bool {
		return j.id != except && j.item.Product() == productID && model.IsMediaWork(j.item)
	})
}

func (p *pendingTracker) Changed() <-chan struct{} {
	return p.changed
}

func (p *pendingTracker) signal() {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}
