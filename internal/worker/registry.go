package worker

import (
	"context"
	"slices"
	"sync"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
	"github.com/google/uuid"
)

// job is an accepted work item. cancel is nil for jobs which were never started.
type job struct {
	id     uuid.UUID
	item   model.WorkItem
	cancel context.CancelFunc
}

func newJob(item model.WorkItem) *job {
	return &job{id: uuid.New(), item: item}
}

// cancelSet holds the products whose work must be discarded.
type cancelSet struct {
	mx  sync.RWMutex
	ids map[int64]struct{}
}

func newCancelSet() *cancelSet {
	return &cancelSet{ids: make(map[int64]struct{})}
}

func (s *cancelSet) Add(productID int64) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.ids[productID] = struct{}{}
}

func (s *cancelSet) Remove(productID int64) {
	s.mx.Lock()
	defer s.mx.Unlock()
	delete(s.ids, productID)
}

func (s *cancelSet) Contains(productID int64) bool {
	s.mx.RLock()
	defer s.mx.RUnlock()
	_, ok := s.ids[productID]
	return ok
}

// jobRegistry tracks running jobs per product so they can be cancelled.
type jobRegistry struct {
	mx   sync.Mutex
	jobs map[int64][]*job
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[int64][]*job)}
}

func (r *jobRegistry) Register(j *job) {
	r.mx.Lock()
	defer r.mx.Unlock()
	p := j.item.Product()
	r.jobs[p] = append(r.jobs[p], j)
}

func (r *jobRegistry) Deregister(j *job) {
	r.mx.Lock()
	defer r.mx.Unlock()
	p := j.item.Product()
	jobs := slices.DeleteFunc(r.jobs[p], func(x *job) bool { return x.id == j.id })
	if len(jobs) == 0 {
		delete(r.jobs, p)
		return
	}
	r.jobs[p] = jobs
}

// Cancel requests cancellation of every running job of a product and returns
// how many were signalled. Jobs deregister themselves once they return.
func (r *jobRegistry) Cancel(productID int64) int {
	r.mx.Lock()
	defer r.mx.Unlock()
	jobs := r.jobs[productID]
	for _, j := range jobs {
		if j.cancel != nil {
			j.cancel()
		}
	}
	return len(jobs)
}

func (r *jobRegistry) Len(productID int64) int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return len(r.jobs[productID])
}
