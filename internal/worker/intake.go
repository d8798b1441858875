package worker

import (
	"sync"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// intake is the unbounded FIFO between Enqueue and the dispatcher.
type intake struct {
	mx      sync.Mutex
	backlog []model.WorkItem
	notify  chan struct{}
}

func newIntake() *intake {
	return &intake{notify: make(chan struct{}, 1)}
}

func (q *intake) push(item model.WorkItem) {
	q.mx.Lock()
	q.backlog = append(q.backlog, item)
	q.mx.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain takes the whole backlog in arrival order.
func (q *intake) drain() []model.WorkItem {
	q.mx.Lock()
	defer q.mx.Unlock()
	items := q.backlog
	q.backlog = nil
	return items
}
