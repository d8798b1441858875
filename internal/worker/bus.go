package worker

import (
	"sync"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// bus broadcasts every published event to all current subscribers. Each
// subscriber owns an unbounded backlog, so a slow reader never blocks the
// publisher nor the other readers. Events published before Subscribe are
// not replayed.
type bus struct {
	mx     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

func newBus() *bus {
	return &bus{subs: make(map[*Subscription]struct{})}
}

// Subscription delivers worker events in publication order.
type Subscription struct {
	bus    *bus
	mx     sync.Mutex
	queue  []model.Event
	notify chan struct{}
	done   chan struct{}
	out    chan model.Event
	once   sync.Once
}

func (b *bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:    b,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan model.Event),
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.done) })
		close(s.out)
		return s
	}
	b.subs[s] = struct{}{}
	b.wg.Go(s.pump)
	return s
}

func (b *bus) Publish(e model.Event) {
	b.mx.RLock()
	defer b.mx.RUnlock()
	for s := range b.subs {
		s.push(e)
	}
}

// Close ends every subscription. Undelivered events are dropped.
func (b *bus) Close() {
	b.mx.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mx.Unlock()

	for s := range subs {
		s.once.Do(func() { close(s.done) })
	}
	b.wg.Wait()
}

func (b *bus) remove(s *Subscription) {
	b.mx.Lock()
	defer b.mx.Unlock()
	delete(b.subs, s)
}

// Events returns the channel of delivered events. It is closed after Close,
// or when the worker shuts down.
func (s *Subscription) Events() <-chan model.Event {
	return s.out
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.done)
	})
}

func (s *Subscription) push(e model.Event) {
	s.mx.Lock()
	s.queue = append(s.queue, e)
	s.mx.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) pop() (model.Event, bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	e := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return e, true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		for {
			e, ok := s.pop()
			if !ok {
				break
			}
			select {
			case s.out <- e:
			case <-s.done:
				return
			}
		}
		select {
		case <-s.notify:
		case <-s.done:
			return
		}
	}
}
