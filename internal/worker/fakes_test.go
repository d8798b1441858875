package worker_test

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
	"github.com/CZERTAINLY/ProductMedia/internal/worker"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gauge counts callers inside the media critical section.
type gauge struct {
	mx       sync.Mutex
	cur, max int
}

func (p *gauge) enter() {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.cur++
	p.max = max(p.max, p.cur)
}

func (p *gauge) leave() {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.cur--
}

func (p *gauge) Max() int {
	p.mx.Lock()
	defer p.mx.Unlock()
	return p.max
}

type fakeFetcher struct {
	mx       sync.Mutex
	fail     map[string]bool
	block    chan struct{}
	calls    []string
	inFlight int
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (*model.MediaHandle, error) {
	f.mx.Lock()
	f.calls = append(f.calls, ref)
	fail := f.fail[ref]
	block := f.block
	f.inFlight++
	f.mx.Unlock()
	defer func() {
		f.mx.Lock()
		f.inFlight--
		f.mx.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("no such file")
	}
	return &model.MediaHandle{LocalRef: ref, FileName: ref, MimeType: "image/jpeg", Size: 10}, nil
}

func (f *fakeFetcher) Calls() []string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeFetcher) InFlight() int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.inFlight
}

type fakeUploader struct {
	gauge  *gauge
	delay  time.Duration
	fail   map[string]error
	nextID atomic.Int64

	mx      sync.Mutex
	uploads []model.MediaHandle
}

func (u *fakeUploader) Upload(ctx context.Context, m model.MediaHandle) iter.Seq[model.UploadOutcome] {
	return func(yield func(model.UploadOutcome) bool) {
		u.gauge.enter()
		defer u.gauge.leave()
		u.mx.Lock()
		u.uploads = append(u.uploads, m)
		u.mx.Unlock()

		if !yield(model.UploadProgress{Fraction: 0.5}) {
			return
		}
		if u.delay > 0 {
			select {
			case <-time.After(u.delay):
			case <-ctx.Done():
				return
			}
		}
		if err := u.fail[m.FileName]; err != nil {
			yield(model.UploadFailure{Err: err})
			return
		}
		m.ID = u.nextID.Add(1)
		m.URL = "https://media.example/" + m.FileName
		yield(model.UploadSuccess{Media: m})
	}
}

func (u *fakeUploader) Uploads() []model.MediaHandle {
	u.mx.Lock()
	defer u.mx.Unlock()
	return append([]model.MediaHandle(nil), u.uploads...)
}

type fakeRepo struct {
	gauge *gauge
	delay time.Duration
	block chan struct{}

	mx          sync.Mutex
	products    map[int64]model.Product
	cached      map[int64]model.Product
	fetchErrs   int
	updateErrs  int
	fetchCalls  int
	updateCalls int
}

func newFakeRepo(p *gauge, products ...model.Product) *fakeRepo {
	r := &fakeRepo{
		gauge:    p,
		products: make(map[int64]model.Product),
		cached:   make(map[int64]model.Product),
	}
	for _, x := range products {
		r.products[x.ID] = x
	}
	return r
}

func (r *fakeRepo) FetchProduct(ctx context.Context, id int64) (*model.Product, error) {
	r.gauge.enter()
	defer r.gauge.leave()
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	r.fetchCalls++
	if r.fetchErrs > 0 {
		r.fetchErrs--
		return nil, errors.New("connection reset")
	}
	p, ok := r.products[id]
	if !ok {
		return nil, model.ErrProductNotFound
	}
	r.cached[id] = p
	return &p, nil
}

func (r *fakeRepo) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	r.gauge.enter()
	defer r.gauge.leave()
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return model.Product{}, ctx.Err()
		}
	}
	r.mx.Lock()
	defer r.mx.Unlock()
	r.updateCalls++
	if r.updateErrs > 0 {
		r.updateErrs--
		return model.Product{}, errors.New("bad gateway")
	}
	r.products[p.ID] = p
	r.cached[p.ID] = p
	return p, nil
}

func (r *fakeRepo) CachedProduct(id int64) *model.Product {
	r.mx.Lock()
	defer r.mx.Unlock()
	p, ok := r.cached[id]
	if !ok {
		return nil
	}
	return &p
}

func (r *fakeRepo) Calls() (fetch, update int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.fetchCalls, r.updateCalls
}

type fakeService struct {
	mx     sync.Mutex
	starts int
	stops  int
}

func (s *fakeService) Start() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.starts++
}

func (s *fakeService) Stop() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stops++
}

func (s *fakeService) Counts() (starts, stops int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.starts, s.stops
}

type fakeNotifier struct {
	mx       sync.Mutex
	updates  [][2]int
	progress []float64
	shown    []*model.Product
}

func (n *fakeNotifier) Update(current, total int) {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.updates = append(n.updates, [2]int{current, total})
}

func (n *fakeNotifier) SetProgress(f float64) {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.progress = append(n.progress, f)
}

func (n *fakeNotifier) ShowUpdatingProduct(p *model.Product) {
	n.mx.Lock()
	defer n.mx.Unlock()
	n.shown = append(n.shown, p)
}

func (n *fakeNotifier) Updates() [][2]int {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([][2]int(nil), n.updates...)
}

func (n *fakeNotifier) Progress() []float64 {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([]float64(nil), n.progress...)
}

func (n *fakeNotifier) Shown() []*model.Product {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([]*model.Product(nil), n.shown...)
}

// env is a worker with fake collaborators. It must be created inside a
// synctest bubble.
type env struct {
	w        *worker.Worker
	sub      *worker.Subscription
	gauge    *gauge
	fetcher  *fakeFetcher
	uploader *fakeUploader
	repo     *fakeRepo
	service  *fakeService
	notifier *fakeNotifier

	cancel context.CancelFunc
	done   chan error
}

func newEnv(t *testing.T, cfg worker.Config, products ...model.Product) *env {
	t.Helper()
	p := &gauge{}
	e := &env{
		gauge:    p,
		fetcher:  &fakeFetcher{fail: map[string]bool{}},
		uploader: &fakeUploader{gauge: p, fail: map[string]error{}},
		repo:     newFakeRepo(p, products...),
		service:  &fakeService{},
		notifier: &fakeNotifier{},
	}
	e.w = worker.New(cfg, worker.Collaborators{
		Fetcher:  e.fetcher,
		Uploader: e.uploader,
		Products: e.repo,
		Service:  e.service,
		Notifier: e.notifier,
	})
	e.sub = e.w.Subscribe()
	return e
}

func (e *env) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	e.cancel = cancel
	e.done = make(chan error, 1)
	go func() {
		e.done <- e.w.Do(ctx)
	}()
	t.Cleanup(func() {
		e.stop(t)
	})
}

func (e *env) stop(t *testing.T) {
	t.Helper()
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	require.NoError(t, <-e.done)
}

func (e *env) enqueue(t *testing.T, items ...model.WorkItem) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, e.w.Enqueue(item))
	}
}

// events waits for the bubble to settle and returns everything delivered
// to the subscription so far.
func (e *env) events() []model.Event {
	var ret []model.Event
	for {
		synctest.Wait()
		select {
		case ev, ok := <-e.sub.Events():
			if !ok {
				return ret
			}
			ret = append(ret, ev)
		default:
			return ret
		}
	}
}

func ofType[T model.Event](events []model.Event) []T {
	var ret []T
	for _, e := range events {
		if x, ok := e.(T); ok {
			ret = append(ret, x)
		}
	}
	return ret
}
