package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/ProductMedia/internal/log"
	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

type Config struct {
	// Attempts is the number of tries for each product read and write.
	Attempts int
	// Debounce is how long the pending list must stay empty before the
	// foreground service is stopped.
	Debounce time.Duration
	// ReleaseSkipped removes items dropped for a cancelled product from the
	// pending list. When false they stay pending until the worker ends.
	ReleaseSkipped bool
}

func DefaultConfig() Config {
	return Config{
		Attempts:       3,
		Debounce:       time.Second,
		ReleaseSkipped: true,
	}
}

// ConfigFrom converts the worker section of a configuration file.
func ConfigFrom(cfg model.Worker) (Config, error) {
	debounce, err := cfg.DebounceDuration()
	if err != nil {
		return Config{}, err
	}
	if cfg.Attempts < 1 {
		return Config{}, fmt.Errorf("worker.attempts must be positive, got %d", cfg.Attempts)
	}
	return Config{
		Attempts:       cfg.Attempts,
		Debounce:       debounce,
		ReleaseSkipped: cfg.ReleaseSkipped,
	}, nil
}

// Collaborators are the external services used by a Worker. Service and
// Notifier are optional.
type Collaborators struct {
	Fetcher  model.MediaFetcher
	Uploader model.MediaUploader
	Products model.ProductRepository
	Service  model.ServiceController
	Notifier model.Notifier
}

type Worker struct {
	cfg      Config
	fetcher  model.MediaFetcher
	uploader model.MediaUploader
	products model.ProductRepository
	service  model.ServiceController
	notifier model.Notifier

	intake    *intake
	cancelled *cancelSet
	jobs      *jobRegistry
	pending   *pendingTracker
	ledger    *ledger
	lock      *mediaLock
	bus       *bus
	wg        sync.WaitGroup
}

func New(cfg Config, c Collaborators) *Worker {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	w := &Worker{
		cfg:      cfg,
		fetcher:  c.Fetcher,
		uploader: c.Uploader,
		products: c.Products,
		service:  c.Service,
		notifier: c.Notifier,

		intake:    newIntake(),
		cancelled: newCancelSet(),
		jobs:      newJobRegistry(),
		pending:   newPendingTracker(),
		ledger:    &ledger{},
		lock:      newMediaLock(),
		bus:       newBus(),
	}
	if w.service == nil {
		w.service = nopService{}
	}
	if w.notifier == nil {
		w.notifier = nopNotifier{}
	}
	return w
}

// Enqueue submits a work item. It never blocks. Enqueueing clears a previous
// cancellation of the item's product, and a FetchMedia is recorded in the
// upload ledger right away.
func (w *Worker) Enqueue(item model.WorkItem) error {
	if err := model.Validate(item); err != nil {
		return err
	}
	if u, ok := item.(model.UpdateProduct); ok {
		u.Images = slices.Clone(u.Images)
		item = u
	}
	w.cancelled.Remove(item.Product())
	if f, ok := item.(model.FetchMedia); ok {
		w.ledger.Append(f.ProductID, f.LocalRef)
	}
	w.intake.push(item)
	return nil
}

// CancelUpload discards all work of a product: running jobs are cancelled,
// queued items are skipped, their events are suppressed and the product's
// ledger entries are removed. A later Enqueue for the product lifts it.
func (w *Worker) CancelUpload(productID int64) {
	w.cancelled.Add(productID)
	n := w.jobs.Cancel(productID)
	removed := w.ledger.RemoveProduct(productID)
	slog.Info("product uploads cancelled",
		"product_id", productID,
		"jobs", n,
		"ledger_entries", removed,
	)
}

// Subscribe returns a new subscription to worker events.
func (w *Worker) Subscribe() *Subscription {
	return w.bus.Subscribe()
}

// Ledger returns a copy of the upload ledger.
func (w *Worker) Ledger() []model.MediaUploadEntry {
	return w.ledger.Snapshot()
}

// PendingLen returns the number of accepted, unfinished items.
func (w *Worker) PendingLen() int {
	return w.pending.Len()
}

// Do runs the dispatcher and the service lifecycle until ctx is cancelled.
// On return all jobs have finished, a running service has been stopped and
// all subscriptions are closed. A Worker can be run only once.
func (w *Worker) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a worker")

	defer w.bus.Close()
	defer w.wg.Wait()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.dispatch(ctx)
		return nil
	})
	g.Go(func() error {
		w.lifecycle(ctx)
		return nil
	})
	return g.Wait()
}

func (w *Worker) dispatch(ctx context.Context) {
	for {
		for _, item := range w.intake.drain() {
			w.accept(ctx, item)
		}
		select {
		case <-ctx.Done():
			return
		case <-w.intake.notify:
		}
	}
}

func (w *Worker) accept(ctx context.Context, item model.WorkItem) {
	j := newJob(item)
	ctx = log.ContextAttrs(ctx, append(model.Attrs(item), slog.String("job_id", j.id.String()))...)

	w.pending.Add(j)
	if w.cancelled.Contains(item.Product()) {
		slog.DebugContext(ctx, "product is cancelled: skipping")
		if w.cfg.ReleaseSkipped {
			w.pending.Remove(j.id)
		}
		return
	}

	// CancelUpload may run between the check above and Register. Such a job
	// is not cancelled and runs to the end; emit drops its events.
	jctx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	w.jobs.Register(j)
	w.wg.Go(func() {
		defer func() {
			w.jobs.Deregister(j)
			cancel()
			w.pending.Remove(j.id)
		}()
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("job panicked: %v", r)
				slog.ErrorContext(jctx, "job failed", "error", err)
				w.emit(jctx, failureEvent(item, err, w.products.CachedProduct(item.Product())))
			}
		}()
		w.execute(jctx, j)
	})
}

func (w *Worker) execute(ctx context.Context, j *job) {
	slog.DebugContext(ctx, "job started")
	switch item := j.item.(type) {
	case model.FetchMedia:
		w.fetchMedia(ctx, item)
	case model.UploadMedia:
		w.uploadMedia(ctx, j, item)
	case model.UpdateProduct:
		w.updateProduct(ctx, item)
	default:
		slog.WarnContext(ctx, "unsupported work item: ignoring", "type", fmt.Sprintf("%T", item))
	}
}

// emit records terminal media events in the ledger and publishes e unless
// its product is cancelled.
func (w *Worker) emit(ctx context.Context, e model.Event) {
	if me, ok := e.(model.MediaUploadEvent); ok && model.IsTerminal(me) {
		w.ledger.MarkDone(me.Product(), me.Ref())
	}
	if e.Product() != 0 && w.cancelled.Contains(e.Product()) {
		slog.DebugContext(ctx, "product is cancelled: dropping event", "event", fmt.Sprintf("%T", e))
		return
	}
	w.bus.Publish(e)
}

func failureEvent(item model.WorkItem, err error, cached *model.Product) model.Event {
	switch i := item.(type) {
	case model.FetchMedia:
		return model.FetchFailed{ProductID: i.ProductID, LocalRef: i.LocalRef}
	case model.UploadMedia:
		return model.UploadFailed{ProductID: i.ProductID, LocalRef: i.LocalRef, Err: err}
	default:
		return model.ProductUpdateFailed{ProductID: item.Product(), Product: cached}
	}
}

type nopService struct{}

func (nopService) Start() {}
func (nopService) Stop()  {}

type nopNotifier struct{}

func (nopNotifier) Update(int, int)                     {}
func (nopNotifier) SetProgress(float64)                 {}
func (nopNotifier) ShowUpdatingProduct(*model.Product) {}
