package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"

	gocron "github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
	"github.com/CZERTAINLY/ProductMedia/internal/worker"
)

// Deps are the collaborators a Supervisor does not build itself. Service
// and Notifier are optional.
type Deps struct {
	Products model.ProductRepository
	Service  model.ServiceController
	Notifier model.Notifier
}

type Supervisor struct {
	worker    *worker.Worker
	sourceDir string
	source    *os.Root
	closers   []io.Closer
	oneshot   bool
	scheduler gocron.Scheduler
	start     chan struct{}

	// owned by the event loop
	seen      map[string]struct{}
	collected map[int64][]model.MediaHandle
	errs      []error
}

func NewSupervisor(ctx context.Context, cfg model.Config, deps Deps) (*Supervisor, error) {
	if deps.Products == nil {
		return nil, errors.New("product repository is required")
	}
	wcfg, err := worker.ConfigFrom(cfg.Worker)
	if err != nil {
		return nil, err
	}

	source, err := os.OpenRoot(cfg.Media.Source)
	if err != nil {
		return nil, fmt.Errorf("opening media source: %w", err)
	}
	uploader, err := newUploader(source, cfg.Media.Upload)
	if err != nil {
		_ = source.Close()
		return nil, fmt.Errorf("initializing uploader: %w", err)
	}

	s := &Supervisor{
		sourceDir: cfg.Media.Source,
		source:    source,
		oneshot:   cfg.Service.Mode != model.ServiceModeTimer,
		start:     make(chan struct{}, 1),
		seen:      make(map[string]struct{}),
		collected: make(map[int64][]model.MediaHandle),
	}
	if closer, ok := uploader.(io.Closer); ok {
		s.closers = append(s.closers, closer)
	}
	s.closers = append(s.closers, source)

	if cfg.Service.Mode == model.ServiceModeTimer {
		scheduler, err := newScheduler(ctx, cfg.Service.Schedule, s.Start)
		if err != nil {
			s.close(ctx)
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
		s.scheduler = scheduler
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = NewWriteNotifier(os.Stderr)
	}
	s.worker = worker.New(wcfg, worker.Collaborators{
		Fetcher:  NewDirFetcher(source),
		Uploader: uploader,
		Products: deps.Products,
		Service:  deps.Service,
		Notifier: notifier,
	})
	return s, nil
}

// Start asks for a rescan of the media source. Requests made while one is
// already waiting are merged.
func (s *Supervisor) Start() {
	select {
	case s.start <- struct{}{}:
	default:
	}
}

// Do runs the worker and the supervisor event loop.
//
// The loop scans the media source on entry and on every Start, then chains
// the worker events: a fetched media is uploaded, and once a product has no
// media work left the images uploaded so far are attached to it.
//
// In manual mode Do returns when the worker reports ServiceStopped, with
// all fetch, upload and update failures joined. It returns immediately when
// the source holds no media. In timer mode failures are logged and failed
// references are retried by the next scan; Do runs until ctx is cancelled.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "source", s.sourceDir, "oneshot", s.oneshot)
	defer s.close(ctx)

	sub := s.worker.Subscribe()
	defer sub.Close()

	wctx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	var g errgroup.Group
	g.Go(func() error {
		return s.worker.Do(wctx)
	})
	g.Go(func() error {
		defer stopWorker()
		return s.loop(ctx, sub)
	})
	return g.Wait()
}

func (s *Supervisor) loop(ctx context.Context, sub *worker.Subscription) error {
	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			if err := s.scheduler.Shutdown(); err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	n, err := s.seed(ctx)
	switch {
	case err != nil && s.oneshot:
		return err
	case err != nil:
		slog.ErrorContext(ctx, "scanning media source failed", "error", err)
	case n == 0 && s.oneshot:
		slog.InfoContext(ctx, "no media found: nothing to do", "source", s.sourceDir)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.start:
			if _, err := s.seed(ctx); err != nil {
				slog.ErrorContext(ctx, "scanning media source failed", "error", err)
			}
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if !s.handle(ctx, e) {
				continue
			}
			err := errors.Join(s.errs...)
			s.errs = nil
			if s.oneshot {
				return err
			}
			if err != nil {
				slog.ErrorContext(ctx, "media run finished with errors", "error", err)
			}
		}
	}
}

// seed enqueues a FetchMedia for every new file <source>/<product id>/<name>.
func (s *Supervisor) seed(ctx context.Context) (int, error) {
	fsys := s.source.FS()
	dirs, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return 0, fmt.Errorf("reading media source: %w", err)
	}

	var n int
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		productID, err := strconv.ParseInt(d.Name(), 10, 64)
		if err != nil || productID <= 0 {
			slog.DebugContext(ctx, "not a product directory: ignoring", "dir", d.Name())
			continue
		}
		files, err := fs.ReadDir(fsys, d.Name())
		if err != nil {
			slog.WarnContext(ctx, "reading product directory failed: ignoring", "dir", d.Name(), "error", err)
			continue
		}
		for _, f := range files {
			if !f.Type().IsRegular() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			ref := path.Join(d.Name(), f.Name())
			if _, ok := s.seen[ref]; ok {
				continue
			}
			if err := s.worker.Enqueue(model.FetchMedia{ProductID: productID, LocalRef: ref}); err != nil {
				slog.WarnContext(ctx, "enqueue failed: ignoring", "local_ref", ref, "error", err)
				continue
			}
			s.seen[ref] = struct{}{}
			n++
		}
	}
	slog.InfoContext(ctx, "media source scanned", "source", s.sourceDir, "enqueued", n)
	return n, nil
}

// handle reacts to a worker event and reports whether it was ServiceStopped.
func (s *Supervisor) handle(ctx context.Context, e model.Event) bool {
	switch e := e.(type) {
	case model.FetchSucceeded:
		err := s.worker.Enqueue(model.UploadMedia{ProductID: e.ProductID, LocalRef: e.LocalRef, Media: e.Media})
		if err != nil {
			s.fail(ctx, e.LocalRef, fmt.Errorf("enqueueing upload of %s: %w", e.LocalRef, err))
		}
	case model.FetchFailed:
		s.fail(ctx, e.LocalRef, fmt.Errorf("%s: %w", e.LocalRef, model.ErrFetchFailed))
	case model.UploadSucceeded:
		s.collected[e.ProductID] = append(s.collected[e.ProductID], e.Media)
	case model.UploadFailed:
		s.fail(ctx, e.LocalRef, fmt.Errorf("uploading %s: %w", e.LocalRef, e.Err))
	case model.ProductUploadsCompleted:
		media := s.collected[e.ProductID]
		delete(s.collected, e.ProductID)
		if len(media) == 0 {
			slog.DebugContext(ctx, "nothing uploaded for the product", "product_id", e.ProductID)
			return false
		}
		if err := s.worker.Enqueue(model.UpdateProduct{ProductID: e.ProductID, Images: media}); err != nil {
			s.errs = append(s.errs, fmt.Errorf("enqueueing update of product %d: %w", e.ProductID, err))
		}
	case model.ProductUpdateSucceeded:
		slog.InfoContext(ctx, "product updated",
			"product_id", e.ProductID,
			"images_added", e.ImagesCount,
			"images_total", len(e.Product.Images),
		)
	case model.ProductUpdateFailed:
		slog.ErrorContext(ctx, "product update failed", "product_id", e.ProductID)
		s.errs = append(s.errs, fmt.Errorf("product %d: %w", e.ProductID, model.ErrUpdateFailed))
	case model.ServiceStopped:
		slog.DebugContext(ctx, "worker went idle")
		return true
	}
	return false
}

// fail records err and forgets ref, so the next scan tries it again.
func (s *Supervisor) fail(ctx context.Context, ref string, err error) {
	slog.WarnContext(ctx, "media failed", "local_ref", ref, "error", err)
	s.errs = append(s.errs, err)
	delete(s.seen, ref)
}

func (s *Supervisor) close(ctx context.Context) {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			slog.ErrorContext(ctx, "closing has failed", "error", err)
		}
	}
	s.closers = nil
}

func newUploader(source *os.Root, cfg model.Upload) (model.MediaUploader, error) {
	switch {
	case cfg.Dir != "" && cfg.URL != "":
		return nil, errors.New("media.upload: set either dir or url, not both")
	case cfg.URL != "":
		return NewHTTPUploader(source, cfg.URL)
	case cfg.Dir != "":
		return NewOSRootUploader(source, cfg.Dir)
	default:
		return nil, errors.New("media.upload: dir or url is required")
	}
}

func newScheduler(ctx context.Context, cfgp *model.TimerSchedule, startFunc func()) (gocron.Scheduler, error) {
	if cfgp == nil {
		return nil, errors.New("service.schedule is nil")
	}
	cfg := *cfgp
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if err := ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
	case cfg.Duration != "":
		d, err := ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.duration: %w", err)
		}
		job = gocron.DurationJob(d)
		slog.DebugContext(ctx, "successfully parsed", "duration", d.String())
	default:
		return nil, errors.New("both cron and duration are empty")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(startFunc),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
