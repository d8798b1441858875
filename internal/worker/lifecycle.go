package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// lifecycle keeps the foreground service running while there is pending
// work. The service is started once per busy period. After the pending list
// has stayed empty for the debounce window the service is stopped, the
// ledger is reset and ServiceStopped is published. New work during the
// window cancels the stop.
//
// Nothing is emitted for the idle period before the first item, and a
// service still running at shutdown is stopped silently.
func (w *Worker) lifecycle(ctx context.Context) {
	var (
		running bool
		timer   *time.Timer
		fire    <-chan time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
			timer, fire = nil, nil
		}
	}
	defer func() {
		disarm()
		if running {
			slog.DebugContext(ctx, "worker shutting down: stopping service")
			w.service.Stop()
		}
	}()

	for {
		fired := false
		select {
		case <-ctx.Done():
			return
		case <-w.pending.Changed():
		case <-fire:
			timer, fire = nil, nil
			fired = true
		}

		empty, added := w.pending.Observe()
		if added || !empty {
			disarm()
			if !running {
				running = true
				slog.DebugContext(ctx, "pending work: starting service")
				w.service.Start()
			}
		}
		if !empty || !running {
			continue
		}

		switch {
		case fired && !added:
			running = false
			w.service.Stop()
			w.ledger.Clear()
			slog.InfoContext(ctx, "no pending work: service stopped")
			w.emit(ctx, model.ServiceStopped{})
		case timer == nil:
			timer = time.NewTimer(w.cfg.Debounce)
			fire = timer.C
		}
	}
}
