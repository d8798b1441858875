// Package worker accepts media work items and runs them concurrently.
//
// Items enter through Enqueue and are dispatched in arrival order, each one on
// its own goroutine. Uploads and product updates share a single critical
// section, fetches do not. A product can be cancelled at any time with
// CancelUpload; its running jobs are cancelled, its queued items skipped and
// its events dropped until a new item for that product is enqueued.
//
// The foreground service is kept alive while there is pending work and is
// stopped after a quiet debounce window, at which point ServiceStopped is
// published to all subscribers.
package worker
