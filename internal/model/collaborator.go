package model

import (
	"context"
	"iter"
)

// MediaFetcher resolves a local resource reference into a media handle.
// A nil handle or an error means the fetch failed.
type MediaFetcher interface {
	Fetch(ctx context.Context, localRef string) (*MediaHandle, error)
}

// MediaUploader uploads a fetched media and reports progress. The returned
// sequence is terminal after UploadFailure or UploadSuccess.
type MediaUploader interface {
	Upload(ctx context.Context, media MediaHandle) iter.Seq[UploadOutcome]
}

// ProductRepository gives the worker access to the product catalog.
type ProductRepository interface {
	// FetchProduct loads the product from the source of truth, falling back
	// to the cache. A cached product may be returned together with the error
	// which prevented a fresh read.
	FetchProduct(ctx context.Context, id int64) (*Product, error)
	// UpdateProduct stores p and returns the stored state.
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	// CachedProduct returns the cached product without any I/O.
	CachedProduct(id int64) *Product
}

// ServiceController starts and stops the external process that keeps the
// worker alive while there is pending work. Both calls are idempotent.
type ServiceController interface {
	Start()
	Stop()
}

// Notifier renders user facing progress.
type Notifier interface {
	Update(current, total int)
	SetProgress(fraction float64)
	ShowUpdatingProduct(p *Product)
}
