package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

func (w *Worker) fetchMedia(ctx context.Context, item model.FetchMedia) {
	media, err := w.fetcher.Fetch(ctx, item.LocalRef)
	if ctx.Err() != nil {
		slog.DebugContext(ctx, "fetch cancelled")
		return
	}
	if err == nil && media == nil {
		err = model.ErrFetchFailed
	}
	if err != nil {
		slog.WarnContext(ctx, "fetch failed", "error", err)
		w.emit(ctx, model.FetchFailed{ProductID: item.ProductID, LocalRef: item.LocalRef})
		return
	}
	slog.DebugContext(ctx, "fetch succeeded", "file_name", media.FileName, "size", media.Size)
	w.emit(ctx, model.FetchSucceeded{ProductID: item.ProductID, LocalRef: item.LocalRef, Media: *media})
}

// uploadMedia streams one upload under the media lock. When no other fetch
// or upload of the product is pending afterwards, ProductUploadsCompleted
// follows, whatever the outcome of this upload.
func (w *Worker) uploadMedia(ctx context.Context, j *job, item model.UploadMedia) {
	if err := w.lock.Lock(ctx); err != nil {
		slog.DebugContext(ctx, "upload cancelled while waiting", "error", err)
		return
	}
	defer w.lock.Unlock()

	done, total := w.ledger.Counts()
	w.notifier.Update(done+1, total)

	media := item.Media
	media.PostID = item.ProductID
	for outcome := range w.uploader.Upload(ctx, media) {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "upload cancelled")
			return
		}
		switch o := outcome.(type) {
		case model.UploadFailure:
			slog.WarnContext(ctx, "upload failed", "error", o.Err)
			w.emit(ctx, model.UploadFailed{ProductID: item.ProductID, LocalRef: item.LocalRef, Err: o.Err})
		case model.UploadProgress:
			w.notifier.SetProgress(o.Fraction)
		case model.UploadSuccess:
			w.notifier.SetProgress(1)
			slog.DebugContext(ctx, "upload succeeded", "media_id", o.Media.ID, "url", o.Media.URL)
			w.emit(ctx, model.UploadSucceeded{ProductID: item.ProductID, LocalRef: item.LocalRef, Media: o.Media})
		}
	}
	if ctx.Err() != nil {
		slog.DebugContext(ctx, "upload cancelled")
		return
	}

	if !w.pending.HasOtherMediaWork(item.ProductID, j.id) {
		slog.DebugContext(ctx, "no media work left for the product")
		w.emit(ctx, model.ProductUploadsCompleted{ProductID: item.ProductID})
	}
}

// updateProduct appends images to a product under the media lock. Both the
// read and the write are retried. The notifier is shown the cached product
// first and the fresh one once it is read.
func (w *Worker) updateProduct(ctx context.Context, item model.UpdateProduct) {
	if err := w.lock.Lock(ctx); err != nil {
		slog.DebugContext(ctx, "update cancelled while waiting", "error", err)
		return
	}
	defer w.lock.Unlock()

	cached := w.products.CachedProduct(item.ProductID)
	w.notifier.ShowUpdatingProduct(cached)

	product, err := retry(ctx, w.cfg.Attempts, func(ctx context.Context) (model.Product, error) {
		p, err := w.products.FetchProduct(ctx, item.ProductID)
		if err != nil {
			return model.Product{}, err
		}
		if p == nil {
			return model.Product{}, model.ErrProductNotFound
		}
		return *p, nil
	})
	if ctx.Err() != nil {
		slog.DebugContext(ctx, "update cancelled")
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "reading product failed", "error", fmt.Errorf("%w: %w", model.ErrUpdateFailed, err))
		w.emit(ctx, model.ProductUpdateFailed{ProductID: item.ProductID, Product: cached})
		return
	}
	w.notifier.ShowUpdatingProduct(&product)

	changed := product.WithImages(item.Images...)
	updated, err := retry(ctx, w.cfg.Attempts, func(ctx context.Context) (model.Product, error) {
		return w.products.UpdateProduct(ctx, changed)
	})
	if ctx.Err() != nil {
		slog.DebugContext(ctx, "update cancelled")
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "writing product failed", "error", fmt.Errorf("%w: %w", model.ErrUpdateFailed, err))
		w.emit(ctx, model.ProductUpdateFailed{ProductID: item.ProductID, Product: &product})
		return
	}
	slog.InfoContext(ctx, "product updated", "images_total", len(updated.Images))
	w.emit(ctx, model.ProductUpdateSucceeded{
		ProductID:   item.ProductID,
		Product:     updated,
		ImagesCount: len(item.Images),
	})
}
