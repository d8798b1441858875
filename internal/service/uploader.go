package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

const chunkSize = 64 * 1024

// OSRootUploader copies media from the source directory into an upload
// directory. The stored file is named <product id>-<file name>.
type OSRootUploader struct {
	source *os.Root
	root   *os.Root
	dir    string
	ids    atomic.Int64
}

func NewOSRootUploader(source *os.Root, dir string) (*OSRootUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, err
	}
	u := &OSRootUploader{source: source, root: root, dir: abs}
	u.ids.Store(time.Now().UnixMilli())
	return u, nil
}

func (u *OSRootUploader) Upload(ctx context.Context, media model.MediaHandle) iter.Seq[model.UploadOutcome] {
	return func(yield func(model.UploadOutcome) bool) {
		stored, err := u.copy(ctx, media, yield)
		switch {
		case errors.Is(err, errStopped):
			return
		case err != nil:
			yield(model.UploadFailure{Err: err})
			return
		}
		slog.DebugContext(ctx, "media stored", "path", stored.URL)
		yield(model.UploadSuccess{Media: stored})
	}
}

var errStopped = errors.New("consumer stopped")

func (u *OSRootUploader) copy(ctx context.Context, media model.MediaHandle, yield func(model.UploadOutcome) bool) (model.MediaHandle, error) {
	if u.root == nil {
		return media, errors.New("uploader already closed")
	}
	src, err := u.source.Open(media.LocalRef)
	if err != nil {
		return media, fmt.Errorf("opening media: %w", err)
	}
	defer src.Close()

	name := strconv.FormatInt(media.PostID, 10) + "-" + filepath.Base(media.FileName)
	dst, err := u.root.Create(name)
	if err != nil {
		return media, fmt.Errorf("creating upload: %w", err)
	}

	var written int64
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			_ = dst.Close()
			return media, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				_ = dst.Close()
				return media, fmt.Errorf("writing upload: %w", err)
			}
			written += int64(n)
			if media.Size > 0 && !yield(model.UploadProgress{Fraction: min(float64(written)/float64(media.Size), 1)}) {
				_ = dst.Close()
				return media, errStopped
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			_ = dst.Close()
			return media, fmt.Errorf("reading media: %w", rerr)
		}
	}
	if err := dst.Close(); err != nil {
		return media, fmt.Errorf("closing upload: %w", err)
	}

	media.ID = u.ids.Add(1)
	media.Size = written
	media.URL = "file://" + filepath.ToSlash(filepath.Join(u.dir, name))
	return media, nil
}

func (u *OSRootUploader) Close() error {
	if u.root == nil {
		return errors.New("uploader already closed")
	}
	err := u.root.Close()
	u.root = nil
	return err
}
