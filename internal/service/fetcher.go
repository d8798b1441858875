package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// DirFetcher resolves local references relative to a media source directory.
type DirFetcher struct {
	root *os.Root
}

func NewDirFetcher(root *os.Root) DirFetcher {
	return DirFetcher{root: root}
}

func (f DirFetcher) Fetch(ctx context.Context, localRef string) (*model.MediaHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := f.root.Stat(localRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", model.ErrFetchFailed, localRef)
	}

	mimeType, err := f.mimeType(localRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrFetchFailed, err)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s is %s, not an image", model.ErrFetchFailed, localRef, mimeType)
	}

	return &model.MediaHandle{
		LocalRef: localRef,
		FileName: path.Base(localRef),
		MimeType: mimeType,
		Size:     info.Size(),
	}, nil
}

func (f DirFetcher) mimeType(localRef string) (string, error) {
	if t := mime.TypeByExtension(path.Ext(localRef)); t != "" {
		mt, _, err := mime.ParseMediaType(t)
		return mt, err
	}
	file, err := f.root.Open(localRef)
	if err != nil {
		return "", err
	}
	defer file.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return mt, err
}
