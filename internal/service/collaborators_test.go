package service_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
	"github.com/CZERTAINLY/ProductMedia/internal/service"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func sourceRoot(t *testing.T, files map[string][]byte) (string, *os.Root) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, content, 0o644))
	}
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = root.Close() })
	return dir, root
}

func collect(t *testing.T, u model.MediaUploader, media model.MediaHandle) []model.UploadOutcome {
	t.Helper()
	var ret []model.UploadOutcome
	for o := range u.Upload(t.Context(), media) {
		ret = append(ret, o)
	}
	return ret
}

func TestDirFetcher(t *testing.T) {
	t.Parallel()
	_, root := sourceRoot(t, map[string][]byte{
		"1/a.jpg":     []byte("jpeg bytes"),
		"1/scan":      pngHeader,
		"1/notes.txt": []byte("hello"),
	})
	f := service.NewDirFetcher(root)

	m, err := f.Fetch(t.Context(), "1/a.jpg")
	require.NoError(t, err)
	require.Equal(t, model.MediaHandle{LocalRef: "1/a.jpg", FileName: "a.jpg", MimeType: "image/jpeg", Size: 10}, *m)

	m, err = f.Fetch(t.Context(), "1/scan")
	require.NoError(t, err)
	require.Equal(t, "image/png", m.MimeType)

	for _, ref := range []string{"1/notes.txt", "1", "1/missing.jpg", "../escape.jpg"} {
		_, err = f.Fetch(t.Context(), ref)
		require.ErrorIs(t, err, model.ErrFetchFailed, ref)
	}
}

func TestOSRootUploader(t *testing.T) {
	t.Parallel()
	content := bytes.Repeat([]byte("x"), 200*1024)
	_, root := sourceRoot(t, map[string][]byte{"7/big.jpg": content})
	dir := filepath.Join(t.TempDir(), "uploads")

	u, err := service.NewOSRootUploader(root, dir)
	require.NoError(t, err)

	outcomes := collect(t, u, model.MediaHandle{
		PostID: 7, LocalRef: "7/big.jpg", FileName: "big.jpg", Size: int64(len(content)),
	})
	require.Len(t, outcomes, 5)
	last := 0.0
	for _, o := range outcomes[:4] {
		p, ok := o.(model.UploadProgress)
		require.True(t, ok)
		require.Greater(t, p.Fraction, last)
		last = p.Fraction
	}
	require.Equal(t, 1.0, last)

	ok, isOK := outcomes[4].(model.UploadSuccess)
	require.True(t, isOK)
	require.NotZero(t, ok.Media.ID)
	require.True(t, strings.HasPrefix(ok.Media.URL, "file://"))
	require.True(t, strings.HasSuffix(ok.Media.URL, "/7-big.jpg"))

	stored, err := os.ReadFile(filepath.Join(dir, "7-big.jpg"))
	require.NoError(t, err)
	require.Equal(t, content, stored)

	outcomes = collect(t, u, model.MediaHandle{PostID: 7, LocalRef: "7/missing.jpg", FileName: "missing.jpg"})
	require.Len(t, outcomes, 1)
	require.IsType(t, model.UploadFailure{}, outcomes[0])

	require.NoError(t, u.Close())
	require.Error(t, u.Close())
	outcomes = collect(t, u, model.MediaHandle{PostID: 7, LocalRef: "7/big.jpg", FileName: "big.jpg"})
	require.IsType(t, model.UploadFailure{}, outcomes[0])
}

func TestHTTPUploader(t *testing.T) {
	t.Parallel()
	content := bytes.Repeat([]byte("y"), 64*1024)
	_, root := sourceRoot(t, map[string][]byte{
		"3/a.jpg":   content,
		"3/big.jpg": content,
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil || r.Method != http.MethodPost || r.URL.Query().Get("post") != "3" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if strings.Contains(r.Header.Get("Content-Disposition"), "big.jpg") {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(`{"detail":"file exceeds 32KiB"}`))
			return
		}
		if !bytes.Equal(body, content) || r.Header.Get("Content-Type") != "image/jpeg" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(service.MediaCreateResponse{ID: 501, SourceURL: "https://shop.example/media/a.jpg"})
	}))
	t.Cleanup(srv.Close)

	u, err := service.NewHTTPUploader(root, srv.URL+"/wp-json/wp/v2/media")
	require.NoError(t, err)

	media := model.MediaHandle{PostID: 3, LocalRef: "3/a.jpg", FileName: "a.jpg", MimeType: "image/jpeg", Size: int64(len(content))}
	outcomes := collect(t, u, media)
	require.NotEmpty(t, outcomes)
	ok, isOK := outcomes[len(outcomes)-1].(model.UploadSuccess)
	require.True(t, isOK, "%#v", outcomes)
	require.EqualValues(t, 501, ok.Media.ID)
	require.Equal(t, "https://shop.example/media/a.jpg", ok.Media.URL)
	require.Equal(t, "a.jpg", ok.Media.FileName)
	for _, o := range outcomes[:len(outcomes)-1] {
		require.IsType(t, model.UploadProgress{}, o)
	}

	media.LocalRef, media.FileName = "3/big.jpg", "big.jpg"
	outcomes = collect(t, u, media)
	failure, isFailure := outcomes[len(outcomes)-1].(model.UploadFailure)
	require.True(t, isFailure)
	require.ErrorContains(t, failure.Err, "file exceeds 32KiB")

	_, err = service.NewHTTPUploader(root, "/relative/path")
	require.Error(t, err)
}

func TestWriteNotifier(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	n := service.NewWriteNotifier(&buf)

	n.Update(1, 2)
	n.SetProgress(0.05)
	n.SetProgress(0.51)
	n.SetProgress(0.55)
	n.SetProgress(1)
	n.ShowUpdatingProduct(nil)
	n.ShowUpdatingProduct(&model.Product{ID: 4, Name: "lamp", Images: []model.Image{{ID: 1}}})

	require.Equal(t, strings.Join([]string{
		"uploading 1 of 2",
		"    0%",
		"   50%",
		"  100%",
		"updating product",
		`updating product 4 "lamp" (1 images)`,
		"",
	}, "\n"), buf.String())
}
