package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/CZERTAINLY/ProductMedia/internal/model"
)

// HTTPUploader posts media to a media endpoint, one request per file. The
// body is the raw file; the product id travels in the post query parameter.
type HTTPUploader struct {
	source     *os.Root
	requestURL *url.URL
	client     *http.Client
}

func NewHTTPUploader(source *os.Root, endpoint string) (*HTTPUploader, error) {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.New("please define the media endpoint with a scheme, e.g. `https://shop.example/wp-json/wp/v2/media`")
	}
	return &HTTPUploader{
		source:     source,
		requestURL: parsedURL,
		client:     &http.Client{},
	}, nil
}

func (c *HTTPUploader) Upload(ctx context.Context, media model.MediaHandle) iter.Seq[model.UploadOutcome] {
	return func(yield func(model.UploadOutcome) bool) {
		f, err := c.source.Open(media.LocalRef)
		if err != nil {
			yield(model.UploadFailure{Err: fmt.Errorf("opening media: %w", err)})
			return
		}
		defer f.Close()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		type result struct {
			media model.MediaHandle
			err   error
		}
		progress := make(chan float64, 1)
		done := make(chan result, 1)
		body := &progressReader{r: f, total: media.Size, progress: progress}
		go func() {
			m, err := c.post(ctx, media, body)
			done <- result{media: m, err: err}
		}()

		for {
			select {
			case p := <-progress:
				if !yield(model.UploadProgress{Fraction: p}) {
					cancel()
					<-done
					return
				}
			case r := <-done:
				if r.err != nil {
					yield(model.UploadFailure{Err: r.err})
					return
				}
				yield(model.UploadSuccess{Media: r.media})
				return
			}
		}
	}
}

type MediaCreateResponse struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

func (c *HTTPUploader) post(ctx context.Context, media model.MediaHandle, body io.Reader) (model.MediaHandle, error) {
	u := *c.requestURL
	q := u.Query()
	q.Set("post", strconv.FormatInt(media.PostID, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return media, err
	}
	req.ContentLength = media.Size
	req.Header.Set("Content-Type", media.MimeType)
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": media.FileName}))

	resp, err := c.client.Do(req)
	if err != nil {
		return media, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	created, err := c.decodeUploadResponse(resp)
	if err != nil {
		return media, err
	}
	slog.DebugContext(ctx, "media uploaded",
		slog.Int64("media_id", created.ID),
		slog.String("url", created.SourceURL))

	media.ID = created.ID
	media.URL = created.SourceURL
	return media, nil
}

func (c *HTTPUploader) decodeUploadResponse(resp *http.Response) (MediaCreateResponse, error) {
	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return MediaCreateResponse{}, fmt.Errorf("failed to parse response content type header: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if contentType != "application/json" {
			return MediaCreateResponse{}, fmt.Errorf("expected `application/json` content type, got: %s", contentType)
		}
		var mc MediaCreateResponse
		if err := json.NewDecoder(resp.Body).Decode(&mc); err != nil {
			return MediaCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		if mc.ID == 0 || mc.SourceURL == "" {
			return MediaCreateResponse{}, errors.New("received unexpected body")
		}
		return mc, nil

	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		if contentType != "application/problem+json" && contentType != "application/json" {
			return MediaCreateResponse{}, fmt.Errorf("status code: %d, content type: %s", resp.StatusCode, contentType)
		}
		var problemDetail struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return MediaCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		detail := problemDetail.Detail
		if detail == "" {
			detail = problemDetail.Message
		}
		return MediaCreateResponse{}, fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, detail)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return MediaCreateResponse{}, err
	}
	return MediaCreateResponse{}, fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}

// progressReader reports the fraction read so far. Reports are dropped
// while the previous one was not consumed.
type progressReader struct {
	r        io.Reader
	read     int64
	total    int64
	progress chan<- float64
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if n > 0 && p.total > 0 {
		select {
		case p.progress <- min(float64(p.read)/float64(p.total), 1):
		default:
		}
	}
	return n, err
}
