package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/shared"
)

// MaxPreviewBytes caps a single preview download. Catalog previews are 30 second clips well below this.
const MaxPreviewBytes = 16 << 20

// PreviewCache stores downloaded preview bytes by URL.
type PreviewCache interface {
	Get(url string) ([]byte, bool, error)
	Put(url string, data []byte) error
}

// PreviewFetcher downloads preview clips, consulting an optional cache first.
type PreviewFetcher struct {
	client  *http.Client
	cache   PreviewCache
	timeout time.Duration
	logger  *log.Logger
}

// NewPreviewFetcher creates a fetcher. cache may be nil; a zero timeout leaves the client's own timeout in effect.
func NewPreviewFetcher(client *http.Client, cache PreviewCache, timeout time.Duration, logger *log.Logger) *PreviewFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PreviewFetcher{client: client, cache: cache, timeout: timeout, logger: logger}
}

// Fetch returns the bytes of the preview at previewURL. Cache failures are logged and otherwise ignored.
func (f *PreviewFetcher) Fetch(ctx context.Context, previewURL string) ([]byte, error) {
	if previewURL == "" {
		return nil, fmt.Errorf("%w: empty preview url", shared.ErrPreviewFetch)
	}

	if f.cache != nil {
		data, ok, err := f.cache.Get(previewURL)
		if err != nil {
			f.logger.Warn("preview cache read failed", "url", previewURL, "error", err)
		} else if ok {
			return data, nil
		}
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, previewURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPreviewFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPreviewFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", shared.ErrPreviewFetch, resp.StatusCode, previewURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPreviewBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPreviewFetch, err)
	}
	if len(data) > MaxPreviewBytes {
		return nil, fmt.Errorf("%w: preview exceeds %d bytes", shared.ErrPreviewFetch, MaxPreviewBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty body from %s", shared.ErrPreviewFetch, previewURL)
	}

	if f.cache != nil {
		if err := f.cache.Put(previewURL, data); err != nil {
			f.logger.Warn("preview cache write failed", "url", previewURL, "error", err)
		}
	}
	return data, nil
}
