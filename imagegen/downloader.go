package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxDownloadBytes caps a downloaded image.
const DefaultMaxDownloadBytes int64 = 32 << 20

// Downloader fetches generated images from the temporary URLs providers
// return. Those URLs usually expire after about an hour.
//
// Thread Safety: Downloader is safe for concurrent use.
// Each download creates its own HTTP request.
type Downloader struct {
	client   *http.Client
	maxBytes int64
}

// NewDownloader creates a downloader. A nil client uses http.DefaultClient.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, maxBytes: DefaultMaxDownloadBytes}
}

// WithMaxBytes returns a copy that refuses bodies larger than n bytes.
func (d *Downloader) WithMaxBytes(n int64) *Downloader {
	cp := *d
	cp.maxBytes = n
	return &cp
}

// DownloadBytes downloads an image and returns the raw bytes and the
// Content-Type header value.
func (d *Downloader) DownloadBytes(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", fmt.Errorf("imagegen: URL cannot be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to create download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("imagegen: download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("imagegen: failed to read image data: %w", err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, "", fmt.Errorf("imagegen: image exceeds %d bytes", d.maxBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
