// Package fetcher performs single URL-to-file streaming transfers that
// honor the pause gate between chunk writes.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aymanshehab/imgfetch/internal/config"
	"github.com/aymanshehab/imgfetch/internal/pause"
	"github.com/spf13/afero"
)

// StatusError is returned when the response status indicates a client or
// server error.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, http.StatusText(e.Code))
}

type Fetcher struct {
	fs        afero.Fs
	client    *http.Client
	gate      *pause.Gate
	chunkSize int
	userAgent string
	log       *slog.Logger
}

// NewFetcher builds a fetcher writing through the OS filesystem. The gate
// handle is owned by the batch controller; the fetcher only waits on it.
func NewFetcher(cfg *config.FetcherConfig, gate *pause.Gate, log *slog.Logger) *Fetcher {
	return NewFetcherWithFS(afero.NewOsFs(), cfg, gate, log)
}

func NewFetcherWithFS(fs afero.Fs, cfg *config.FetcherConfig, gate *pause.Gate, log *slog.Logger) *Fetcher {
	// The timeout bounds connect, TLS and time to first header byte.
	// http.Client.Timeout is deliberately not used: it also caps body read
	// time and would abort a transfer paused for longer than the timeout.
	timeout := time.Duration(cfg.Timeout)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: timeout,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
		},
	}

	return &Fetcher{
		fs:        fs,
		client:    client,
		gate:      gate,
		chunkSize: cfg.ChunkSize,
		userAgent: cfg.UserAgent,
		log:       log.With(slog.String("item", "Fetcher")),
	}
}

// Fetch streams url into destPath. On any failure after file creation the
// partial file is left in place; the resume-skip rule of the controller is
// an existence check only, so callers must not rely on partial cleanup.
func (f *Fetcher) Fetch(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("cannot build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{Code: resp.StatusCode}
	}

	file, err := f.fs.Create(destPath)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", destPath, err)
	}
	defer file.Close()

	buf := make([]byte, f.chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			// A pause request takes effect here, before the next chunk
			// is written, not only between files.
			if err := f.gate.Wait(ctx); err != nil {
				return err
			}

			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("cannot write %s: %w", destPath, writeErr)
			}
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return fmt.Errorf("cannot read response body: %w", readErr)
		}
	}

	f.log.Debug("Fetched", slog.String("url", url), slog.String("path", destPath))

	return nil
}
