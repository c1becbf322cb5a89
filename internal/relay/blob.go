// Package relay provides clients for the untrusted store-and-forward relays.
//
// Both relays are anonymous, unauthenticated, and ephemeral: any party who
// learns an opaque handle can fetch the blob behind it, which is why payloads
// are sealed before upload, never after. Callers treat every response as
// best-effort and adversarial.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leafmarkapp/leafmark-sync/internal/errors"
)

const defaultTimeout = 45 * time.Second

// Options tunes retry behavior for both relay clients.
type Options struct {
	// RetryBase is the initial backoff delay; it doubles per attempt.
	RetryBase time.Duration
	// RetryMax is the total number of attempts before surfacing the error.
	RetryMax int
}

func (o Options) withDefaults() Options {
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 4
	}
	return o
}

// BlobClient talks to the anonymous blob relay: upload bytes, get back an
// opaque single-use handle, fetch bytes by handle.
type BlobClient struct {
	http    *http.Client
	logger  *slog.Logger
	baseURL string
	opts    Options
}

// NewBlobClient creates a blob relay client for the given base URL.
func NewBlobClient(baseURL string, opts Options, logger *slog.Logger) *BlobClient {
	return &BlobClient{
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts.withDefaults(),
	}
}

// putResponse is the relay's answer to a blob upload.
type putResponse struct {
	Handle string `json:"handle"`
}

// Put uploads an opaque blob and returns its handle.
// Transient failures are retried with exponential backoff; once the retry
// ceiling is hit the caller gets RelayBusy.
func (c *BlobClient) Put(ctx context.Context, data []byte) (string, error) {
	var handle string

	err := c.withRetry(ctx, "put blob", func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/v1/blobs", bytes.NewReader(data))
		if err != nil {
			return false, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.http.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return true, fmt.Errorf("relay returned %d", resp.StatusCode)
		}

		var pr putResponse
		if err := json.Unmarshal(body, &pr); err != nil {
			return false, fmt.Errorf("parse response: %w", err)
		}
		if pr.Handle == "" {
			return false, fmt.Errorf("relay returned empty handle")
		}
		handle = pr.Handle
		return false, nil
	})
	if err != nil {
		if isRetryExhausted(err) {
			return "", errors.Wrap(err, errors.CodeRelayBusy, "blob relay refused the upload")
		}
		return "", err
	}

	c.logger.Debug("blob uploaded", "handle", handle, "bytes", len(data))
	return handle, nil
}

// Get fetches a blob by its handle.
// A 404 or 410 means the handle is unknown, consumed, or expired and comes
// back as NotFound without retrying; other transport failures are retried
// and then surfaced as DownloadError. Handles are single-use: never call Get
// again for a handle that has already been consumed successfully.
func (c *BlobClient) Get(ctx context.Context, handle string) ([]byte, error) {
	var data []byte

	err := c.withRetry(ctx, "get blob", func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/v1/blobs/"+url.PathEscape(handle), nil)
		if err != nil {
			return false, fmt.Errorf("create request: %w", err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			data, err = io.ReadAll(resp.Body)
			if err != nil {
				return true, fmt.Errorf("read response: %w", err)
			}
			return false, nil
		case http.StatusNotFound, http.StatusGone:
			return false, errors.NotFoundf("blob %s expired or never existed", handle)
		default:
			return true, fmt.Errorf("relay returned %d", resp.StatusCode)
		}
	})
	if err != nil {
		if isRetryExhausted(err) {
			return nil, errors.Wrap(err, errors.CodeDownloadError, "blob download failed")
		}
		return nil, err
	}

	c.logger.Debug("blob downloaded", "handle", handle, "bytes", len(data))
	return data, nil
}

// retryExhausted wraps the last transient error once the attempt budget is
// spent, so callers can map it to the right domain code.
type retryExhausted struct{ last error }

func (e *retryExhausted) Error() string { return fmt.Sprintf("retries exhausted: %v", e.last) }
func (e *retryExhausted) Unwrap() error { return e.last }

func isRetryExhausted(err error) bool {
	var re *retryExhausted
	return errors.As(err, &re)
}

// withRetry runs op with bounded exponential backoff. op reports whether its
// failure is transient; non-transient errors surface immediately.
func (c *BlobClient) withRetry(ctx context.Context, what string, op func() (transient bool, err error)) error {
	return retryWithBackoff(ctx, c.logger, c.opts, what, op)
}

func retryWithBackoff(ctx context.Context, logger *slog.Logger, opts Options, what string, op func() (bool, error)) error {
	delay := opts.RetryBase
	var last error

	for attempt := 1; attempt <= opts.RetryMax; attempt++ {
		transient, err := op()
		if err == nil {
			return nil
		}
		if !transient {
			return err
		}
		last = err

		if attempt == opts.RetryMax {
			break
		}
		logger.Debug("transient relay failure, backing off",
			"op", what,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return &retryExhausted{last: last}
}
