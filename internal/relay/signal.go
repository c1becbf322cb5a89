package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leafmarkapp/leafmark-sync/internal/errors"
)

// ErrPollTimeout is returned by Poll when the long-poll round completed with
// no message. It is the caller's cue to re-issue the poll; the pairing state
// machine loops on it until a terminal transition cancels the context.
var ErrPollTimeout = fmt.Errorf("poll timed out with no message")

// SignalClient talks to the topic-based notification relay used for
// out-of-band signaling: the joiner posts a short message (a blob handle)
// on the return topic, the host long-polls for it.
type SignalClient struct {
	http    *http.Client
	logger  *slog.Logger
	baseURL string
	opts    Options
}

// NewSignalClient creates a signal relay client for the given base URL.
// pollTimeout bounds a single long-poll round trip; the server is expected
// to hold the request slightly less than that.
func NewSignalClient(baseURL string, pollTimeout time.Duration, opts Options, logger *slog.Logger) *SignalClient {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	return &SignalClient{
		http:    &http.Client{Timeout: pollTimeout + 5*time.Second},
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts.withDefaults(),
	}
}

// Publish posts a short message on a topic.
func (c *SignalClient) Publish(ctx context.Context, topic, message string) error {
	err := retryWithBackoff(ctx, c.logger, c.opts, "publish signal", func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.topicURL(topic), strings.NewReader(message))
		if err != nil {
			return false, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "text/plain")

		resp, err := c.http.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return true, fmt.Errorf("relay returned %d", resp.StatusCode)
		}
		return false, nil
	})
	if err != nil {
		if isRetryExhausted(err) {
			return errors.Wrap(err, errors.CodeRelayBusy, "signal relay refused the publish")
		}
		return fmt.Errorf("publish to topic %s: %w", topic, err)
	}

	c.logger.Debug("signal published", "topic", topic)
	return nil
}

// Poll performs one long-poll round against a topic. It blocks until the
// relay answers with a message, the round times out (ErrPollTimeout), or ctx
// is canceled. Safe to re-issue in a loop; the relay holds the request for
// tens of seconds per round.
func (c *SignalClient) Poll(ctx context.Context, topic string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.topicURL(topic), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Context cancellation wins over transport noise.
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("poll topic %s: %w", topic, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read message: %w", err)
		}
		msg := strings.TrimSpace(string(body))
		c.logger.Debug("signal received", "topic", topic)
		return msg, nil
	case http.StatusNoContent:
		return "", ErrPollTimeout
	default:
		return "", fmt.Errorf("poll topic %s: relay returned %d", topic, resp.StatusCode)
	}
}

func (c *SignalClient) topicURL(topic string) string {
	return c.baseURL + "/v1/topics/" + url.PathEscape(topic)
}
