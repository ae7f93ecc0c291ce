package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/realdoomsboygaming/Kode-Runner/runner/exec"
	"go.uber.org/zap"
)

// Client talks to a runner server. The editor front end uses this to open a
// run session and to interrupt runs.
type Client struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client

	baseURL                  string
	wsURL                    string
	execClient               *exec.Client
	waitInterval             time.Duration
	customizeRetryableClient func(*retryablehttp.Client)
}

type ClientOption func(c *Client)

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

func NewClient(log *zap.SugaredLogger, host string, port int, opts ...ClientOption) (*Client, error) {
	c := &Client{
		Logger:       log.Named("runner_client"),
		baseURL:      fmt.Sprintf("http://%s:%d", host, port),
		wsURL:        fmt.Sprintf("ws://%s:%d/run", host, port),
		waitInterval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 10 * time.Millisecond
	}
	retryClient.RetryMax = 10
	retryClient.Logger = &logAdapter{SugaredLogger: log}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}

	c.HTTPClient = retryClient.StandardClient()
	c.execClient = &exec.Client{
		HTTPClient: c.HTTPClient,
		URL:        c.wsURL,
		Logger:     log.Named("runner_exec_client"),
	}

	return c, nil
}

// Connect opens a run session over which code payloads can be submitted.
func (c *Client) Connect(ctx context.Context) (*exec.Session, error) {
	return c.execClient.Connect(ctx)
}

// Diagnostics submits code to the server's checker and returns the
// diagnostics it produced.
func (c *Client) Diagnostics(ctx context.Context, code string) ([]byte, error) {
	u := c.baseURL + "/diagnostics"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(code))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var body string
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			body = fmt.Errorf("error reading body: %w", err).Error()
		} else {
			body = string(b)
		}
		return nil, fmt.Errorf("non-200 HTTP status code %d received when checking: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}

// Interrupt asks the server to SIGINT every currently running interpreter
// process, and returns how many were signaled.
func (c *Client) Interrupt(ctx context.Context) (int, error) {
	u := c.baseURL + "/interrupt"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected interrupt status code %d", resp.StatusCode)
	}

	var body struct {
		Interrupted int
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decoding interrupt response: %w", err)
	}
	return body.Interrupted, nil
}

func (c *Client) healthz(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	u := c.baseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP error: %w", err)
	}
	if resp.Body != nil {
		defer resp.Body.Close()
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected healthz status code %d", resp.StatusCode)
	}
	return nil
}

// WaitForServer polls the server until it answers, or until ctx is done.
func (c *Client) WaitForServer(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := c.healthz(ctx)
			if err == nil {
				c.Logger.Debug("healthz succeeded, done waiting for server")
				return nil
			}
			c.Logger.Debugf("got healthz error: %s", err)
		}
	}
}
