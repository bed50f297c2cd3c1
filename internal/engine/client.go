package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"assetrip/internal/services"
)

// HTTPDoer abstracts the HTTP client used to reach the engine control plane.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client speaks the engine's localhost HTTP control surface. Deadlines are
// supplied per call through the context; the export call in particular runs
// for the engine's entire processing duration.
type Client struct {
	baseURL string
	http    HTTPDoer
}

// NewClient builds a control-plane client for the given base URL.
func NewClient(baseURL string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer}
}

// BaseURL returns the engine control-plane address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Probe checks liveness via the engine's root endpoint. Any non-error
// response counts as healthy.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe engine: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe engine: status %d", resp.StatusCode)
	}
	return nil
}

// LoadFile instructs the engine to ingest the archive at path.
func (c *Client) LoadFile(ctx context.Context, path string) error {
	if err := c.postForm(ctx, "/LoadFile", url.Values{"path": {path}}); err != nil {
		if services.IsTimeout(err) || services.IsTransport(err) {
			return services.Wrap(services.CodeLoadError, "load file", "engine unreachable during load", err)
		}
		return services.Wrap(services.CodeLoadError, "load file", "engine rejected load request", err)
	}
	return nil
}

// ExportPrimaryContent instructs the engine to extract the loaded archive into
// exportDir. The call blocks until the engine finishes; the caller bounds it
// with a context deadline and must treat expiry as fatal to the engine's
// session state.
func (c *Client) ExportPrimaryContent(ctx context.Context, exportDir string) error {
	if err := c.postForm(ctx, "/Export/PrimaryContent", url.Values{"path": {exportDir}}); err != nil {
		if services.IsTimeout(err) {
			return services.Wrap(services.CodeExportTimeout, "export content", "export exceeded its deadline", err)
		}
		return services.Wrap(services.CodeExportError, "export content", "engine export failed", err)
	}
	return nil
}

// Reset clears engine session state so the next task starts clean. The
// endpoint is idempotent on the engine side.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.postForm(ctx, "/Reset", nil); err != nil {
		return services.Wrap(services.CodeResetError, "reset engine", "engine reset failed", err)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, values url.Values) error {
	var body io.Reader
	if len(values) > 0 {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer drain(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(detail) > 0 {
			return fmt.Errorf("post %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(detail)))
		}
		return fmt.Errorf("post %s: status %d", endpoint, resp.StatusCode)
	}
	return nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
