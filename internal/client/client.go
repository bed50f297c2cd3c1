package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"assetrip/internal/api"
	"assetrip/internal/queue"
)

// ErrDaemonUnavailable indicates the daemon API could not be reached.
var ErrDaemonUnavailable = errors.New("assetripd API unavailable")

// Client talks to a running assetripd over its HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for the daemon bound at bind (host:port or URL).
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrDaemonUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""

	// No global timeout: uploads and downloads stream arbitrarily large
	// archives. Callers cancel via context.
	return &Client{base: base, token: token, http: &http.Client{}}, nil
}

// Upload submits an archive for extraction and returns the accepted task.
func (c *Client) Upload(ctx context.Context, path string) (api.UploadResponse, error) {
	var out api.UploadResponse

	file, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/v1/upload"), pr)
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	if err := c.do(req, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Task fetches one task by ID.
func (c *Client) Task(ctx context.Context, id string) (api.TaskView, error) {
	var out api.TaskResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/tasks/"+url.PathEscape(id)), nil)
	if err != nil {
		return api.TaskView{}, err
	}
	c.authorize(req)
	if err := c.do(req, &out); err != nil {
		return api.TaskView{}, err
	}
	return out.Task, nil
}

// Tasks lists tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, statuses ...queue.Status) (api.TaskListResponse, error) {
	var out api.TaskListResponse

	endpoint := c.endpoint("/api/v1/tasks")
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", string(status))
		}
		endpoint += "?" + values.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, err
	}
	c.authorize(req)
	if err := c.do(req, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Delete removes a task and its artifacts.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/api/v1/tasks/"+url.PathEscape(id)), nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	var out api.DeleteResponse
	return c.do(req, &out)
}

// Download streams a completed task's assets archive to dest.
func (c *Client) Download(ctx context.Context, id, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/download/"+url.PathEscape(id)), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	file, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create download target: %w", err)
	}
	defer file.Close()
	if _, err := io.Copy(file, resp.Body); err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	return nil
}

// Health fetches the daemon health report. A 503 still returns the payload.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/v1/health"), nil)
	if err != nil {
		return out, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return out, decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode health response: %w", err)
	}
	return out, nil
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.base.String(), "/") + path
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var failure api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&failure); err == nil && failure.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, failure.Error)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}
