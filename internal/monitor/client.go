package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/fyrsmithlabs/taskstack/internal/http"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
	"github.com/fyrsmithlabs/taskstack/internal/task"
)

// APIError is a failure reported by the controller.
type APIError struct {
	HTTPStatus int
	Status     int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("controller returned status %d (http %d): %s", e.Status, e.HTTPStatus, e.Message)
}

// Client talks to the taskstackd admin API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends a request and decodes the envelope into out. body is sent as
// JSON unless it is a []byte.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/toml"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	var envelope api.Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode response (http %d): %w", resp.StatusCode, err)
	}
	var decodeErr error
	if out != nil {
		decodeErr = json.Unmarshal(data, out)
	}
	if envelope.Status != 0 || resp.StatusCode >= http.StatusBadRequest {
		return &APIError{HTTPStatus: resp.StatusCode, Status: envelope.Status, Message: envelope.Error}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return nil
}

// Health fetches /health. A closed controller still returns its counters
// together with an APIError.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Tasks lists the registered tasks.
func (c *Client) Tasks(ctx context.Context) ([]manager.TaskInfo, error) {
	var out api.TasksResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks", nil, &out)
	return out.Tasks, err
}

// Primitives lists the registered primitives.
func (c *Client) Primitives(ctx context.Context) ([]api.PrimitiveInfo, error) {
	var out api.PrimitivesResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/primitives", nil, &out)
	return out.Primitives, err
}

// Measures fetches the measures of the monitored tasks.
func (c *Client) Measures(ctx context.Context) ([]task.Measures, error) {
	var out api.MeasuresResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/measures", nil, &out)
	return out.Measures, err
}

// SetTask registers or replaces a task.
func (c *Client) SetTask(ctx context.Context, spec manager.TaskSpec) error {
	return c.do(ctx, http.MethodPut, "/api/v1/tasks/"+url.PathEscape(spec.Name), spec, nil)
}

// RemoveTask unregisters a task.
func (c *Client) RemoveTask(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(name), nil, nil)
}

// RemoveAllTasks unregisters every task.
func (c *Client) RemoveAllTasks(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/tasks", nil, nil)
}

// TaskOp applies activate, deactivate, monitor or demonitor to a task.
func (c *Client) TaskOp(ctx context.Context, name, op string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(name)+"/"+op, nil, nil)
}

// LevelOp applies activate, deactivate, monitor or demonitor to every task
// at priority.
func (c *Client) LevelOp(ctx context.Context, priority uint, op string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/levels/"+strconv.FormatUint(uint64(priority), 10)+"/"+op, nil, nil)
}

// RemoveLevel unregisters every task at priority.
func (c *Client) RemoveLevel(ctx context.Context, priority uint) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/levels/"+strconv.FormatUint(uint64(priority), 10), nil, nil)
}

// SetPrimitive registers or replaces a primitive.
func (c *Client) SetPrimitive(ctx context.Context, spec primitive.Spec) error {
	return c.do(ctx, http.MethodPut, "/api/v1/primitives/"+url.PathEscape(spec.Name), spec, nil)
}

// RemovePrimitive unregisters a primitive.
func (c *Client) RemovePrimitive(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/primitives/"+url.PathEscape(name), nil, nil)
}

// RemoveAllPrimitives unregisters every primitive.
func (c *Client) RemoveAllPrimitives(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/primitives", nil, nil)
}

// Render asks the controller to publish its visible primitives.
func (c *Client) Render(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/render", nil, nil)
}

// ApplyStack posts a TOML stack manifest.
func (c *Client) ApplyStack(ctx context.Context, manifest []byte) error {
	return c.do(ctx, http.MethodPost, "/api/v1/stack", manifest, nil)
}
