// Package client talks to the tessera HTTP API and implements the
// persistence gateway a matrix session syncs through.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"tessera/domain"
	"tessera/matrix"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Client wraps http.Client with the session token.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// Retries is how many times SaveEntries resends a batch after a transport
	// error or a 5xx, reusing the batch's idempotency key.
	Retries    int
	RetryDelay time.Duration

	mu    sync.RWMutex
	token string
}

var _ matrix.Gateway = (*Client)(nil)

// New creates a client for baseURL.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},

		Retries:    2,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Token returns the bearer token currently in use.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

type authBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
	Mode     string `json:"mode"`
}

type authReply struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// Authenticate signs up (mode "signup") or signs in and keeps the token for
// subsequent calls.
func (c *Client) Authenticate(ctx context.Context, email, password, name, mode string) (matrix.Identity, error) {
	var out authReply
	if err := c.do(ctx, http.MethodPost, "/api/auth", authBody{Email: email, Password: password, Name: name, Mode: mode}, &out, nil); err != nil {
		return matrix.Identity{}, err
	}
	if out.Token == "" || out.User.ID == "" {
		return matrix.Identity{}, matrix.ErrNoIdentity
	}
	c.SetToken(out.Token)
	return matrix.Identity{UserID: out.User.ID, Token: out.Token}, nil
}

// Resume validates the stored token and returns the identity it carries.
func (c *Client) Resume(ctx context.Context) (matrix.Identity, error) {
	var out authReply
	if err := c.do(ctx, http.MethodGet, "/api/auth", nil, &out, nil); err != nil {
		return matrix.Identity{}, err
	}
	return matrix.Identity{UserID: out.User.ID, Token: c.Token()}, nil
}

type tasksReply struct {
	Data          []domain.Task `json:"data"`
	LastTaskOrder []string      `json:"last_task_order"`
}

// LoadTasks returns the registry in the user's last saved order.
func (c *Client) LoadTasks(ctx context.Context) ([]domain.Task, error) {
	var out tasksReply
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &out, nil); err != nil {
		return nil, err
	}
	if len(out.LastTaskOrder) == 0 {
		return out.Data, nil
	}
	return matrix.NewRegistry(out.Data).Ordered(out.LastTaskOrder), nil
}

type taskReply struct {
	Data domain.Task `json:"data"`
}

func (c *Client) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	var out taskReply
	body := map[string]string{"id": t.ID, "name": t.Name, "color": t.Color, "shortcut": t.Shortcut}
	if err := c.do(ctx, http.MethodPost, "/api/tasks", body, &out, nil); err != nil {
		return domain.Task{}, err
	}
	return out.Data, nil
}

func (c *Client) RenameTask(ctx context.Context, id, name string) error {
	body := map[string]any{"taskId": id, "updates": domain.TaskUpdate{Name: &name}}
	return c.do(ctx, http.MethodPut, "/api/tasks", body, nil, nil)
}

// SaveTaskOrder persists the display order of the registry.
func (c *Client) SaveTaskOrder(ctx context.Context, order []string) error {
	return c.do(ctx, http.MethodPut, "/api/tasks/order", map[string][]string{"order": order}, nil, nil)
}

type entriesReply struct {
	Data []domain.Entry `json:"data"`
}

func (c *Client) LoadEntries(ctx context.Context, year int) ([]domain.Entry, error) {
	var out entriesReply
	if err := c.do(ctx, http.MethodGet, "/api/entries?year="+strconv.Itoa(year), nil, &out, nil); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// SaveEntries posts the batch under one idempotency key. Resends after a
// transport error or a 5xx reuse the key, so a batch the server already
// stored is answered as a duplicate instead of being applied twice.
func (c *Client) SaveEntries(ctx context.Context, entries []domain.Entry) error {
	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	body := map[string][]domain.Entry{"entries": entries}
	for attempt := 0; ; attempt++ {
		err := c.do(ctx, http.MethodPost, "/api/entries", body, nil, headers)
		if err == nil || attempt >= c.Retries || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(c.RetryDelay * time.Duration(attempt+1)):
		}
	}
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (c *Client) DeleteEntries(ctx context.Context, year int, cells []domain.Cell) error {
	body := struct {
		Cells []domain.Cell `json:"cells"`
		Year  int           `json:"year"`
	}{Cells: cells, Year: year}
	return c.do(ctx, http.MethodDelete, "/api/entries", body, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, headers map[string]string) error {
	var rdr io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = sonic.Unmarshal(raw, &e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return sonic.Unmarshal(raw, out)
}
