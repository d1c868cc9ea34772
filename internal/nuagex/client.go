// Package nuagex is a small client for the NuageX lab control-plane API.
package nuagex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/michaelbrown/nuxlab/internal/metrics"
)

// DefaultTimeout bounds each HTTP request.
const DefaultTimeout = 30 * time.Second

// CreateReason is recorded on every lab this client creates.
const CreateReason = "Created by nuxlab"

// Config contains the options for New.
type Config struct {
	// BaseURL is the API root, e.g. "https://experience.nuagenetworks.net/api".
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client talks to the NuageX API. The bearer token is fetched lazily on the
// first call and reused until the API rejects it.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.Mutex
	token string
}

// New creates a client. It does not contact the API.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
		httpClient: hc,
		log:        logger,
	}
}

// Login exchanges the credentials for a bearer token. A missing field or any
// non-200 answer yields an *AuthError.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.accessToken(ctx)
	return err
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	if c.creds.Username == "" {
		return "", &AuthError{Reason: "Missing username in nuagex_auth variable."}
	}
	if c.creds.Password == "" {
		return "", &AuthError{Username: c.creds.Username, Reason: "Missing password in nuagex_auth variable."}
	}

	data, err := json.Marshal(c.creds)
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(http.MethodPost, 0)
		return "", fmt.Errorf("logging in: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordAPIRequest(http.MethodPost, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		c.log.Debug("login rejected", "username", c.creds.Username, "status", resp.StatusCode)
		return "", &AuthError{Username: c.creds.Username}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if lr.AccessToken == "" {
		return "", &AuthError{Username: c.creds.Username}
	}
	c.token = lr.AccessToken
	return c.token, nil
}

// ListLabs returns the labs whose name matches. The API filters server side,
// but names are not unique so several labs may come back.
func (c *Client) ListLabs(ctx context.Context, name string) ([]Lab, error) {
	var labs []Lab
	path := "/labs?name=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &labs); err != nil {
		return nil, fmt.Errorf("listing labs: %w", err)
	}
	return labs, nil
}

// ListTemplates returns every template visible to the account.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	if err := c.do(ctx, http.MethodGet, "/templates", nil, &templates); err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return templates, nil
}

// CreateLab asks the API to provision a lab. It returns as soon as the
// request is accepted; use WaitRunning to block until it is up.
func (c *Client) CreateLab(ctx context.Context, name, templateID string) (*Lab, error) {
	body := CreateLabRequest{
		Name:     name,
		Template: templateID,
		Services: []any{},
		Networks: []any{},
		Servers:  []any{},
		Expires:  "0001-01-01T00:00:00Z",
		Reason:   CreateReason,
	}
	var lab Lab
	if err := c.do(ctx, http.MethodPost, "/labs", body, &lab); err != nil {
		return nil, fmt.Errorf("creating lab %s: %w", name, err)
	}
	c.log.Debug("lab create accepted", "name", name, "id", lab.ID, "template", templateID)
	return &lab, nil
}

// DeleteLab removes a lab by id.
func (c *Client) DeleteLab(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/labs/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting lab %s: %w", id, err)
	}
	c.log.Debug("lab delete accepted", "id", id)
	return nil
}

// WaitRunning polls until the lab reports started. The lab is identified by
// id when known, otherwise by name alone.
func (c *Client) WaitRunning(ctx context.Context, lab *Lab, opts ...PollOption) (*Lab, error) {
	o := defaultPollOpts()
	for _, opt := range opts {
		opt(o)
	}
	return pollLoop(ctx, o, func(attempt int) (bool, *Lab, error) {
		current, err := c.findLab(ctx, lab)
		if err != nil {
			return false, nil, err
		}
		if o.onPoll != nil {
			o.onPoll(attempt, current)
		}
		return current != nil && current.IsRunning(), current, nil
	})
}

// WaitGone polls until the lab is no longer listed.
func (c *Client) WaitGone(ctx context.Context, lab *Lab, opts ...PollOption) error {
	o := defaultPollOpts()
	for _, opt := range opts {
		opt(o)
	}
	_, err := pollLoop(ctx, o, func(attempt int) (bool, struct{}, error) {
		current, err := c.findLab(ctx, lab)
		if err != nil {
			return false, struct{}{}, err
		}
		if o.onPoll != nil {
			o.onPoll(attempt, current)
		}
		return current == nil, struct{}{}, nil
	})
	return err
}

func (c *Client) findLab(ctx context.Context, want *Lab) (*Lab, error) {
	labs, err := c.ListLabs(ctx, want.Name)
	if err != nil {
		return nil, err
	}
	for i := range labs {
		if want.ID == "" || labs[i].ID == want.ID {
			return &labs[i], nil
		}
	}
	return nil, nil
}

// do performs an authenticated JSON request. A nil body sends no payload and
// a nil result discards the response. A 401 drops the cached token and the
// request is retried once with a fresh login.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	err = c.doWithToken(ctx, token, method, path, body, result)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	c.log.Debug("token rejected, logging in again", "method", method, "path", path)
	c.dropToken(token)
	token, err = c.accessToken(ctx)
	if err != nil {
		return err
	}
	return c.doWithToken(ctx, token, method, path, body, result)
}

// dropToken clears the cached token unless another caller already replaced it.
func (c *Client) dropToken(stale string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == stale {
		c.token = ""
	}
}

func (c *Client) doWithToken(ctx context.Context, token, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(method, 0)
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordAPIRequest(method, resp.StatusCode)
	c.log.Debug("nuagex request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, data)
	}

	if result == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
