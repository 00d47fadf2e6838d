package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tohomedistance/tohomedistance/internal/provider/resilience"
)

const (
	// ClientName identifies the Home Assistant client in the provider registry.
	ClientName = "homeassistant"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the REST client.
type ClientConfig struct {
	// BaseURL is the Home Assistant URL, e.g. http://homeassistant.local:8123 (required).
	BaseURL string

	// Token is a long-lived access token (required).
	Token string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client reads and writes entity states through the REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPDoer
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// NewClient creates a new REST client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ClientName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// GetState returns the current state of an entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*Entity, error) {
	body, err := c.do(ctx, http.MethodGet, statePath(entityID), nil)
	if err != nil {
		return nil, err
	}

	var entity Entity
	if err := json.Unmarshal(body, &entity); err != nil {
		return nil, fmt.Errorf("decoding state of %s: %w", entityID, err)
	}
	return &entity, nil
}

// SetState creates or replaces the state of an entity.
func (c *Client) SetState(ctx context.Context, entityID string, update StateUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, statePath(entityID), payload)
	return err
}

// Ping checks that the REST API is reachable and accepts the token.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/", nil)
	return err
}

func statePath(entityID string) string {
	return "/api/states/" + url.PathEscape(entityID)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	endpoint := c.baseURL + path

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Msg("calling home assistant")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		c.recordFailure(err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
		c.recordFailure(err)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		c.recordSuccess()
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		c.recordSuccess()
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, strings.TrimPrefix(path, "/api/states/"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		err = ErrUnauthorized
	case resp.StatusCode >= 500:
		err = fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		err = fmt.Errorf("home assistant returned status %d for %s", resp.StatusCode, path)
	}
	c.recordFailure(err)
	return nil, err
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(ClientName)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(ClientName, err)
	}
}
