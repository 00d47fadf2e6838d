// Package amap provides a client for the AMap (restapi.amap.com) directions API.
package amap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/tohomedistance/tohomedistance/internal/provider/resilience"
	"github.com/tohomedistance/tohomedistance/internal/routing"
)

const (
	// ProviderName identifies this directions provider.
	ProviderName = "amap"

	// DefaultBaseURL is the AMap REST API base URL.
	DefaultBaseURL = "https://restapi.amap.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the AMap client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the AMap REST API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 15s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an AMap directions API client. The API key travels with each
// request because every configured sensor carries its own key.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new AMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections issues one GET for the mode's endpoint and returns the first
// path's distance and duration.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.RouteResult, error) {
	ep, ok := endpoints[req.Mode]
	if !ok {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "UNKNOWN_MODE",
			Message:  fmt.Sprintf("no endpoint for %s", req.Mode),
			Err:      routing.ErrUnknownMode,
		}
	}
	if req.Origin.IsZero() || req.Destination.IsZero() {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "MISSING_COORDINATES",
			Message:  "origin and destination are required",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	params := url.Values{}
	params.Set("key", req.APIKey)
	params.Set("origin", req.Origin.String())
	params.Set("destination", req.Destination.String())
	if req.Mode == routing.ModeTransit && req.City != "" {
		params.Set("city", req.City)
	}

	c.logger.Debug().
		Str("mode", req.Mode.String()).
		Str("path", ep.path).
		Str("origin", req.Origin.String()).
		Str("destination", req.Destination.String()).
		Msg("requesting directions from AMap")

	body, err := c.get(ctx, ep.path, params)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_RESPONSE",
			Message:  "response is not valid JSON",
			Err:      routing.ErrProviderUnavailable,
		}
	}

	if err := checkEnvelope(ep.version, body); err != nil {
		return nil, err
	}

	first := gjson.GetBytes(body, ep.pathsKey+".0")
	if !first.Exists() {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "response carried no " + ep.pathsKey,
			Err:      routing.ErrNoRouteFound,
		}
	}

	distance, ok := number(first.Get(distanceKey))
	if !ok {
		return nil, malformed(distanceKey)
	}
	duration, ok := number(first.Get(durationKey))
	if !ok {
		return nil, malformed(durationKey)
	}

	c.logger.Debug().
		Float64("distance_meters", distance).
		Float64("duration_seconds", duration).
		Msg("received directions from AMap")

	return &routing.RouteResult{
		DistanceMeters:  distance,
		DurationSeconds: duration,
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}, nil
}

// ValidateKey checks that AMap accepts key. Any failure to get an answer is
// reported as an invalid key.
func (c *Client) ValidateKey(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("key", key)

	body, err := c.get(ctx, keyValidationPath, params)
	if err != nil {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "KEY_CHECK_FAILED",
			Message:  err.Error(),
			Err:      routing.ErrInvalidAPIKey,
		}
	}

	infoCode := gjson.GetBytes(body, v3InfoCodeKey)
	if !gjson.ValidBytes(body) || !infoCode.Exists() {
		return &routing.Error{
			Provider: ProviderName,
			Code:     "KEY_CHECK_FAILED",
			Message:  "key validation response carried no infocode",
			Err:      routing.ErrInvalidAPIKey,
		}
	}

	if infoCode.String() == infoCodeInvalidKey {
		return &routing.Error{
			Provider: ProviderName,
			Code:     infoCodeInvalidKey,
			Message:  gjson.GetBytes(body, v3InfoKey).String(),
			Err:      routing.ErrInvalidAPIKey,
		}
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		code := "REQUEST_FAILED"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			code = "CIRCUIT_OPEN"
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     code,
			Message:  "failed to reach directions provider",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "READ_FAILED",
			Message:  "failed to read provider response",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		sentinel := routing.ErrProviderRejected
		if resp.StatusCode >= 500 {
			sentinel = routing.ErrProviderUnavailable
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "HTTP_" + strconv.Itoa(resp.StatusCode),
			Message:  fmt.Sprintf("directions provider returned status %d", resp.StatusCode),
			Err:      sentinel,
		}
	}

	return body, nil
}

// checkEnvelope maps a non-success envelope to a rejection carrying the
// provider's own message.
func checkEnvelope(version apiVersion, body []byte) error {
	switch version {
	case versionV4:
		code := gjson.GetBytes(body, v4ErrCodeKey)
		if code.Exists() && code.String() == "0" {
			return nil
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     code.String(),
			Message:  gjson.GetBytes(body, v4ErrMsgKey).String(),
			Err:      routing.ErrProviderRejected,
		}
	default:
		if gjson.GetBytes(body, v3StatusKey).String() == v3StatusSuccess {
			return nil
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     gjson.GetBytes(body, v3InfoCodeKey).String(),
			Message:  gjson.GetBytes(body, v3InfoKey).String(),
			Err:      routing.ErrProviderRejected,
		}
	}
}

// number reads a value AMap may send either as a JSON number or a numeric string.
// number reads a finite, non-negative quantity that AMap may encode as a
// JSON number or a string.
func number(r gjson.Result) (float64, bool) {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

func malformed(field string) error {
	return &routing.Error{
		Provider: ProviderName,
		Code:     "MALFORMED_PATH",
		Message:  "first path has no valid " + field,
		Err:      routing.ErrNoRouteFound,
	}
}
