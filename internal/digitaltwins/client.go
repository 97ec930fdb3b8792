// Package digitaltwins talks to the Azure Digital Twins data plane.
package digitaltwins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/iothub_twins_relay/internal/model"
)

const (
	DefaultAPIVersion = "2023-10-31"
	DefaultScope      = "https://digitaltwins.azure.net/.default"
)

var (
	ErrEndpointMissing   = errors.New("digital twins endpoint not configured")
	ErrTwinNotFound      = errors.New("digital twin not found")
	ErrCredentialMissing = errors.New("digital twins credential not configured")
)

// StatusError is a non-2xx answer from the service other than 404.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("digital twins status %d", e.Code)
	}
	return fmt.Sprintf("digital twins status %d: %s", e.Code, e.Body)
}

type Config struct {
	Endpoint   string // es. https://<instance>.api.weu.digitaltwins.azure.net
	APIVersion string
	Timeout    time.Duration

	BreakerFailures int
	BreakerOpenFor  time.Duration
	BreakerInterval time.Duration
	OnStateChange   func(from, to gobreaker.State)

	// HTTPClient sostituisce il client di default (test).
	HTTPClient *http.Client
}

// Client updates twins over REST. One Client is meant to live for the whole
// process so the HTTP connection pool and the access token are reused.
type Client struct {
	base       string
	apiVersion string
	pl         runtime.Pipeline
	hasCred    bool
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg Config, cred azcore.TokenCredential) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		base:       strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		apiVersion: cfg.APIVersion,
		pl:         newPipeline(hc, cred),
		hasCred:    cred != nil,
		breaker:    newBreaker("digital-twins", cfg),
	}
}

// newPipeline: bearer token con cache e refresh di azcore, senza retry.
func newPipeline(hc *http.Client, cred azcore.TokenCredential) runtime.Pipeline {
	var perRetry []policy.Policy
	if cred != nil {
		perRetry = append(perRetry, runtime.NewBearerTokenPolicy(cred, []string{DefaultScope}, nil))
	}
	return runtime.NewPipeline("digitaltwins", "v1.0.0",
		runtime.PipelineOptions{PerRetry: perRetry},
		&policy.ClientOptions{
			Transport: hc,
			Retry:     policy.RetryOptions{MaxRetries: -1},
		})
}

// UpdateTwin sends u as a JSON Patch document. A 404 yields ErrTwinNotFound,
// any other non-2xx a *StatusError. While the breaker is open the call fails
// fast with gobreaker.ErrOpenState.
func (c *Client) UpdateTwin(ctx context.Context, u model.TwinUpdate) error {
	if c.base == "" {
		return ErrEndpointMissing
	}
	if len(u.Patch) == 0 {
		return nil
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.patch(ctx, u)
	})
	return err
}

// BreakerState espone lo stato del circuit breaker per /healthz.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) patch(ctx context.Context, u model.TwinUpdate) error {
	body, err := json.Marshal(u.Patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	if !c.hasCred {
		return ErrCredentialMissing
	}

	req, err := runtime.NewRequest(ctx, http.MethodPatch, c.twinURL(u.TwinID))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if err := req.SetBody(streaming.NopCloser(bytes.NewReader(body)), "application/json-patch+json"); err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.pl.Do(req)
	if err != nil {
		return fmt.Errorf("digital twins request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: %s", ErrTwinNotFound, u.TwinID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) twinURL(id string) string {
	return c.base + "/digitaltwins/" + url.PathEscape(id) + "?api-version=" + url.QueryEscape(c.apiVersion)
}
