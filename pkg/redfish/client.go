package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	authTokenHeader = "X-Auth-Token"

	// maxErrorBody bounds how much of an error response is kept for messages
	maxErrorBody = 512
)

// Options configures a Client
type Options struct {
	// Endpoint is the BMC base URL, e.g. https://localhost:2443
	Endpoint string

	// VerifyTLS enables certificate verification. BMCs usually ship
	// self-signed certificates, so it is off unless asked for.
	VerifyTLS bool

	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration

	// HTTPClient overrides the transport built from VerifyTLS
	HTTPClient *http.Client

	Retry RetryPolicy
}

// Client handles Redfish BMC communications for a single endpoint
type Client struct {
	endpoint       string
	httpClient     *http.Client
	timeout        time.Duration
	SessionManager *SessionManager
}

// NewClient creates a Client for opts.Endpoint
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !opts.VerifyTLS,
				},
			},
		}
	}

	c := &Client{
		endpoint:   strings.TrimSuffix(opts.Endpoint, "/"),
		httpClient: httpClient,
		timeout:    timeout,
	}
	c.SessionManager = NewSessionManager(c, opts.Retry)
	return c
}

// Endpoint returns the BMC base URL the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// GetServiceRoot performs an unauthenticated GET of /redfish/v1
func (c *Client) GetServiceRoot(ctx context.Context) (*ServiceRoot, error) {
	var root ServiceRoot
	if err := c.getJSON(ctx, BuildServiceRootURL(c.endpoint), "", "get service root", &root); err != nil {
		return nil, err
	}
	return &root, nil
}

// ListSessions returns the active sessions visible to token
func (c *Client) ListSessions(ctx context.Context, token string) (*SessionCollection, error) {
	var sessions SessionCollection
	if err := c.getJSON(ctx, BuildSessionsURL(c.endpoint), token, "list sessions", &sessions); err != nil {
		return nil, err
	}
	return &sessions, nil
}

// GetSystem returns the ComputerSystem identified by systemID
func (c *Client) GetSystem(ctx context.Context, token, systemID string) (*ComputerSystem, error) {
	var system ComputerSystem
	if err := c.getJSON(ctx, BuildSystemURL(c.endpoint, systemID), token, "get computer system", &system); err != nil {
		return nil, err
	}
	return &system, nil
}

// GetPowerState reads PowerState from the system resource
func (c *Client) GetPowerState(ctx context.Context, token, systemID string) (PowerState, error) {
	system, err := c.GetSystem(ctx, token, systemID)
	if err != nil {
		return PowerStateUnknown, err
	}
	if system.PowerState == "" {
		return PowerStateUnknown, fmt.Errorf("computer system %s has no PowerState", systemID)
	}
	return system.PowerState, nil
}

// Reset posts the ComputerSystem.Reset action and returns the response
// status. Any 2xx is returned without error; deciding which 2xx codes are
// acceptable is left to the caller. timeout overrides the client timeout
// when positive, since some BMCs answer reset slowly.
func (c *Client) Reset(ctx context.Context, token, systemID string, resetType ResetType, timeout time.Duration) (int, error) {
	log.Debug().Str("reset_type", string(resetType)).Str("system", systemID).Msg("Performing power action")

	payload, err := json.Marshal(map[string]ResetType{"ResetType": resetType})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal reset payload: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, BuildResetActionURL(c.endpoint, systemID), token, payload, timeout)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, NewHTTPError(resp.StatusCode, resp.Status, "reset computer system", readErrorBody(resp.Body))
	}

	io.Copy(io.Discard, resp.Body)
	log.Debug().Str("reset_type", string(resetType)).Int("status", resp.StatusCode).Msg("Power action accepted")
	return resp.StatusCode, nil
}

func (c *Client) getJSON(ctx context.Context, url, token, operation string, target interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, url, token, nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewHTTPError(resp.StatusCode, resp.Status, operation, readErrorBody(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", operation, err)
	}
	return nil
}

// do sends a single request. The caller owns the response body; the
// per-request timeout is released when the body is closed.
func (c *Client) do(ctx context.Context, method, url, token string, body []byte, timeout time.Duration) (*http.Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		cancel()
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(authTokenHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		log.Debug().Str("method", method).Str("url", url).Err(err).Msg("Redfish request failed")
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
