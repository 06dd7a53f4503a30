// Package harness runs the BMC verification checks against a Redfish
// endpoint and collects their results into a Report.
package harness

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"redfish-harness/internal/metrics"
	"redfish-harness/pkg/config"
	"redfish-harness/pkg/redfish"
)

// Harness owns the session token for one run. The token is acquired at most
// once; later callers get the cached token or the cached failure.
type Harness struct {
	cfg     *config.Config
	client  *redfish.Client
	metrics *metrics.Recorder

	mu       sync.Mutex
	acquired bool
	session  *redfish.SessionInfo
	authErr  error
}

// Option configures a Harness
type Option func(*harnessOptions)

type harnessOptions struct {
	httpClient *http.Client
	recorder   *metrics.Recorder
}

// WithHTTPClient replaces the transport built from the BMC configuration
func WithHTTPClient(c *http.Client) Option {
	return func(o *harnessOptions) { o.httpClient = c }
}

// WithRecorder records check outcomes on r instead of a fresh recorder
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *harnessOptions) { o.recorder = r }
}

// New creates a Harness for cfg.BMC
func New(cfg *config.Config, opts ...Option) *Harness {
	var o harnessOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.recorder == nil {
		o.recorder = metrics.NewRecorder()
	}

	client := redfish.NewClient(redfish.Options{
		Endpoint:   cfg.BMC.Endpoint(),
		VerifyTLS:  cfg.BMC.VerifyTLS,
		Timeout:    cfg.BMC.RequestTimeout,
		HTTPClient: o.httpClient,
		Retry: redfish.RetryPolicy{
			MaxAttempts: cfg.Auth.MaxRetries,
			Delay:       cfg.Auth.RetryDelay,
			OnAttempt: func(_ int, err error) {
				o.recorder.ObserveAuthAttempt(err)
			},
		},
	})

	return &Harness{
		cfg:     cfg,
		client:  client,
		metrics: o.recorder,
	}
}

// Metrics returns the recorder the checks report to
func (h *Harness) Metrics() *metrics.Recorder {
	return h.metrics
}

// Token returns the session token, logging in on first use
func (h *Harness) Token(ctx context.Context) (string, error) {
	session, err := h.acquire(ctx)
	if err != nil {
		return "", err
	}
	return session.Token, nil
}

func (h *Harness) acquire(ctx context.Context) (*redfish.SessionInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.acquired {
		return h.session, h.authErr
	}

	h.session, h.authErr = h.client.SessionManager.CreateSession(ctx, h.cfg.BMC.Username, h.cfg.BMC.Password)
	h.acquired = true
	return h.session, h.authErr
}

// Session returns the acquired session, or nil when none is held
func (h *Harness) Session() *redfish.SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

// Logout deletes the held session. It is a no-op without a session.
func (h *Harness) Logout(ctx context.Context) error {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()

	if session == nil {
		return nil
	}
	if err := h.client.SessionManager.DeleteSession(ctx, session); err != nil {
		return err
	}

	h.mu.Lock()
	h.session = nil
	h.mu.Unlock()
	log.Info().Str("session", session.SessionURI).Msg("Session logged out")
	return nil
}

// Run executes every enabled check in order and returns the report
func (h *Harness) Run(ctx context.Context) *Report {
	checks := []string{CheckServiceAvailability, CheckAuthentication, CheckTokenValidation}
	if h.cfg.Auth.CheckInvalid {
		checks = append(checks, CheckInvalidCredentials)
	}
	checks = append(checks, CheckPowerControl)
	return h.RunChecks(ctx, checks...)
}

// RunChecks executes the named checks in the given order. Unknown names are
// reported as failures.
func (h *Harness) RunChecks(ctx context.Context, names ...string) *Report {
	report := &Report{
		RunID:     uuid.NewString(),
		Endpoint:  h.client.Endpoint(),
		StartedAt: time.Now(),
	}

	log.Info().
		Str("run_id", report.RunID).
		Str("endpoint", report.Endpoint).
		Strs("checks", names).
		Msg("Starting harness run")

	for _, name := range names {
		report.Results = append(report.Results, h.runCheck(ctx, name))
	}

	if h.cfg.Auth.Logout {
		if err := h.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to log out session")
		}
	}

	report.FinishedAt = time.Now()
	report.Passed = report.Failed() == 0
	h.metrics.ObserveRun(report.Passed, report.FinishedAt)

	log.Info().
		Str("run_id", report.RunID).
		Bool("passed", report.Passed).
		Int("failed", report.Failed()).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("Harness run finished")

	return report
}
