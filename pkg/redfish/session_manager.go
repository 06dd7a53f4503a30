package redfish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds session creation retries. The delay between attempts
// is fixed.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration

	// OnAttempt, if set, is called after every attempt with its 1-based
	// number and result
	OnAttempt func(attempt int, err error)
}

// SessionManager creates and deletes Redfish sessions for one endpoint
type SessionManager struct {
	client *Client
	policy RetryPolicy
}

// NewSessionManager creates a SessionManager. A policy with no attempts
// makes a single attempt.
func NewSessionManager(client *Client, policy RetryPolicy) *SessionManager {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &SessionManager{client: client, policy: policy}
}

// CreateSession logs in and returns the session token and URI. Any failure
// is retried up to the policy bound with a fixed delay; when attempts run
// out the result is a *RetryExhaustedError wrapping the last failure.
func (sm *SessionManager) CreateSession(ctx context.Context, username, password string) (*SessionInfo, error) {
	endpoint := sm.client.Endpoint()
	var lastErr error

	for attempt := 1; attempt <= sm.policy.MaxAttempts; attempt++ {
		log.Info().
			Int("attempt", attempt).
			Int("max_attempts", sm.policy.MaxAttempts).
			Str("endpoint", endpoint).
			Msg("Creating Redfish session")

		info, err := sm.CreateSessionOnce(ctx, username, password)
		if sm.policy.OnAttempt != nil {
			sm.policy.OnAttempt(attempt, err)
		}
		if err == nil {
			info.Attempts = attempt
			log.Info().Int("attempt", attempt).Str("endpoint", endpoint).Msg("Session token acquired")
			return info, nil
		}

		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt).Str("endpoint", endpoint).Msg("Session creation failed")

		if ctx.Err() != nil {
			return nil, &RetryExhaustedError{Endpoint: endpoint, Attempts: attempt, Err: ctx.Err()}
		}
		if attempt == sm.policy.MaxAttempts {
			break
		}
		if err := SleepContext(ctx, sm.policy.Delay); err != nil {
			return nil, &RetryExhaustedError{Endpoint: endpoint, Attempts: attempt, Err: err}
		}
	}

	log.Error().Err(lastErr).Str("endpoint", endpoint).Msg("Could not acquire session token")
	return nil, &RetryExhaustedError{Endpoint: endpoint, Attempts: sm.policy.MaxAttempts, Err: lastErr}
}

// CreateSessionOnce performs a single login attempt. Success requires 200
// or 201 and a non-empty X-Auth-Token header. 401 and 403 are reported as
// *SessionAuthError.
func (sm *SessionManager) CreateSessionOnce(ctx context.Context, username, password string) (*SessionInfo, error) {
	endpoint := sm.client.Endpoint()

	payload, err := json.Marshal(map[string]string{
		"UserName": username,
		"Password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session payload: %w", err)
	}

	resp, err := sm.client.do(ctx, http.MethodPost, BuildSessionsURL(endpoint), "", payload, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &SessionAuthError{
			Endpoint: endpoint,
			Err:      NewHTTPError(resp.StatusCode, resp.Status, "create session", readErrorBody(resp.Body)),
		}
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, resp.Status, "create session", readErrorBody(resp.Body))
	}

	token := resp.Header.Get(authTokenHeader)
	if token == "" {
		return nil, ErrMissingToken
	}

	info := &SessionInfo{
		Token:      token,
		SessionURI: resp.Header.Get("Location"),
		Endpoint:   endpoint,
	}

	// The body is informational; a token without a body is still a session.
	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err == nil && session.ODataID != "" {
		info.SessionURI = session.ODataID
	} else if err != nil && !errors.Is(err, io.EOF) {
		log.Debug().Err(err).Msg("Could not decode session body")
	}

	return info, nil
}

// DeleteSession logs the session out. Missing sessions count as deleted.
func (sm *SessionManager) DeleteSession(ctx context.Context, info *SessionInfo) error {
	if info == nil || info.SessionURI == "" {
		return fmt.Errorf("session URI is empty")
	}

	resp, err := sm.client.do(ctx, http.MethodDelete, resolveURL(sm.client.Endpoint(), info.SessionURI), info.Token, nil, 0)
	if err != nil {
		return fmt.Errorf("DELETE request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		log.Debug().Str("session", info.SessionURI).Msg("Session deleted")
		return nil
	default:
		return NewHTTPError(resp.StatusCode, resp.Status, "delete session", readErrorBody(resp.Body))
	}
}

// SleepContext waits for d or until ctx is done, whichever comes first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
