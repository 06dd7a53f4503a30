package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"redfish-harness/pkg/config"
	"redfish-harness/pkg/redfish"
)

// Check names, in the order Run executes them
const (
	CheckServiceAvailability = "service_availability"
	CheckAuthentication      = "authentication"
	CheckTokenValidation     = "token_validation"
	CheckInvalidCredentials  = "invalid_credentials"
	CheckPowerControl        = "power_control"
)

// checkFunc returns the observed value and nil on pass
type checkFunc func(ctx context.Context) (observed string, err error)

// skipError marks a check that did not run
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return e.reason }

func skip(format string, args ...interface{}) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

func (h *Harness) checks() map[string]checkFunc {
	return map[string]checkFunc{
		CheckServiceAvailability: h.checkServiceAvailability,
		CheckAuthentication:      h.checkAuthentication,
		CheckTokenValidation:     h.checkTokenValidation,
		CheckInvalidCredentials:  h.checkInvalidCredentials,
		CheckPowerControl:        h.checkPowerControl,
	}
}

func (h *Harness) runCheck(ctx context.Context, name string) Result {
	fn, ok := h.checks()[name]
	if !ok {
		return Result{Name: name, Status: StatusFailed, Message: "unknown check"}
	}

	start := time.Now()
	observed, err := fn(ctx)
	result := Result{
		Name:     name,
		Status:   StatusPassed,
		Duration: time.Since(start),
		Observed: observed,
	}

	var skipped *skipError
	switch {
	case errors.As(err, &skipped):
		result.Status = StatusSkipped
		result.Message = skipped.reason
		log.Warn().Str("check", name).Str("reason", skipped.reason).Msg("Check skipped")
	case err != nil:
		result.Status = StatusFailed
		result.Message = err.Error()
		log.Error().Err(err).Str("check", name).Str("observed", observed).Msg("Check failed")
	default:
		log.Info().Str("check", name).Str("observed", observed).Dur("duration", result.Duration).Msg("Check passed")
	}

	h.metrics.ObserveCheck(name, string(result.Status), result.Duration)
	return result
}

// tokenForCheck returns the run token, or a skip when authentication failed
func (h *Harness) tokenForCheck(ctx context.Context) (string, error) {
	token, err := h.Token(ctx)
	if err != nil {
		return "", skip("authentication failed: %v", err)
	}
	return token, nil
}

func (h *Harness) checkServiceAvailability(ctx context.Context) (string, error) {
	root, err := h.client.GetServiceRoot(ctx)
	if err != nil {
		return "", err
	}
	if root.RedfishVersion == "" {
		return "", errors.New("service root has no RedfishVersion")
	}
	return "RedfishVersion " + root.RedfishVersion, nil
}

func (h *Harness) checkAuthentication(ctx context.Context) (string, error) {
	session, err := h.acquire(ctx)
	if err != nil {
		var exhausted *redfish.RetryExhaustedError
		if errors.As(err, &exhausted) {
			return fmt.Sprintf("%d attempts", exhausted.Attempts), err
		}
		return "", err
	}
	return fmt.Sprintf("token acquired after %d attempt(s)", session.Attempts), nil
}

func (h *Harness) checkTokenValidation(ctx context.Context) (string, error) {
	token, err := h.tokenForCheck(ctx)
	if err != nil {
		return "", err
	}

	sessions, err := h.client.ListSessions(ctx, token)
	if err != nil {
		if code := redfish.StatusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return fmt.Sprintf("HTTP %d", code), fmt.Errorf("token rejected or expired: %w", err)
		}
		return "", err
	}

	observed := fmt.Sprintf("%d member(s)", len(sessions.Members))
	if len(sessions.Members) < 1 {
		return observed, errors.New("session collection has no members")
	}
	return observed, nil
}

// checkInvalidCredentials makes one login with the wrong password and
// passes when the BMC refuses it
func (h *Harness) checkInvalidCredentials(ctx context.Context) (string, error) {
	session, err := h.client.SessionManager.CreateSessionOnce(ctx, h.cfg.BMC.Username, h.cfg.Auth.InvalidPassword)
	if err == nil {
		if derr := h.client.SessionManager.DeleteSession(ctx, session); derr != nil {
			log.Warn().Err(derr).Msg("Failed to delete session created with invalid credentials")
		}
		return "token issued", errors.New("BMC accepted invalid credentials")
	}

	code := redfish.StatusCode(err)
	if code == 0 {
		if errors.Is(err, redfish.ErrMissingToken) {
			return "2xx without token", errors.New("BMC answered 2xx to invalid credentials")
		}
		return "", fmt.Errorf("login request failed: %w", err)
	}
	return fmt.Sprintf("HTTP %d", code), nil
}

func (h *Harness) checkPowerControl(ctx context.Context) (string, error) {
	if !h.cfg.Power.Enabled {
		return "", skip("power control disabled")
	}
	token, err := h.tokenForCheck(ctx)
	if err != nil {
		return "", err
	}

	systemID := h.cfg.BMC.SystemID
	system, err := h.client.GetSystem(ctx, token, systemID)
	if err != nil {
		return "", fmt.Errorf("failed to read power state: %w", err)
	}
	before := system.PowerState
	if before == "" {
		return "", fmt.Errorf("computer system %s has no PowerState, not sending a reset", systemID)
	}
	h.metrics.ObservePowerState("before", string(before))

	resetType := chooseReset(h.cfg.Power.Mode, before)
	if !system.AllowsReset(resetType) {
		log.Warn().
			Str("reset_type", string(resetType)).
			Interface("allowed", system.Actions.ComputerSystemReset.ResetTypeAllowableValues).
			Msg("Reset type not advertised by the system, sending anyway")
	}

	log.Info().
		Str("system", systemID).
		Str("power_state", string(before)).
		Str("reset_type", string(resetType)).
		Msg("Requesting power transition")

	status, err := h.client.Reset(ctx, token, systemID, resetType, h.cfg.Power.ResetTimeout)
	if err != nil {
		return fmt.Sprintf("%s, reset HTTP %d", before, status), fmt.Errorf("reset %s failed: %w", resetType, err)
	}
	if !acceptResetStatus(status, h.cfg.Power.StrictStatus) {
		return fmt.Sprintf("%s, reset HTTP %d", before, status), fmt.Errorf("unexpected reset status %d", status)
	}

	if err := redfish.SleepContext(ctx, h.cfg.Power.SettleDelay); err != nil {
		return string(before), err
	}

	after, err := h.client.GetPowerState(ctx, token, systemID)
	if err != nil {
		return string(before), fmt.Errorf("failed to read power state after reset: %w", err)
	}
	h.metrics.ObservePowerState("after", string(after))

	observed := fmt.Sprintf("%s -> %s", before, after)
	if expected := resetType.ExpectedState(); after != expected {
		return observed, fmt.Errorf("expected PowerState %s after %s, observed %s", expected, resetType, after)
	}
	return observed, nil
}

// chooseReset picks the reset action for mode given the current state
func chooseReset(mode string, current redfish.PowerState) redfish.ResetType {
	if mode == config.PowerModeForceOn || current != redfish.PowerStateOn {
		return redfish.ResetOn
	}
	return redfish.ResetForceOff
}

func acceptResetStatus(status int, strict bool) bool {
	if strict {
		return status == http.StatusNoContent
	}
	return status == http.StatusOK || status == http.StatusNoContent
}
