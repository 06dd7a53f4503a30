package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"redfish-harness/internal/harness"
	"redfish-harness/internal/output"
)

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every enabled check",
		Long: `Run the full verification sequence: service availability, authentication,
token validation, invalid credentials and power control.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := harness.New(a.cfg)
			return a.report(cmd, h, h.Run(cmd.Context()))
		},
	}
}

func (a *app) serviceCommand() *cobra.Command {
	return a.checkCommand("service", "Check the unauthenticated service root", harness.CheckServiceAvailability)
}

func (a *app) sessionsCommand() *cobra.Command {
	return a.checkCommand("sessions", "Log in and validate the token against the session collection",
		harness.CheckAuthentication, harness.CheckTokenValidation)
}

func (a *app) powerCommand() *cobra.Command {
	cmd := a.checkCommand("power", "Log in and verify a power state transition",
		harness.CheckAuthentication, harness.CheckPowerControl)

	var mode string
	var strict bool
	cmd.Flags().StringVar(&mode, "mode", "", "power mode (toggle|force-on), overrides configuration")
	cmd.Flags().BoolVar(&strict, "strict", false, "accept only 204 from the reset action")

	run := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("mode") {
			a.cfg.Power.Mode = mode
		}
		if cmd.Flags().Changed("strict") {
			a.cfg.Power.StrictStatus = strict
		}
		a.cfg.Power.Enabled = true
		if err := a.cfg.Validate(); err != nil {
			return err
		}
		return run(cmd, args)
	}
	return cmd
}

func (a *app) checkCommand(use, short string, checks ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := harness.New(a.cfg)
			return a.report(cmd, h, h.RunChecks(cmd.Context(), checks...))
		},
	}
}

// report writes the report and metrics and turns a failed run into
// ErrChecksFailed
func (a *app) report(cmd *cobra.Command, h *harness.Harness, report *harness.Report) error {
	format, err := output.GetFormatFromCmd(cmd)
	if err != nil {
		return err
	}

	formatter := output.New(format)
	formatter.SetWriter(a.out)
	if err := formatter.Output(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if path := a.cfg.Metrics.File; path != "" {
		if err := h.Metrics().WriteTextfile(path); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Failed to write metrics")
		} else {
			log.Debug().Str("path", path).Msg("Metrics written")
		}
	}

	if !report.Passed {
		return ErrChecksFailed
	}
	return nil
}
