// Package cli implements the harness command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"redfish-harness/internal/output"
	"redfish-harness/pkg/config"
)

// ErrChecksFailed is returned when a run reports at least one failed check
var ErrChecksFailed = errors.New("one or more checks failed")

type app struct {
	cfgFile     string
	envFile     string
	debug       bool
	metricsFile string

	// overrides holds the BMC flags; only flags set on the command line
	// replace loaded values
	overrides *viper.Viper

	cfg       *config.Config
	logCloser io.Closer
	out       io.Writer
}

func newApp(out io.Writer) *app {
	return &app{
		overrides: viper.New(),
		out:       out,
	}
}

// NewRootCommand builds the command tree writing reports to out
func NewRootCommand(out io.Writer) *cobra.Command {
	return newApp(out).rootCommand()
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "harness",
		Short: "Redfish BMC verification harness",
		Long: `Runs verification checks against a BMC Redfish API: service discovery,
session authentication with retry, token validation, rejection of invalid
credentials and a power state transition.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./harness.yaml, then /etc/harness/harness.yaml)")
	pf.StringVar(&a.envFile, "env-file", "", "environment file (default is ./.env or ./harness.env)")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path")
	output.AddFormatFlag(root)

	pf.String("host", "", "BMC host")
	pf.Int("port", 0, "BMC port")
	pf.String("user", "", "BMC username")
	pf.String("password", "", "BMC password")
	pf.String("system-id", "", "ComputerSystem id under /redfish/v1/Systems")
	pf.Bool("verify-tls", false, "verify the BMC certificate")

	a.overrides.BindPFlag("bmc.host", pf.Lookup("host"))
	a.overrides.BindPFlag("bmc.port", pf.Lookup("port"))
	a.overrides.BindPFlag("bmc.username", pf.Lookup("user"))
	a.overrides.BindPFlag("bmc.password", pf.Lookup("password"))
	a.overrides.BindPFlag("bmc.system_id", pf.Lookup("system-id"))
	a.overrides.BindPFlag("bmc.verify_tls", pf.Lookup("verify-tls"))

	root.AddCommand(
		a.runCommand(),
		a.serviceCommand(),
		a.sessionsCommand(),
		a.powerCommand(),
		versionCommand(),
	)
	return root
}

// setup loads configuration and configures logging before any subcommand
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	configFile := a.cfgFile
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return fmt.Errorf("failed to access configuration file: %w", err)
		}
	} else {
		configFile = config.FindConfigFile("harness")
	}

	envFile := a.envFile
	if envFile == "" {
		envFile = config.FindEnvironmentFile("harness")
	}

	cfg, err := config.LoadRaw(configFile, envFile)
	if err != nil {
		return err
	}
	a.applyOverrides(cfg)
	if a.debug {
		cfg.Log.Debug = true
	}
	if a.metricsFile != "" {
		cfg.Metrics.File = a.metricsFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("harness configuration validation failed: %w", err)
	}

	a.cfg = cfg
	a.logCloser = cfg.Log.ConfigureZerolog()

	log.Debug().
		Str("config_file", configFile).
		Str("env_file", envFile).
		Str("endpoint", cfg.BMC.Endpoint()).
		Str("user", cfg.BMC.Username).
		Bool("verify_tls", cfg.BMC.VerifyTLS).
		Msg("Configuration loaded")
	return nil
}

func (a *app) applyOverrides(cfg *config.Config) {
	v := a.overrides
	if v.IsSet("bmc.host") {
		cfg.BMC.Host = v.GetString("bmc.host")
	}
	if v.IsSet("bmc.port") {
		cfg.BMC.Port = v.GetInt("bmc.port")
	}
	if v.IsSet("bmc.username") {
		cfg.BMC.Username = v.GetString("bmc.username")
	}
	if v.IsSet("bmc.password") {
		cfg.BMC.Password = v.GetString("bmc.password")
	}
	if v.IsSet("bmc.system_id") {
		cfg.BMC.SystemID = v.GetString("bmc.system_id")
	}
	if v.IsSet("bmc.verify_tls") {
		cfg.BMC.VerifyTLS = v.GetBool("bmc.verify_tls")
	}
}

func (a *app) close() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

// Execute runs the command tree and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout)
	err := a.rootCommand().ExecuteContext(ctx)
	a.close()

	if err != nil {
		if !errors.Is(err, ErrChecksFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
