package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marcostaira/app-whatsapp/internal/api"
	"github.com/marcostaira/app-whatsapp/internal/config"
	"github.com/marcostaira/app-whatsapp/internal/logging"
)

type rootFlags struct {
	configPath string
	apiURL     string
	apiKey     string
	relayURL   string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "wa-console",
		Short:         "Terminal console for a multi-tenant WhatsApp API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDash(f)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "wa-console.yaml", "Path to config file")
	pf.StringVar(&f.apiURL, "api", "", "Override the API base URL")
	pf.StringVar(&f.apiKey, "key", "", "Override the tenant API key")
	pf.StringVar(&f.relayURL, "relay", "", "Override the relay WebSocket URL (\"off\" disables it)")
	pf.StringVar(&f.logLevel, "log-level", "", "Override the log level")

	root.AddCommand(
		&cobra.Command{
			Use:   "dash",
			Short: "Run the interactive dashboard (default)",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runDash(f) },
		},
		newWatchCmd(f),
		&cobra.Command{
			Use:   "health",
			Short: "Check that the API answers /health",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return runHealth(cmd, f) },
		},
	)
	return root
}

// loadConfig applies, in order: defaults, the YAML file, .env, WACONSOLE_*
// variables and finally command-line overrides.
func loadConfig(f *rootFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if f.apiURL != "" {
		cfg.API.BaseURL = f.apiURL
	}
	if f.apiKey != "" {
		cfg.API.Key = f.apiKey
	}
	if f.relayURL != "" {
		cfg.Relay.URL = f.relayURL
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if cfg.Relay.URL == "off" {
		cfg.Relay.URL = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newAPIClient builds the API client and registers its metrics on reg.
func newAPIClient(cfg *config.Config, key string, reg prometheus.Registerer, logger zerolog.Logger) *api.Client {
	api.RegisterMetrics(reg)
	return api.New(cfg.API.BaseURL, key, api.Options{
		Timeout:         cfg.API.Timeout,
		RateLimit:       cfg.API.RateLimit,
		Burst:           cfg.API.Burst,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerCooldown: cfg.API.BreakerCooldown,
		Logger:          logger,
	})
}

func runHealth(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := logging.Init("wa-console", cfg.Log.Format, cfg.Log.Level, os.Stderr)
	c := newAPIClient(cfg, cfg.API.Key, prometheus.NewRegistry(), logger)

	h, err := c.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("%s: %w", c.BaseURL(), err)
	}
	if !h.Success {
		return fmt.Errorf("%s: health reported %q", c.BaseURL(), h.Status)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s ok", c.BaseURL())
	if h.Version != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (version %s)", h.Version)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
