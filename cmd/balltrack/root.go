package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"balltrack/internal/admin"
	"balltrack/internal/config"
	"balltrack/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logFormat  string
	logOutput  string
	adminAddr  string
)

var rootCmd = &cobra.Command{
	Use:   "balltrack",
	Short: "Bouncing ball WebRTC detection and telemetry pipeline",
	Long: "balltrack streams a synthetic bouncing ball over WebRTC, detects it on the " +
		"receiving side and scores the reported positions against ground truth.",
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "config/session.yaml", "Path to session configuration YAML")
	pf.StringVar(&schemaPath, "schema", "schemas/session.cue", "Path to CUE schema file")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	pf.StringVar(&logFormat, "log-format", "", "Log format (text or json); overrides the config file")
	pf.StringVar(&logOutput, "log-output", "", "Write logs to this file instead of STDOUT")
	pf.StringVar(&adminAddr, "admin", "", "Serve the admin status page on this address, e.g. :8080")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}

// loadConfig reads the configuration file and applies the role's environment.
// A missing default file falls back to the built-in configuration; a missing
// file named explicitly is an error.
func loadConfig(path, schema string, explicit bool, role config.Role) (*config.SessionConfig, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil || explicit {
		cfg, err = config.Load(path, schema)
		if err != nil {
			return nil, fmt.Errorf("config load failed: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err := cfg.ApplyEnv(role); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func loadCommandConfig(cmd *cobra.Command, role config.Role) (*config.SessionConfig, error) {
	return loadConfig(configPath, schemaPath, cmd.Flags().Changed("config"), role)
}

// newLogger builds the process logger and installs it as the slog default.
// With the TUI active, logs would tear the screen, so they are dropped unless
// --log-output names a file.
func newLogger(cfg *config.SessionConfig, tui bool) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closer := func() {}
	switch {
	case logOutput != "":
		f, err := os.OpenFile(logOutput, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closer = func() { f.Close() }
	case tui:
		out = io.Discard
	}
	l := logging.NewWithWriter(out, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(l)
	return l, closer, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startAdmin launches the admin server when --admin is set. It returns nil
// otherwise.
func startAdmin(ctx context.Context, role config.Role) *admin.Server {
	if adminAddr == "" {
		return nil
	}
	srv := admin.NewServer(string(role))
	go func() {
		if err := srv.Start(ctx, adminAddr); err != nil {
			logging.FromContext(ctx).Error("admin server failed", "addr", adminAddr, "error", err)
		}
	}()
	return srv
}
