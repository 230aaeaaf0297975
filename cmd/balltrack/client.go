package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"balltrack/internal/config"
	"balltrack/internal/discovery"
	"balltrack/internal/logging"
	"balltrack/internal/session"
	"balltrack/internal/signaling"
)

var (
	clientDiscover        bool
	clientDiscoverTimeout time.Duration
	clientSaveFrames      string
	clientSaveEvery       int
	clientLoopback        bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Receive the video, detect the ball and report its position",
	Long: "client dials the sender's signaling endpoint (SERVER_HOST/SERVER_PORT), " +
		"answers its offer, detects the ball in every received frame and publishes " +
		"the latest detection over the data channel.",
	RunE: runClient,
}

func init() {
	f := clientCmd.Flags()
	f.BoolVar(&clientDiscover, "discover", false, "Find the sender over mDNS instead of using the configured endpoint")
	f.DurationVar(&clientDiscoverTimeout, "discover-timeout", 5*time.Second, "How long to browse for a sender")
	f.StringVar(&clientSaveFrames, "save-frames", "", "Directory to write received frames to as PNG")
	f.IntVar(&clientSaveEvery, "save-every", 30, "Save every Nth received frame")
	f.BoolVar(&clientLoopback, "loopback", false, "Gather loopback ICE candidates")
}

// resolveEndpoint returns the transport kind and address to dial.
func resolveEndpoint(ctx context.Context, cfg *config.SessionConfig) (string, string, error) {
	if !clientDiscover {
		return cfg.Signaling.Kind, cfg.Endpoint(), nil
	}
	bctx, cancel := context.WithTimeout(ctx, clientDiscoverTimeout)
	defer cancel()
	ep, err := discovery.Browse(bctx)
	if err != nil {
		return "", "", fmt.Errorf("discover sender: %w", err)
	}
	kind := cfg.Signaling.Kind
	if ep.Kind != "" {
		kind = ep.Kind
	}
	logging.FromContext(ctx).Info("discovered sender", "instance", ep.Instance, "addr", ep.Addr(), "kind", kind)
	return kind, ep.Addr(), nil
}

func runClient(cmd *cobra.Command, _ []string) error {
	cfg, err := loadCommandConfig(cmd, config.RoleClient)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext()
	defer stop()
	ctx = logging.NewContext(ctx, log)
	adm := startAdmin(ctx, config.RoleClient)

	kind, addr, err := resolveEndpoint(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("connecting to sender", "addr", addr, "kind", kind)
	sig, err := signaling.Dial(ctx, kind, addr)
	if err != nil {
		return err
	}

	sess, err := session.New(ctx, sig, session.Options{
		Role:            config.RoleClient,
		Config:          cfg,
		SaveFrames:      clientSaveFrames,
		SaveEvery:       clientSaveEvery,
		IncludeLoopback: clientLoopback,
	})
	if err != nil {
		sig.Close()
		return err
	}
	if adm != nil {
		adm.SetProvider(sess)
	}
	return sess.Run(ctx)
}
