package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"balltrack/internal/config"
	"balltrack/internal/discovery"
	"balltrack/internal/logging"
	"balltrack/internal/session"
	"balltrack/internal/signaling"
)

var (
	serveAdvertise bool
	serveLoopback  bool
	serveSessionID string
	serveOut       reportFlags
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stream the bouncing ball and score the receiver's reports",
	Long: "serve listens for one receiver on the signaling endpoint (HOSTNAME/PORT), " +
		"offers a video track of the bouncing ball and evaluates every position " +
		"report that comes back over the data channel.",
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.BoolVar(&serveAdvertise, "advertise", false, "Advertise the signaling endpoint over mDNS")
	f.BoolVar(&serveLoopback, "loopback", false, "Gather loopback ICE candidates")
	f.StringVar(&serveSessionID, "session-id", "", "Session id used in logs and accuracy rows (default: random UUID)")
	serveOut.register(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadCommandConfig(cmd, config.RoleServe)
	if err != nil {
		return err
	}
	log, closeLog, err := newLogger(cfg, serveOut.tui)
	if err != nil {
		return err
	}
	defer closeLog()

	writer, cleanup, err := newWriters(serveOut.options("balltrack serve"))
	if err != nil {
		return fmt.Errorf("report writers: %w", err)
	}
	defer cleanup()

	ctx, stop := signalContext()
	defer stop()
	ctx = logging.NewContext(ctx, log)
	adm := startAdmin(ctx, config.RoleServe)

	ln, err := signaling.Listen(ctx, cfg.Signaling.Kind, cfg.Endpoint())
	if err != nil {
		return err
	}
	defer ln.Close()

	if serveAdvertise {
		_, portStr, err := net.SplitHostPort(ln.Addr().String())
		if err != nil {
			return err
		}
		port, _ := strconv.Atoi(portStr)
		host, _ := os.Hostname()
		adv, err := discovery.Advertise("balltrack-"+host, port, cfg.Signaling.Kind)
		if err != nil {
			return err
		}
		defer adv.Shutdown()
		log.Info("advertising signaling endpoint", "service", discovery.Service, "port", port)
	}

	log.Info("waiting for receiver", "addr", ln.Addr().String(), "kind", cfg.Signaling.Kind)
	sig, err := ln.Accept(ctx)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("interrupted before a receiver connected")
			return nil
		}
		return err
	}

	sess, err := session.New(ctx, sig, session.Options{
		Role:            config.RoleServe,
		Config:          cfg,
		ID:              serveSessionID,
		Writer:          writer,
		IncludeLoopback: serveLoopback,
	})
	if err != nil {
		sig.Close()
		return err
	}
	if adm != nil {
		adm.SetProvider(sess)
	}

	err = sess.Run(ctx)
	sum := sess.Evaluator().Summary()
	log.Info("accuracy summary",
		"evaluated", sum.Evaluated,
		"matched", sum.Matched,
		"unmatched", sum.Unmatched,
		"malformed", sum.Malformed,
		"mean_error", sum.MeanError,
		"max_error", sum.MaxError)
	return err
}
