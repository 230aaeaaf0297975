package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"balltrack/internal/report"
)

var (
	replayInput string
	replaySpeed float64
	replayOut   reportFlags
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay an accuracy log file",
	Long:  "replay feeds accuracy rows from a JSONL or CBOR log back into GreptimeDB, STDOUT or the TUI.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writer, cleanup, err := newWriters(replayOut.options("balltrack replay"))
		if err != nil {
			return err
		}
		defer cleanup()
		return report.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to accuracy log file (.jsonl or .cbor)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 replays without delay)")
	replayOut.register(replayCmd)
	replayCmd.MarkFlagRequired("input")
}
