package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"balltrack/internal/report"
)

// reportFlags are the output flags shared by serve and replay.
type reportFlags struct {
	printOnly bool
	tui       bool
	logFile   string
	rawLog    string
	zmq       string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.BoolVar(&f.printOnly, "print-only", false, "Print accuracy rows to STDOUT instead of writing to GreptimeDB")
	fl.BoolVar(&f.tui, "tui", false, "Show accuracy rows in a terminal UI")
	fl.StringVar(&f.logFile, "log-file", "", "Path to export accuracy rows (JSONL)")
	fl.StringVar(&f.rawLog, "raw-log", "", "Path to export accuracy rows as a CBOR sequence")
	fl.StringVar(&f.zmq, "zmq", "", "Publish accuracy rows on a ZMQ PUB socket bound here, e.g. tcp://*:5556")
}

func (f *reportFlags) options(title string) writerOptions {
	return writerOptions{
		printOnly:   f.printOnly,
		tui:         f.tui,
		logFile:     f.logFile,
		rawLog:      f.rawLog,
		zmqEndpoint: f.zmq,
		title:       title,
	}
}

type writerOptions struct {
	printOnly   bool
	tui         bool
	logFile     string
	rawLog      string
	zmqEndpoint string
	title       string
}

// newWriters sets up the accuracy writers from flags and env vars. It returns
// the writer and a cleanup function to close any resources.
func newWriters(o writerOptions) (report.Writer, func(), error) {
	var ws []report.Writer
	closeAll := func() {
		for _, w := range ws {
			if c, ok := w.(io.Closer); ok {
				c.Close()
			}
		}
	}

	base, err := baseWriters(o)
	if err != nil {
		return nil, nil, err
	}
	ws = append(ws, base...)

	if o.logFile != "" {
		fw, err := report.NewFileWriter(o.logFile)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		ws = append(ws, fw)
	}
	if o.rawLog != "" {
		rw, err := report.NewRawLogWriter(o.rawLog)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		ws = append(ws, rw)
	}
	if o.zmqEndpoint != "" {
		zw, err := report.NewZMQWriter(o.zmqEndpoint)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		ws = append(ws, zw)
	}

	if len(ws) == 1 {
		return ws[0], closeAll, nil
	}
	mw := report.NewMultiWriter(ws...)
	return mw, func() { mw.Close() }, nil
}

// baseWriters chooses the display and database writers. GreptimeDB replaces
// STDOUT when GREPTIMEDB_ENDPOINT is set; the TUI is shown either way.
func baseWriters(o writerOptions) ([]report.Writer, error) {
	var ws []report.Writer
	if o.tui {
		ws = append(ws, report.NewTUIWriter(o.title))
	}
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if !o.printOnly && endpoint != "" {
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}
		gw, err := report.NewGreptimeDBWriter(endpoint, database, os.Getenv("GREPTIMEDB_TABLE"))
		if err != nil {
			for _, w := range ws {
				if c, ok := w.(io.Closer); ok {
					c.Close()
				}
			}
			return nil, err
		}
		return append(ws, gw), nil
	}
	if !o.tui {
		ws = append(ws, stdoutWriter())
	}
	return ws, nil
}

// stdoutWriter prints colour when STDOUT is a terminal and JSON otherwise.
func stdoutWriter() report.Writer {
	if report.IsTerminal(os.Stdout) {
		return report.NewColorStdoutWriter()
	}
	return report.NewJSONStdoutWriter()
}
