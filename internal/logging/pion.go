package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// PionFactory routes pion's leveled loggers into slog. Each scope becomes a
// "scope" attribute; pion trace output is logged at debug.
type PionFactory struct {
	Logger *slog.Logger
}

// NewPionFactory returns a LoggerFactory backed by l.
func NewPionFactory(l *slog.Logger) *PionFactory {
	if l == nil {
		l = slog.Default()
	}
	return &PionFactory{Logger: l}
}

// NewLogger implements logging.LoggerFactory.
func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: f.Logger.With("scope", "pion/"+scope)}
}

type pionLogger struct {
	log *slog.Logger
}

func (p *pionLogger) emit(level slog.Level, msg string) {
	if !p.log.Enabled(context.Background(), level) {
		return
	}
	p.log.Log(context.Background(), level, msg)
}

func (p *pionLogger) Trace(msg string) { p.emit(slog.LevelDebug, msg) }
func (p *pionLogger) Tracef(format string, args ...interface{}) {
	p.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (p *pionLogger) Debug(msg string) { p.emit(slog.LevelDebug, msg) }
func (p *pionLogger) Debugf(format string, args ...interface{}) {
	p.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (p *pionLogger) Info(msg string) { p.emit(slog.LevelInfo, msg) }
func (p *pionLogger) Infof(format string, args ...interface{}) {
	p.emit(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (p *pionLogger) Warn(msg string) { p.emit(slog.LevelWarn, msg) }
func (p *pionLogger) Warnf(format string, args ...interface{}) {
	p.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (p *pionLogger) Error(msg string) { p.emit(slog.LevelError, msg) }
func (p *pionLogger) Errorf(format string, args ...interface{}) {
	p.emit(slog.LevelError, fmt.Sprintf(format, args...))
}
