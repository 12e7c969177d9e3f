package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// levelTrace sits below debug; pion is chatty at trace.
const levelTrace = slog.LevelDebug - 4

// PionFactory adapts slog to pion's LoggerFactory so ICE and DTLS logs end
// up in the same stream as ours.
type PionFactory struct {
	Logger *slog.Logger
}

func NewPionFactory(logger *slog.Logger) *PionFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &PionFactory{Logger: logger}
}

func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{log: f.Logger.With("scope", scope)}
}

type pionLogger struct {
	log *slog.Logger
}

var _ logging.LeveledLogger = (*pionLogger)(nil)

func (l *pionLogger) emit(level slog.Level, msg string) {
	l.log.Log(context.Background(), level, msg)
}

func (l *pionLogger) Trace(msg string) { l.emit(levelTrace, msg) }
func (l *pionLogger) Tracef(format string, args ...any) {
	l.emit(levelTrace, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Debug(msg string) { l.emit(slog.LevelDebug, msg) }
func (l *pionLogger) Debugf(format string, args ...any) {
	l.emit(slog.LevelDebug, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Info(msg string) { l.emit(slog.LevelInfo, msg) }
func (l *pionLogger) Infof(format string, args ...any) {
	l.emit(slog.LevelInfo, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Warn(msg string) { l.emit(slog.LevelWarn, msg) }
func (l *pionLogger) Warnf(format string, args ...any) {
	l.emit(slog.LevelWarn, fmt.Sprintf(format, args...))
}
func (l *pionLogger) Error(msg string) { l.emit(slog.LevelError, msg) }
func (l *pionLogger) Errorf(format string, args ...any) {
	l.emit(slog.LevelError, fmt.Sprintf(format, args...))
}
