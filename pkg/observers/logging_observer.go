// Package observers provides observers for monitoring workflow events
package observers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/anggasct/inspectflow"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// LogError logs only errors
	LogError LogLevel = iota
	// LogWarning logs errors and warnings
	LogWarning
	// LogInfo logs errors, warnings, and info
	LogInfo
	// LogDebug logs errors, warnings, info, and debug
	LogDebug
)

// slogLevel maps the observer level to the slog level it logs at
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogError:
		return slog.LevelError
	case LogWarning:
		return slog.LevelWarn
	case LogDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel converts a configuration string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "error":
		return LogError
	case "warn", "warning":
		return LogWarning
	case "debug":
		return LogDebug
	default:
		return LogInfo
	}
}

// LoggingObserver logs workflow events as structured records
type LoggingObserver struct {
	inspectflow.BaseObserver
	level  LogLevel
	logger *slog.Logger
	mutex  sync.RWMutex
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(level LogLevel, logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{
		level:  level,
		logger: logger.With("component", "workflow"),
	}
}

// SetLevel changes the level at runtime
func (o *LoggingObserver) SetLevel(level LogLevel) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.level = level
}

func (o *LoggingObserver) log(ctx context.Context, level LogLevel, msg string, attrs ...slog.Attr) {
	o.mutex.RLock()
	enabled := level <= o.level
	o.mutex.RUnlock()
	if !enabled {
		return
	}
	o.logger.LogAttrs(ctx, level.slogLevel(), msg, attrs...)
}

// OnTransition logs committed changes. Status changes log at info, re-signs
// and first joint signatures at debug.
func (o *LoggingObserver) OnTransition(ctx context.Context, change inspectflow.Change) {
	level := LogInfo
	if !change.Outcome.StateChanged() {
		level = LogDebug
	}
	attrs := []slog.Attr{
		slog.String("submission_id", change.Submission.ID),
		slog.String("action", string(change.Outcome.Action)),
		slog.String("role", string(change.Outcome.Role)),
		slog.String("actor", change.Command.Actor.ID),
		slog.String("from", string(change.Outcome.From)),
		slog.String("to", string(change.Outcome.To)),
		slog.Int64("version", change.Submission.Version),
	}
	if change.Outcome.Resigned {
		attrs = append(attrs, slog.Bool("resigned", true))
	}
	if change.Outcome.Joined {
		attrs = append(attrs, slog.Bool("joined", true))
	}
	if change.Attempts > 1 {
		attrs = append(attrs, slog.Int("attempts", change.Attempts))
	}
	o.log(ctx, level, change.Outcome.Message, attrs...)
}

// OnCreated logs new submissions
func (o *LoggingObserver) OnCreated(ctx context.Context, sub *inspectflow.Submission) {
	o.log(ctx, LogInfo, "Inspection report created",
		slog.String("submission_id", sub.ID),
		slog.String("creator", sub.CreatorID))
}

// OnCommandRejected logs business rule failures
func (o *LoggingObserver) OnCommandRejected(ctx context.Context, submissionID string, cmd inspectflow.Command, err error) {
	o.log(ctx, LogWarning, "Command rejected",
		slog.String("submission_id", submissionID),
		slog.String("action", string(cmd.Action)),
		slog.String("role", string(cmd.Actor.Role)),
		slog.String("actor", cmd.Actor.ID),
		slog.String("code", inspectflow.GetErrorCode(err).String()),
		slog.Any("error", err))
}

// OnConflict logs lost optimistic writes
func (o *LoggingObserver) OnConflict(ctx context.Context, submissionID string, attempt int) {
	o.log(ctx, LogDebug, "Concurrent update, retrying",
		slog.String("submission_id", submissionID),
		slog.Int("attempt", attempt))
}

// OnError logs errors
func (o *LoggingObserver) OnError(ctx context.Context, err error) {
	o.log(ctx, LogError, "Workflow error", slog.Any("error", err))
}
