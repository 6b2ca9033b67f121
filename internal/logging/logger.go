// Package logging provides the leveled, named loggers used across the
// service. Lines carry a timestamp, level, logger name, the message, and
// any structured fields.
//
// Loggers are obtained by name and are immutable; WithField, WithFields and
// WithContext return children rather than mutating the receiver, so a logger
// can be shared across goroutines freely:
//
//	logger := logging.GetLogger("store")
//	logger.Info("opened %s", path)
//
//	reqLogger := logger.WithField("request_id", id).WithContext(ctx)
//	reqLogger.InfoWithFields("event stored", logging.Field("event_id", ev.ID))
//
// A context attached with WithContext contributes trace_id and span_id fields
// when present (see TraceIDKey and SpanIDKey).
//
// Initialize sets the default level and optional per-package overrides;
// overrides accept exact names ("store") and prefix patterns ("analysis.*"),
// which is how --log-level store=debug on the CLI is wired through.
package logging

import (
	"context"
	"os"
	"sync"
)

var (
	globalLogger *Logger
	initOnce     sync.Once

	// exitFunc is swapped out in tests of Fatal behavior
	exitFunc = os.Exit
)

// Logger writes leveled log lines under a fixed name
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
	ctx    context.Context
}

// Initialize sets the global default level and, optionally, per-package
// overrides. Unknown level strings fall back to INFO.
func Initialize(levelStr string, packageLevels ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		level = INFO
	}
	globalLogger = &Logger{level: level, name: "changeintel"}

	if len(packageLevels) > 0 && packageLevels[0] != nil {
		return SetPackageLogLevels(packageLevels[0])
	}
	return nil
}

// GetLogger returns a logger with the given name, initializing the package
// at INFO on first use.
func GetLogger(name string) *Logger {
	initOnce.Do(func() {
		if globalLogger == nil {
			_ = Initialize("info")
		}
	})
	return &Logger{
		level:  globalLogger.level,
		name:   name,
		fields: make(map[string]interface{}),
	}
}

// shouldLog applies the package override when one exists, else the default
func (l *Logger) shouldLog(level LogLevel) bool {
	if pkgLevel := GetPackageLogLevel(l.name); pkgLevel >= 0 {
		return level >= pkgLevel
	}
	return level >= l.level
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.shouldLog(DEBUG) {
		l.logf("DEBUG", msg, args...)
	}
}

func (l *Logger) Info(msg string, args ...interface{}) {
	if l.shouldLog(INFO) {
		l.logf("INFO", msg, args...)
	}
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	if l.shouldLog(WARN) {
		l.logf("WARN", msg, args...)
	}
}

func (l *Logger) Error(msg string, args ...interface{}) {
	if l.shouldLog(ERROR) {
		l.logf(strError, msg, args...)
	}
}

// Fatal logs the message and terminates the process with exit code 1
func (l *Logger) Fatal(msg string, args ...interface{}) {
	if l.shouldLog(FATAL) {
		l.logf(levelFatal, msg, args...)
		exitFunc(1)
	}
}

// WithField returns a child logger that stamps key=value on every line
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := l.clone()
	child.fields[key] = value
	return child
}

// WithFields returns a child logger carrying all the given fields
func (l *Logger) WithFields(fields ...LogField) *Logger {
	child := l.clone()
	for _, f := range fields {
		child.fields[f.Key] = f.Value
	}
	return child
}

// WithContext returns a child logger that extracts trace_id and span_id
// from ctx on every line.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	child := l.clone()
	child.ctx = ctx
	return child
}

func (l *Logger) clone() *Logger {
	return &Logger{
		level:  l.level,
		name:   l.name,
		fields: cloneFields(l.fields),
		ctx:    l.ctx,
	}
}

func (l *Logger) DebugWithFields(msg string, fields ...LogField) {
	if l.shouldLog(DEBUG) {
		l.logWithFields("DEBUG", msg, fields...)
	}
}

func (l *Logger) InfoWithFields(msg string, fields ...LogField) {
	if l.shouldLog(INFO) {
		l.logWithFields("INFO", msg, fields...)
	}
}

func (l *Logger) WarnWithFields(msg string, fields ...LogField) {
	if l.shouldLog(WARN) {
		l.logWithFields("WARN", msg, fields...)
	}
}

func (l *Logger) ErrorWithFields(msg string, fields ...LogField) {
	if l.shouldLog(ERROR) {
		l.logWithFields(strError, msg, fields...)
	}
}

// logWithFields merges context trace fields, the logger's persistent fields,
// and call-site fields, in that priority order (call-site wins).
func (l *Logger) logWithFields(level, msg string, fields ...LogField) {
	merged := extractContextFields(l.ctx)
	if merged == nil && (len(l.fields) > 0 || len(fields) > 0) {
		merged = make(map[string]interface{}, len(l.fields)+len(fields))
	}
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		merged[f.Key] = f.Value
	}
	l.writeLog(level, msg, merged)
}
