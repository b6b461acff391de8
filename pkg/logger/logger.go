package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps the logrus logger used by the whole process.
type Logger struct {
	*logrus.Logger
	file *os.File
}

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

// Config represents logger configuration
type Config struct {
	Level       LogLevel
	Format      LogFormat
	Output      string // file path or "stdout"
	Environment string
}

var (
	instance *Logger
	once     sync.Once
)

// Init initializes the global logger from LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT.
func Init() {
	once.Do(func() {
		instance = NewLogger(configFromEnv())
	})
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	l := &Logger{Logger: logrus.New()}
	l.SetLevel(toLogrusLevel(config.Level))

	if config.Format == TextFormat {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		})
	}

	l.SetOutput(os.Stdout)
	if config.Output != "" && config.Output != "stdout" {
		if w, f, err := openLogFile(config); err != nil {
			l.WithError(err).Warn("Falling back to stdout logging")
		} else {
			l.SetOutput(w)
			l.file = f
		}
	}

	l.SetReportCaller(config.Level == DebugLevel)
	return l
}

func openLogFile(config Config) (io.Writer, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(config.Output), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	if config.Environment == "development" {
		return io.MultiWriter(f, os.Stdout), f, nil
	}
	return f, f, nil
}

func configFromEnv() Config {
	config := Config{
		Level:       InfoLevel,
		Format:      JSONFormat,
		Output:      "stdout",
		Environment: os.Getenv("APP_ENV"),
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}
	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		config.Output = output
	}
	return config
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// base returns the global logger, or logrus' standard logger before Init so
// packages can log from tests without setup.
func base() *logrus.Logger {
	if instance != nil {
		return instance.Logger
	}
	return logrus.StandardLogger()
}

// SetOutput redirects the global logger, mainly for tests.
func SetOutput(w io.Writer) {
	base().SetOutput(w)
}

// SetLevel changes the logger level at runtime
func SetLevel(level LogLevel) {
	base().SetLevel(toLogrusLevel(level))
}

func Debugf(format string, args ...interface{}) { base().Debugf(format, args...) }
func Info(args ...interface{})                  { base().Info(args...) }
func Infof(format string, args ...interface{})  { base().Infof(format, args...) }
func Warn(args ...interface{})                  { base().Warn(args...) }
func Warnf(format string, args ...interface{})  { base().Warnf(format, args...) }
func Error(args ...interface{})                 { base().Error(args...) }
func Errorf(format string, args ...interface{}) { base().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { base().Fatalf(format, args...) }

func WithField(key string, value interface{}) *logrus.Entry {
	return base().WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return base().WithFields(fields)
}

func WithError(err error) *logrus.Entry {
	return base().WithError(err)
}

func merge(fields logrus.Fields, metadata map[string]interface{}) logrus.Fields {
	for k, v := range metadata {
		fields[k] = v
	}
	return fields
}

// LogRequest logs HTTP request information
func LogRequest(method, path, ip, userAgent string, duration time.Duration, statusCode int) {
	entry := WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"ip":          ip,
		"user_agent":  userAgent,
		"duration_ms": duration.Milliseconds(),
		"status_code": statusCode,
		"type":        "request",
	})
	if statusCode >= 500 {
		entry.Error("HTTP Request")
		return
	}
	entry.Info("HTTP Request")
}

// LogUserAction logs user actions
func LogUserAction(userID, action string, metadata map[string]interface{}) {
	WithFields(merge(logrus.Fields{
		"user_id": userID,
		"action":  action,
		"type":    "user_action",
	}, metadata)).Info("User Action")
}

// LogAdminAction logs actions one user takes on behalf of another.
func LogAdminAction(adminID, action, target string, metadata map[string]interface{}) {
	WithFields(merge(logrus.Fields{
		"admin_id": adminID,
		"action":   action,
		"target":   target,
		"type":     "admin_action",
	}, metadata)).Warn("Admin Action")
}

// LogChatEvent logs chat-related events
func LogChatEvent(event, chatID, userID string, metadata map[string]interface{}) {
	WithFields(merge(logrus.Fields{
		"event":   event,
		"chat_id": chatID,
		"user_id": userID,
		"type":    "chat_event",
	}, metadata)).Info("Chat Event")
}

// LogCallEvent logs call signaling transitions.
func LogCallEvent(event, callID, userID string, metadata map[string]interface{}) {
	WithFields(merge(logrus.Fields{
		"event":   event,
		"call_id": callID,
		"user_id": userID,
		"type":    "call_event",
	}, metadata)).Info("Call Event")
}

// LogSecurityEvent logs security-related events
func LogSecurityEvent(event, userID, ip string, metadata map[string]interface{}) {
	WithFields(merge(logrus.Fields{
		"event":   event,
		"user_id": userID,
		"ip":      ip,
		"type":    "security_event",
	}, metadata)).Warn("Security Event")
}

// LogError logs detailed error information
func LogError(err error, context string, metadata map[string]interface{}) {
	if err == nil {
		return
	}
	fields := merge(logrus.Fields{
		"error":   err.Error(),
		"context": context,
		"type":    "error_detail",
	}, metadata)

	if os.Getenv("APP_ENV") == "development" {
		fields["stack_trace"] = stackTrace()
	}

	WithFields(fields).Error("Application Error")
}

// LogPerformance logs slow operations at warn level and the rest at debug.
func LogPerformance(operation string, duration time.Duration, metadata map[string]interface{}) {
	entry := WithFields(merge(logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
		"type":        "performance",
	}, metadata))

	if duration > 5*time.Second {
		entry.Warn("Slow Operation")
	} else {
		entry.Debug("Performance Metric")
	}
}

func stackTrace() string {
	buf := make([]byte, 2048)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Close flushes and closes a file output.
func Close() error {
	if instance != nil && instance.file != nil {
		_ = instance.file.Sync()
		return instance.file.Close()
	}
	return nil
}
