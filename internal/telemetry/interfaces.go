package telemetry

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"lockstep/client/logging"
)

// Logger exposes the logging capabilities required by client components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a logrus logger or entry to the Logger interface.
func WrapLogger(logger logrus.FieldLogger) Logger {
	return &loggerAdapter{logger: logger}
}

type loggerAdapter struct {
	logger logrus.FieldLogger
}

// Printf logs at info level. A leading "[component]" tag, as used across
// the client, becomes a component field instead of message text.
func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if component, rest, ok := splitComponent(msg); ok {
		l.logger.WithField("component", component).Info(rest)
		return
	}
	l.logger.Info(msg)
}

func splitComponent(msg string) (component, rest string, ok bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", msg, false
	}
	end := strings.IndexByte(msg, ']')
	if end <= 1 {
		return "", msg, false
	}
	return msg[1:end], strings.TrimLeft(msg[end+1:], " "), true
}

// Metrics exposes the telemetry methods required by client components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the shared metric set into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

type nopMetrics struct{}

func (nopMetrics) Add(string, uint64)   {}
func (nopMetrics) Store(string, uint64) {}

// NopMetrics discards every value.
func NopMetrics() Metrics {
	return nopMetrics{}
}
