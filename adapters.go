package redisrouter

import (
	"context"
	"log/slog"
	"time"
)

// loggerAdapter adapts our Logger interface to router.Logger
type loggerAdapter struct {
	logger Logger
}

func (la *loggerAdapter) Debug(msg string, fields ...interface{}) {
	la.logger.Debug(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Info(msg string, fields ...interface{}) {
	la.logger.Info(msg, convertFields(fields...)...)
}

func (la *loggerAdapter) Error(msg string, fields ...interface{}) {
	la.logger.Error(msg, convertFields(fields...)...)
}

func convertFields(fields ...interface{}) []Field {
	result := make([]Field, 0, len(fields)/2)
	for i := 0; i < len(fields)-1; i += 2 {
		if key, ok := fields[i].(string); ok {
			result = append(result, Field{
				Key:   key,
				Value: fields[i+1],
			})
		}
	}
	return result
}

// metricsAdapter adapts our MetricsCollector to router.MetricsCollector
type metricsAdapter struct {
	metrics MetricsCollector
}

func (ma *metricsAdapter) RecordCommand(cmd string, duration time.Duration) {
	ma.metrics.RecordCommand(cmd, duration)
}

func (ma *metricsAdapter) RecordRedirection(kind string) {
	ma.metrics.RecordRedirection(kind)
}

func (ma *metricsAdapter) RecordRetry(reason string) {
	ma.metrics.RecordRetry(reason)
}

func (ma *metricsAdapter) RecordReconnection() {
	ma.metrics.RecordReconnection()
}

func (ma *metricsAdapter) RecordRequeue(count int) {
	ma.metrics.RecordRequeue(count)
}

func (ma *metricsAdapter) RecordTopologySync(duration time.Duration) {
	ma.metrics.RecordTopologySync(duration)
}

func (ma *metricsAdapter) RecordError(errorType string) {
	ma.metrics.RecordError(errorType)
}

// slogLogger writes through a *slog.Logger.
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger returns a Logger backed by l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{logger: l}
}

func (s *slogLogger) Debug(msg string, fields ...Field) {
	s.log(slog.LevelDebug, msg, fields)
}

func (s *slogLogger) Info(msg string, fields ...Field) {
	s.log(slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Error(msg string, fields ...Field) {
	s.log(slog.LevelError, msg, fields)
}

func (s *slogLogger) log(level slog.Level, msg string, fields []Field) {
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	s.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
