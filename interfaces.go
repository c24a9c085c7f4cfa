package redisrouter

import (
	"fmt"
	"log"
	"time"

	"github.com/raniellyferreira/redis-replica-router/router"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommand records a completed command with the time since it was submitted
	RecordCommand(cmd string, duration time.Duration)

	// RecordRedirection records a followed redirection, "moved" or "ask"
	RecordRedirection(kind string)

	// RecordRetry records a scheduled retry and its reason
	RecordRetry(reason string)

	// RecordReconnection records an established server connection
	RecordReconnection()

	// RecordRequeue records commands routed again after their connection closed
	RecordRequeue(count int)

	// RecordTopologySync records the time taken to install a new topology
	RecordTopologySync(duration time.Duration)

	// RecordError records an error event
	RecordError(errorType string)
}

// Stats is a point-in-time copy of the client's routing counters.
type Stats = router.Stats

// Result is the outcome of one pipelined command.
type Result = router.Result

// defaultLogger is a simple logger implementation using the standard log package
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...Field) {
	l.logWithFields("DEBUG", msg, fields...)
}

func (l *defaultLogger) Info(msg string, fields ...Field) {
	l.logWithFields("INFO", msg, fields...)
}

func (l *defaultLogger) Error(msg string, fields ...Field) {
	l.logWithFields("ERROR", msg, fields...)
}

func (l *defaultLogger) logWithFields(level, msg string, fields ...Field) {
	logMsg := level + ": " + msg
	for _, field := range fields {
		logMsg += " " + field.Key + "=" + formatValue(field.Value)
	}
	log.Println(logMsg)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
