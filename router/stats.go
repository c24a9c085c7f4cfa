package router

import (
	"sync"
	"time"
)

// Logger interface for router logging
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector interface for router metrics
type MetricsCollector interface {
	RecordCommand(cmd string, duration time.Duration)
	RecordRedirection(kind string)
	RecordRetry(reason string)
	RecordReconnection()
	RecordRequeue(count int)
	RecordTopologySync(duration time.Duration)
	RecordError(errorType string)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...interface{}) {}
func (nopLogger) Info(msg string, fields ...interface{})  {}
func (nopLogger) Error(msg string, fields ...interface{}) {}

// Stats is a point-in-time copy of router counters.
type Stats struct {
	Commands        int64
	Errors          int64
	Moved           int64
	Asks            int64
	Retries         int64
	Requeues        int64
	Reconnections   int64
	TopologySyncs   int64
	DemotedReplicas int64
	LastSync        time.Time
	TopologyVersion uint64
	Connections     int
}

type statsTracker struct {
	mu sync.RWMutex
	s  Stats
}

func (t *statsTracker) update(fn func(*Stats)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

func (t *statsTracker) snapshot() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

type nopMetrics struct{}

func (nopMetrics) RecordCommand(cmd string, duration time.Duration) {}
func (nopMetrics) RecordRedirection(kind string)                    {}
func (nopMetrics) RecordRetry(reason string)                        {}
func (nopMetrics) RecordReconnection()                              {}
func (nopMetrics) RecordRequeue(count int)                          {}
func (nopMetrics) RecordTopologySync(duration time.Duration)        {}
func (nopMetrics) RecordError(errorType string)                     {}
