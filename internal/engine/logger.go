package engine

import (
	"fmt"
	"k8s.io/klog/v2"
	"maps"
	"slices"
	"strings"
)

// Logger is the sink of the metrics reported by each step.
type Logger interface {
	// LogDict logs the given named scalar metrics.
	LogDict(metrics map[string]float32)
}

// KlogLogger logs the metrics with klog, at the given verbosity level.
type KlogLogger struct {
	Verbosity klog.Level
}

// LogDict implements Logger. Keys are logged in sorted order.
func (l KlogLogger) LogDict(metrics map[string]float32) {
	if !klog.V(l.Verbosity).Enabled() {
		return
	}
	parts := make([]string, 0, len(metrics))
	for _, key := range slices.Sorted(maps.Keys(metrics)) {
		parts = append(parts, fmt.Sprintf("%s=%.5g", key, metrics[key]))
	}
	klog.V(l.Verbosity).Info(strings.Join(parts, ", "))
}

// MemoryLogger keeps every logged value in memory, in order, per key.
type MemoryLogger struct {
	values map[string][]float32
}

// NewMemoryLogger creates an empty MemoryLogger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{values: make(map[string][]float32)}
}

// LogDict implements Logger.
func (l *MemoryLogger) LogDict(metrics map[string]float32) {
	for key, value := range metrics {
		l.values[key] = append(l.values[key], value)
	}
}

// Keys returns the sorted keys logged so far.
func (l *MemoryLogger) Keys() []string {
	return slices.Sorted(maps.Keys(l.values))
}

// Values returns all values logged for key, in the order they were logged.
func (l *MemoryLogger) Values(key string) []float32 {
	return l.values[key]
}

// Last returns the last value logged for key, and whether there was any.
func (l *MemoryLogger) Last(key string) (float32, bool) {
	values := l.values[key]
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

// Mean returns the mean of the values logged for key, and whether there was any.
func (l *MemoryLogger) Mean(key string) (float32, bool) {
	values := l.values[key]
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return float32(sum / float64(len(values))), true
}

// Reset discards all logged values.
func (l *MemoryLogger) Reset() {
	clear(l.values)
}

// MultiLogger sends the metrics to all its loggers.
type MultiLogger []Logger

// LogDict implements Logger.
func (m MultiLogger) LogDict(metrics map[string]float32) {
	for _, l := range m {
		l.LogDict(metrics)
	}
}

var (
	_ Logger = KlogLogger{}
	_ Logger = (*MemoryLogger)(nil)
	_ Logger = MultiLogger(nil)
)
