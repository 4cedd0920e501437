package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker reports throughput of a bulk operation, such as copying a
// spreadsheet export into the relational store, at a fixed interval.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	failed      int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Info("Starting operation")

	return tracker
}

// Increment records one processed item.
func (p *ProgressTracker) Increment() {
	p.add(1, 0)
}

// Fail records one item that could not be processed.
func (p *ProgressTracker) Fail() {
	p.add(1, 1)
}

func (p *ProgressTracker) add(done, failed int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += done
	p.failed += failed
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(p.fields(now)).Info("Progress update")
		p.lastLogTime = now
	}
}

// Complete logs final statistics. A non-nil err is logged at error level.
func (p *ProgressTracker) Complete(err error) ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := time.Now()
	entry := p.logger.WithFields(p.fields(now))
	if err != nil {
		entry.WithError(err).Error("Operation completed with error")
	} else {
		entry.Info("Operation completed")
	}
	return p.stats(now)
}

// Stats returns current progress statistics
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.stats(time.Now())
}

func (p *ProgressTracker) stats(now time.Time) ProgressStats {
	duration := now.Sub(p.startTime)
	var rate float64
	if duration.Seconds() > 0 {
		rate = float64(p.current) / duration.Seconds()
	}
	var percentage float64
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}
	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Current:    p.current,
		Failed:     p.failed,
		Percentage: percentage,
		Duration:   duration,
		Rate:       rate,
	}
}

func (p *ProgressTracker) fields(now time.Time) Fields {
	s := p.stats(now)
	fields := Fields{
		"operation": s.Operation,
		"processed": s.Current,
		"failed":    s.Failed,
		"rate":      fmt.Sprintf("%.2f/sec", s.Rate),
	}
	if s.Total > 0 {
		fields["total"] = s.Total
		fields["percentage"] = fmt.Sprintf("%.1f%%", s.Percentage)
	}
	return fields
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Failed     int64         `json:"failed"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d (%.1f%%), %d failed", ps.Operation, ps.Current, ps.Total, ps.Percentage, ps.Failed)
	}
	return fmt.Sprintf("%s: %d processed, %d failed, elapsed %v", ps.Operation, ps.Current, ps.Failed, ps.Duration)
}

// TimedOperation executes fn and logs its duration and outcome.
func TimedOperation(operation string, logger Logger, fn func() error) error {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	start := time.Now()
	err := fn()

	entry := logger.WithFields(Fields{
		"operation": operation,
		"duration":  time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Operation failed")
	} else {
		entry.Debug("Operation completed")
	}
	return err
}
