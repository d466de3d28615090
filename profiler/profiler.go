// Package profiler tracks per-stage timings of detection runs.
package profiler

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/nvr-ai/go-detbench/util"
	"github.com/sirupsen/logrus"
)

// Stage names one step of a backend invocation.
type Stage string

const (
	// StageLoad is acquiring (and on first use loading) the model.
	StageLoad Stage = "load"
	// StagePreprocess is image to tensor conversion.
	StagePreprocess Stage = "preprocess"
	// StageInference is the model run.
	StageInference Stage = "inference"
	// StagePostprocess is decode, NMS, rescale and normalize.
	StagePostprocess Stage = "postprocess"
)

// Timings holds the duration of each stage of one invocation.
type Timings map[Stage]time.Duration

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats is a snapshot of a TimeTracker.
type OperationStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Mean  time.Duration `json:"mean"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

// Profiler records operation durations. It is safe for concurrent use.
type Profiler struct {
	mu             sync.Mutex
	startTime      time.Time
	maxSamples     int
	operationTimes map[string]*TimeTracker
	logger         logrus.FieldLogger
}

// New creates a profiler that keeps at most maxSamples durations per
// operation (default 600).
func New(maxSamples int, logger logrus.FieldLogger) *Profiler {
	if maxSamples <= 0 {
		maxSamples = 600
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Profiler{
		startTime:      time.Now(),
		maxSamples:     maxSamples,
		operationTimes: make(map[string]*TimeTracker),
		logger:         logger,
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes; it records and
//     returns the elapsed time.
func (p *Profiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.Record(name, d)
		return d
	}
}

// Record adds one duration to the named operation.
func (p *Profiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		p.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > p.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns a snapshot of every operation, sorted by name.
func (p *Profiler) Stats() []OperationStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make([]OperationStats, 0, len(p.operationTimes))
	for name, tracker := range p.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		stats = append(stats, OperationStats{
			Name:  name,
			Count: tracker.count,
			Mean:  tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Report logs the operation timings and current memory usage.
func (p *Profiler) Report() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p.logger.WithFields(logrus.Fields{
		"uptime":     time.Since(p.startTime).Truncate(time.Millisecond),
		"goroutines": runtime.NumGoroutine(),
		"heap_alloc": util.FormatBytes(int64(mem.HeapAlloc)),
		"sys":        util.FormatBytes(int64(mem.Sys)),
	}).Info("profiler status")

	for _, s := range p.Stats() {
		p.logger.WithFields(logrus.Fields{
			"operation": s.Name,
			"avg":       s.Mean.Truncate(time.Microsecond),
			"min":       s.Min.Truncate(time.Microsecond),
			"max":       s.Max.Truncate(time.Microsecond),
			"count":     s.Count,
		}).Info("operation timing")
	}
}
