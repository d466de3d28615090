package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
	"github.com/nvr-ai/go-detbench/profiler"
	"github.com/sirupsen/logrus"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunNotStarted RunState = "not_started"
	RunRunning    RunState = "running"
	RunCompleted  RunState = "completed"
)

// LogLevel classifies run log entries.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogError   LogLevel = "error"
)

// LogEntry is one line of a run's processing log.
type LogEntry struct {
	Time    time.Time  `json:"time"`
	Level   LogLevel   `json:"level"`
	Backend model.Name `json:"backend,omitempty"`
	Message string     `json:"message"`
}

// DetectionResult is the output of one backend.
type DetectionResult struct {
	Backend        model.Name              `json:"backend"`
	Detections     []postprocess.Detection `json:"detections"`
	ProcessingTime time.Duration           `json:"processing_time"`
	CompletedAt    time.Time               `json:"completed_at"`
	Timings        profiler.Timings        `json:"timings"`
	// Dropped counts detections rejected by validation.
	Dropped int `json:"dropped"`
}

// BackendState is the progress of one backend within a run.
type BackendState struct {
	Name       model.Name `json:"name"`
	Status     Status     `json:"status"`
	Progress   int        `json:"progress"`
	Phase      Phase      `json:"phase,omitempty"`
	Error      string     `json:"error,omitempty"`
	Detections int        `json:"detections"`
}

// Snapshot is an immutable copy of a run's state.
type Snapshot struct {
	ID          string         `json:"id"`
	State       RunState       `json:"state"`
	Backends    []BackendState `json:"backends"`
	Overall     float64        `json:"overall"`
	Log         []LogEntry     `json:"log"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at,omitempty"`
}

// Backend returns the state of one backend.
func (s *Snapshot) Backend(name model.Name) (BackendState, bool) {
	for _, b := range s.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendState{}, false
}

// Run is the handle of one pipeline run. Its state is written only by the
// orchestrator loop; readers observe it through Snapshot, Events and Results.
type Run struct {
	id     string
	config Config
	logger logrus.FieldLogger
	cancel context.CancelCauseFunc

	in       chan Event
	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	snapshot atomic.Pointer[Snapshot]

	// Owned by the loop until done is closed.
	state   Snapshot
	index   map[model.Name]int
	results map[model.Name]*DetectionResult
}

func newRun(cfg Config, cancel context.CancelCauseFunc, logger logrus.FieldLogger) *Run {
	id := uuid.NewString()
	r := &Run{
		id:      id,
		config:  cfg,
		logger:  logger.WithField("run", id),
		cancel:  cancel,
		in:      make(chan Event),
		events:  make(chan Event),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		index:   make(map[model.Name]int, len(cfg.Backends)),
		results: make(map[model.Name]*DetectionResult, len(cfg.Backends)),
	}
	r.state = Snapshot{ID: id, State: RunNotStarted}
	for i, name := range cfg.Backends {
		r.index[name] = i
		r.state.Backends = append(r.state.Backends, BackendState{Name: name, Status: StatusQueued})
	}
	r.publish()

	go forward(r.in, r.events, r.stop)
	return r
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Config returns the configuration the run was started with.
func (r *Run) Config() Config { return r.config }

// Events returns the run's event stream. It is closed when the run completes
// or is discarded. Events are buffered, so an idle consumer never stalls the
// run.
func (r *Run) Events() <-chan Event { return r.events }

// Snapshot returns the latest published state.
func (r *Run) Snapshot() *Snapshot { return r.snapshot.Load() }

// Done is closed when the run completes.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run completes or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the results of completed backends, or ErrRunNotCompleted
// while the run is in progress.
func (r *Run) Results() (map[model.Name]*DetectionResult, error) {
	select {
	case <-r.done:
	default:
		return nil, ErrRunNotCompleted
	}
	out := make(map[model.Name]*DetectionResult, len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out, nil
}

// Close discards the run: remaining backends are cancelled and the event
// stream is closed.
func (r *Run) Close() {
	r.cancel(ErrRunDiscarded)
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Run) begin() {
	r.state.State = RunRunning
	r.state.StartedAt = time.Now()
	r.publish()
}

func (r *Run) finish() {
	r.state.State = RunCompleted
	r.state.CompletedAt = time.Now()
	r.publish()
	close(r.in)
	close(r.done)
}

func (r *Run) addLog(level LogLevel, backend model.Name, format string, args ...any) {
	entry := LogEntry{Time: time.Now(), Level: level, Backend: backend, Message: fmt.Sprintf(format, args...)}
	r.state.Log = append(r.state.Log, entry)

	log := r.logger
	if backend != "" {
		log = log.WithField("backend", backend)
	}
	switch level {
	case LogError:
		log.Error(entry.Message)
	default:
		log.Info(entry.Message)
	}
	r.publish()
}

func (r *Run) setStatus(name model.Name, status Status) {
	b := &r.state.Backends[r.index[name]]
	b.Status = status
	b.Progress = 0
	b.Phase = ""
	r.emit(Event{Backend: name, Kind: EventStatus, Status: status})
}

func (r *Run) advance(name model.Name, phase Phase) {
	b := &r.state.Backends[r.index[name]]
	b.Phase = phase
	b.Progress = phase.Progress()
	r.emit(Event{Backend: name, Kind: EventProgress, Phase: phase, Progress: b.Progress})
}

func (r *Run) complete(name model.Name, res *DetectionResult) {
	r.results[name] = res
	b := &r.state.Backends[r.index[name]]
	b.Status = StatusCompleted
	b.Progress = 100
	b.Detections = len(res.Detections)
	r.emit(Event{Backend: name, Kind: EventStatus, Status: StatusCompleted, Progress: 100, Detections: res.Detections})
}

func (r *Run) fail(name model.Name, err error) {
	b := &r.state.Backends[r.index[name]]
	b.Status = StatusError
	b.Progress = 0
	b.Error = err.Error()
	r.emit(Event{Backend: name, Kind: EventStatus, Status: StatusError, Err: err})
}

func (r *Run) emit(ev Event) {
	ev.Time = time.Now()
	ev.Run = r.id
	ev.Overall = r.overall()
	r.state.Overall = ev.Overall
	r.publish()

	select {
	case r.in <- ev:
	case <-r.stop:
	}
}

func (r *Run) overall() float64 {
	if len(r.state.Backends) == 0 {
		return 0
	}
	var sum int
	for _, b := range r.state.Backends {
		sum += b.Progress
	}
	return float64(sum) / float64(len(r.state.Backends))
}

func (r *Run) publish() {
	s := r.state
	s.Backends = append([]BackendState(nil), r.state.Backends...)
	s.Log = append([]LogEntry(nil), r.state.Log...)
	r.snapshot.Store(&s)
}
