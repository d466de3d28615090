package pipeline

import (
	"time"

	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/models/postprocess"
)

// Status is the state of one backend within a run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Phase is a progress milestone of one backend.
type Phase string

const (
	PhaseModelReady    Phase = "model_ready"
	PhasePreprocessing Phase = "preprocessing"
	PhaseInference     Phase = "inference"
	PhaseComplete      Phase = "complete"
)

// Progress returns the percentage reported when the phase is reached.
func (p Phase) Progress() int {
	switch p {
	case PhaseModelReady:
		return 20
	case PhasePreprocessing:
		return 40
	case PhaseInference:
		return 70
	case PhaseComplete:
		return 100
	}
	return 0
}

// EventKind distinguishes progress milestones from status transitions.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
)

// Event is one record of a run's event stream.
type Event struct {
	Time    time.Time  `json:"time"`
	Run     string     `json:"run"`
	Backend model.Name `json:"backend"`
	Kind    EventKind  `json:"kind"`
	// Phase and Progress are set on progress events; Progress is also set on
	// status events.
	Phase    Phase `json:"phase,omitempty"`
	Progress int   `json:"progress"`
	// Status is set on status events.
	Status Status `json:"status,omitempty"`
	// Detections is set when Status is completed.
	Detections []postprocess.Detection `json:"detections,omitempty"`
	// Err is set when Status is error.
	Err error `json:"-"`
	// Overall is the run progress after this event.
	Overall float64 `json:"overall"`
}

// forward relays events from in to out without ever blocking the sender on a
// slow consumer. out is closed once in is closed and drained, or when stop is
// closed.
func forward(in <-chan Event, out chan<- Event, stop <-chan struct{}) {
	defer close(out)

	var pending []Event
	for in != nil || len(pending) > 0 {
		var send chan<- Event
		var next Event
		if len(pending) > 0 {
			send = out
			next = pending[0]
		}

		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			pending = append(pending, ev)
		case send <- next:
			pending[0] = Event{}
			pending = pending[1:]
		case <-stop:
			return
		}
	}
}
