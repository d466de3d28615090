package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/models/model"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/nvr-ai/go-detbench/profiler"
	"github.com/nvr-ai/go-detbench/stats"
	"github.com/nvr-ai/go-detbench/util"
	"github.com/pkg/errors"
)

type messageType string

const (
	messageEvent    messageType = "event"
	messageSnapshot messageType = "snapshot"
)

// message is one websocket frame.
type message struct {
	Type     messageType        `json:"type"`
	Event    *pipeline.Event    `json:"event,omitempty"`
	Error    string             `json:"error,omitempty"`
	Snapshot *pipeline.Snapshot `json:"snapshot,omitempty"`
}

func newEventMessage(ev pipeline.Event) message {
	m := message{Type: messageEvent, Event: &ev}
	if ev.Err != nil {
		m.Error = ev.Err.Error()
	}
	return m
}

// StartRunResponse is returned by POST /runs.
type StartRunResponse struct {
	ID       string             `json:"id"`
	Source   images.Metadata    `json:"source"`
	Snapshot *pipeline.Snapshot `json:"snapshot"`
}

// ResultsResponse is returned by GET /runs/current/results.
type ResultsResponse struct {
	ID         string                                  `json:"id"`
	Results    map[model.Name]*pipeline.DetectionResult `json:"results"`
	Comparison stats.Comparison                        `json:"comparison"`
}

// MetricsResponse is returned by GET /metrics.
type MetricsResponse struct {
	Viewers    int                       `json:"viewers"`
	Operations []profiler.OperationStats `json:"operations"`
}

func (s *Server) handleBackends(w http.ResponseWriter, _ *http.Request) {
	registry := s.orchestrator.Registry()
	infos := make([]model.Info, 0)
	for _, name := range registry.Names() {
		if info, ok := registry.Info(name); ok {
			infos = append(infos, info)
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleStartRun accepts a multipart "file" field or a raw body named by the
// "name" query parameter. Run parameters come from form or query values:
// backends, confidence, iou and class_aware.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	data, name, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendErrorResponse(w, "file_too_large", err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	if err := util.ValidateImageFile(name, int64(len(data))); err != nil {
		if errors.Is(err, util.ErrFileTooLarge) {
			sendErrorResponse(w, "file_too_large", err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		sendErrorResponse(w, "invalid_format", err.Error(), http.StatusUnsupportedMediaType)
		return
	}

	cfg, err := s.runConfig(r)
	if err != nil {
		sendErrorResponse(w, "invalid_config", err.Error(), http.StatusBadRequest)
		return
	}

	meta := images.Metadata{Name: name, Size: int64(len(data)), Format: images.FormatFromName(name)}
	run, err := s.start(cfg, images.LoadAsync(data, name), meta)
	if err != nil {
		code, status := statusFor(err)
		sendErrorResponse(w, code, err.Error(), status)
		return
	}

	s.logger.WithField("run", run.ID()).WithField("file", name).Info("run started")
	writeJSON(w, http.StatusAccepted, StartRunResponse{ID: run.ID(), Source: meta, Snapshot: run.Snapshot()})
}

func readUpload(r *http.Request) ([]byte, string, error) {
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		return data, header.Filename, err
	} else if !errors.Is(err, http.ErrNotMultipart) && !errors.Is(err, http.ErrMissingFile) {
		return nil, "", err
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		return nil, "", errors.New("missing file: send a multipart \"file\" field or a raw body with ?name=")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty body")
	}
	return data, name, nil
}

func (s *Server) runConfig(r *http.Request) (pipeline.Config, error) {
	cfg := s.defaults
	cfg.Backends = append([]model.Name(nil), s.defaults.Backends...)

	if v := r.FormValue("backends"); v != "" {
		cfg.Backends = pipeline.ParseBackends(v)
	}
	if v := r.FormValue("confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return cfg, errors.Wrap(err, "confidence")
		}
		cfg.ConfidenceThreshold = float32(f)
	}
	if v := r.FormValue("iou"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return cfg, errors.Wrap(err, "iou")
		}
		cfg.IoUThreshold = float32(f)
	}
	if v := r.FormValue("class_aware"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.Wrap(err, "class_aware")
		}
		cfg.ClassAwareNMS = b
	}
	return cfg, nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	state, _, _ := s.currentState()
	if state == nil {
		sendErrorResponse(w, "not_found", "no run started", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state.run.Snapshot())
}

func (s *Server) handleResults(w http.ResponseWriter, _ *http.Request) {
	state, width, height := s.currentState()
	if state == nil {
		sendErrorResponse(w, "not_found", "no run started", http.StatusNotFound)
		return
	}

	results, err := state.run.Results()
	if errors.Is(err, pipeline.ErrRunNotCompleted) {
		sendErrorResponse(w, "not_completed", err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		sendErrorResponse(w, "internal_error", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ResultsResponse{
		ID:         state.run.ID(),
		Results:    results,
		Comparison: stats.Compare(results, state.run.Config().Backends, width, height),
	})
}

// handleEvents upgrades to a websocket. The viewer first receives the
// current snapshot, then every event of the current and later runs.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if state, _, _ := s.currentState(); state != nil {
		if msg, err := json.Marshal(message{Type: messageSnapshot, Snapshot: state.run.Snapshot()}); err == nil {
			c.send <- msg
		}
	}
	if !s.hub.Register(c) {
		conn.Close()
		return
	}
	go c.writePump()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.hub.Unregister(c)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MetricsResponse{
		Viewers:    s.hub.ClientCount(),
		Operations: s.orchestrator.Profiler().Stats(),
	})
}
