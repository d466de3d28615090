// Package server exposes runs over HTTP: start a run, watch its events over a
// websocket and fetch the results once it completes.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/nvr-ai/go-detbench/images"
	"github.com/nvr-ai/go-detbench/pipeline"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options configures a Server.
type Options struct {
	// Defaults fill in run parameters a request leaves out.
	Defaults pipeline.Config
	// MaxUploadSize caps request bodies in bytes; 0 means 100 MiB.
	MaxUploadSize int64
	Logger        logrus.FieldLogger
}

// Server is the HTTP surface over an Orchestrator.
type Server struct {
	orchestrator *pipeline.Orchestrator
	defaults     pipeline.Config
	maxUpload    int64
	logger       logrus.FieldLogger
	router       *mux.Router
	hub          *hub
	upgrader     websocket.Upgrader

	mu      sync.Mutex
	current *runState
}

// runState is the server's view of the latest run.
type runState struct {
	run    *pipeline.Run
	source images.Metadata
	// size is resolved once the upload is decoded.
	width, height int
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds a server. Close must be called to stop the websocket hub.
func New(orchestrator *pipeline.Orchestrator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 100 << 20
	}

	s := &Server{
		orchestrator: orchestrator,
		defaults:     opts.Defaults,
		maxUpload:    opts.MaxUploadSize,
		logger:       opts.Logger,
		hub:          newHub(opts.Logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	go s.hub.run()

	r := mux.NewRouter()
	r.HandleFunc("/backends", s.handleBackends).Methods(http.MethodGet)
	r.HandleFunc("/runs", s.handleStartRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/current", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/runs/current/results", s.handleResults).Methods(http.MethodGet)
	r.HandleFunc("/runs/current/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects every viewer.
func (s *Server) Close() {
	s.hub.close()
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s,
		Addr:         addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutdownCtx)
	}
}

// start begins a run over src and relays its events to the hub.
func (s *Server) start(cfg pipeline.Config, src *images.Future, meta images.Metadata) (*pipeline.Run, error) {
	run, err := s.orchestrator.Start(context.Background(), cfg, src)
	if err != nil {
		return nil, err
	}

	state := &runState{run: run, source: meta}
	s.mu.Lock()
	s.current = state
	s.mu.Unlock()

	go func() {
		if img, err := src.Wait(context.Background()); err == nil {
			s.mu.Lock()
			state.width, state.height = img.Width, img.Height
			s.mu.Unlock()
		}
	}()
	go s.relay(run)
	return run, nil
}

func (s *Server) relay(run *pipeline.Run) {
	for ev := range run.Events() {
		msg, err := json.Marshal(newEventMessage(ev))
		if err != nil {
			s.logger.WithError(err).Error("encode event")
			continue
		}
		s.hub.Broadcast(msg)
	}
	msg, err := json.Marshal(message{Type: messageSnapshot, Snapshot: run.Snapshot()})
	if err == nil {
		s.hub.Broadcast(msg)
	}
}

func (s *Server) currentState() (*runState, int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, 0, 0
	}
	return s.current, s.current.width, s.current.height
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// statusFor maps run start errors to HTTP status codes.
func statusFor(err error) (string, int) {
	var ce *pipeline.ConfigError
	switch {
	case errors.As(err, &ce):
		return "invalid_config", http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoSource):
		return "invalid_request", http.StatusBadRequest
	default:
		return "internal_error", http.StatusInternalServerError
	}
}
