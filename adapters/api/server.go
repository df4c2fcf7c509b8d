// Package api exposes deconvolution runs over HTTP: submission, inspection,
// an SSE progress stream and a rendered run report.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gosane/app"
	"gosane/domain/deconv"
)

// Server hosts the run API.
type Server struct {
	svc         *app.RunService
	broadcaster *Broadcaster
	log         *log.Logger
}

// NewServer wires the API around a run service. The broadcaster must be the
// same one registered as the service's progress sink.
func NewServer(svc *app.RunService, broadcaster *Broadcaster, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Server{svc: svc, broadcaster: broadcaster, log: logger}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/runs", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/events", s.handleEvents)
		r.Get("/{id}/report", s.handleReport)
	})
	return r
}

// handleSubmit accepts a run request and executes it asynchronously.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req app.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Dirty == "" || req.PSF == "" {
		writeError(w, http.StatusBadRequest, errors.New("dirty and psf are required"))
		return
	}
	if req.Params.SigmaLevel == 0 && req.Params.LoopGain == 0 {
		req.Params = deconv.DefaultParams()
	}

	run, err := s.svc.Prepare(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Snapshot the pending record before the worker starts mutating it; the
	// run itself outlives the request context.
	accepted := *run
	go func() {
		if err := s.svc.Run(context.Background(), run, req); err != nil {
			s.log.Error("run failed", "run", run.ID, "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, accepted)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	runs, err := s.svc.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Get(r.Context(), deconv.RunID(chi.URLParam(r, "id")))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, deconv.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleEvents streams run progress as server-sent events until the client
// disconnects or the run finishes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	id := deconv.RunID(chi.URLParam(r, "id"))
	events, cancel := s.broadcaster.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	// A run that finished before the subscription would otherwise stream
	// nothing forever.
	if run, err := s.svc.Get(r.Context(), id); err == nil && run.Status.Terminal() {
		e := Event{EventType: EventRunFinished, RunID: id, Timestamp: time.Now().UTC(),
			Data: map[string]any{"status": run.Status, "error": run.Error}}
		fmt.Fprint(w, e.SSEFormat())
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			fmt.Fprint(w, e.SSEFormat())
			flusher.Flush()
			if e.EventType == EventRunFinished {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
