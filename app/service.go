package app

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"gosane/domain/deconv"
	"gosane/domain/grid"
	"gosane/ports"
)

// RunRequest describes one deconvolution job.
type RunRequest struct {
	Dirty string `json:"dirty"`
	PSF   string `json:"psf"`
	Mask  string `json:"mask,omitempty"`

	Params  deconv.Params `json:"params"`
	ByScale bool          `json:"by_scale"`

	// OutputPrefix, when set, writes <prefix>_model, <prefix>_residual and
	// <prefix>_restored through the image store.
	OutputPrefix string `json:"output_prefix,omitempty"`
}

// RunService orchestrates deconvolution runs: it loads images, drives the
// deconvolver, persists per-iteration metrics and fans progress out to a
// sink.
type RunService struct {
	deconv *Deconvolver
	store  ports.ImageStore
	repo   ports.RunRepository
	sink   ports.ProgressSink
	log    *log.Logger
}

// NewRunService wires a run service. A nil sink discards progress events.
func NewRunService(d *Deconvolver, store ports.ImageStore, repo ports.RunRepository, sink ports.ProgressSink, logger *log.Logger) *RunService {
	if sink == nil {
		sink = ports.NopProgress{}
	}
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &RunService{deconv: d, store: store, repo: repo, sink: sink, log: logger}
}

// Prepare registers a pending run record for the request.
func (s *RunService) Prepare(ctx context.Context, req RunRequest) (*deconv.Run, error) {
	run := deconv.NewRun(req.Dirty, req.PSF, req.Params)
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run record: %w", err)
	}
	return run, nil
}

// Execute performs a run synchronously and returns its final record.
func (s *RunService) Execute(ctx context.Context, req RunRequest) (*deconv.Run, error) {
	run, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return run, s.Run(ctx, run, req)
}

// Run drives a prepared run to completion, updating its record as it goes.
func (s *RunService) Run(ctx context.Context, run *deconv.Run, req RunRequest) error {
	finish := func(status deconv.Status, complete bool, errMsg string) {
		run.Status = status
		run.Complete = complete
		run.Error = errMsg
		if err := s.repo.UpdateStatus(ctx, run.ID, status, complete, errMsg); err != nil {
			s.log.Error("update run status", "run", run.ID, "err", err)
		}
		s.sink.RunFinished(run.ID, status, errMsg)
	}

	session, err := s.loadSession(req)
	if err != nil {
		finish(deconv.StatusFailed, false, err.Error())
		return err
	}

	run.Status = deconv.StatusRunning
	if err := s.repo.UpdateStatus(ctx, run.ID, deconv.StatusRunning, false, ""); err != nil {
		s.log.Error("update run status", "run", run.ID, "err", err)
	}
	s.sink.RunStarted(run)

	// Each run drives its own shallow copy of the deconvolver so concurrent
	// runs do not share the iteration hook.
	worker := *s.deconv
	worker.OnIteration = func(m deconv.IterationMetrics) {
		run.Iterations = append(run.Iterations, m)
		if err := s.repo.AppendIteration(ctx, run.ID, m); err != nil {
			s.log.Error("append iteration", "run", run.ID, "err", err)
		}
		s.sink.MajorIteration(run.ID, m)
	}

	var status deconv.Status
	if req.ByScale {
		status, err = worker.MoresaneByScale(ctx, session, req.Params)
	} else {
		status, err = worker.Moresane(ctx, session, req.Params)
	}
	if err != nil {
		finish(deconv.StatusFailed, false, err.Error())
		return err
	}

	if req.OutputPrefix != "" {
		if err := s.writeOutputs(req, session); err != nil {
			finish(deconv.StatusFailed, false, err.Error())
			return err
		}
	}

	finish(status, session.Complete || status == deconv.StatusCompleted, "")
	return nil
}

// loadSession reads the input images and assembles a session.
func (s *RunService) loadSession(req RunRequest) (*Session, error) {
	dirty, _, err := s.store.ReadImage(req.Dirty)
	if err != nil {
		return nil, fmt.Errorf("read dirty image: %w", err)
	}
	psf, _, err := s.store.ReadImage(req.PSF)
	if err != nil {
		return nil, fmt.Errorf("read psf: %w", err)
	}
	var mask *grid.Image
	if req.Mask != "" {
		mask, _, err = s.store.ReadImage(req.Mask)
		if err != nil {
			return nil, fmt.Errorf("read mask: %w", err)
		}
	}
	return NewSession(dirty, psf, mask)
}

// writeOutputs restores the image and stores model, residual and restored
// maps with the dirty image's header, stamped with the fitted beam.
func (s *RunService) writeOutputs(req RunRequest, session *Session) error {
	_, hdr, err := s.store.ReadImage(req.Dirty)
	if err != nil {
		return fmt.Errorf("reread header: %w", err)
	}

	params, err := s.deconv.Restore(session)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	hdr["BMAJ"] = params.Bmaj
	hdr["BMIN"] = params.Bmin
	hdr["BPA"] = params.Bpa

	outputs := map[string]*grid.Image{
		req.OutputPrefix + "_model":    session.Model,
		req.OutputPrefix + "_residual": session.Residual,
		req.OutputPrefix + "_restored": session.Restored,
	}
	for name, img := range outputs {
		if err := s.store.WriteImage(name, img, hdr); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Get returns one run record.
func (s *RunService) Get(ctx context.Context, id deconv.RunID) (*deconv.Run, error) {
	return s.repo.Get(ctx, id)
}

// List returns all run records.
func (s *RunService) List(ctx context.Context) ([]*deconv.Run, error) {
	return s.repo.List(ctx)
}
