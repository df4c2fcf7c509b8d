// Command gosane deconvolves radio-interferometric images with the MORESANE
// algorithm, either as a one-shot CLI or as an HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gosane/adapters/api"
	"gosane/adapters/excel"
	"gosane/adapters/extract"
	"gosane/adapters/fftconv"
	"gosane/adapters/fits"
	"gosane/adapters/memory"
	"gosane/adapters/postgres"
	"gosane/app"
	"gosane/domain/deconv"
	"gosane/internal/config"
	"gosane/ports"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "gosane",
		Short:         "MORESANE deconvolution of radio-interferometric images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(false),
		newRunCmd(true),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the shared logger from configuration.
func newLogger(cfg config.Config) (*log.Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.Create(cfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
	}), nil
}

// runFlags binds the deconvolution parameter flags.
func runFlags(cmd *cobra.Command, params *deconv.Params) {
	f := cmd.Flags()
	f.IntVar(&params.Subregion, "subregion", 0, "side of the central region to deconvolve (0 = whole image)")
	f.IntVar(&params.ScaleCount, "scale-count", 0, "analysis depth (0 = log2(side)-1)")
	f.Float64Var(&params.SigmaLevel, "sigma-level", params.SigmaLevel, "threshold level in noise sigmas")
	f.Float64Var(&params.LoopGain, "loop-gain", params.LoopGain, "major loop gain")
	f.Float64Var(&params.Tolerance, "tolerance", params.Tolerance, "source extraction tolerance in [0,1]")
	f.Float64Var(&params.Accuracy, "accuracy", params.Accuracy, "residual improvement exit threshold")
	f.IntVar(&params.MajorLoopMiter, "major-loop-miter", params.MajorLoopMiter, "major loop iteration cap")
	f.IntVar(&params.MinorLoopMiter, "minor-loop-miter", params.MinorLoopMiter, "minor loop iteration cap")
	f.BoolVar(&params.EnforcePositivity, "enforce-positivity", false, "force a non-negative model")
	f.BoolVar(&params.EdgeSuppression, "edge-suppression", false, "suppress edge-corrupted wavelet coefficients")
	f.IntVar(&params.EdgeOffset, "edge-offset", 0, "minimum suppressed border in pixels (the wider of this and the per-scale strip applies)")
	f.Float64Var(&params.FluxThreshold, "flux-threshold", 0, "stop once the residual peak drops below this flux (Jy)")
	f.BoolVar(&params.NegComp, "neg-comp", false, "keep negative wavelet components")
	f.IntVar(&params.EdgeExcl, "edge-excl", 0, "border width excluded from noise estimation")
	f.IntVar(&params.IntExcl, "int-excl", 0, "central half-width excluded from noise estimation")
	f.StringVar((*string)(&params.ConvMode), "conv-mode", string(params.ConvMode), "convolution mode: linear or circular")
	f.StringVar((*string)(&params.DecomMode), "decom-mode", string(params.DecomMode), "decomposition mode: ser, mp or fft")
}

// newRunCmd builds the single-run and by-scale commands, which share their
// flag surface.
func newRunCmd(byScale bool) *cobra.Command {
	params := deconv.DefaultParams()
	var (
		mask       string
		output     string
		paramsFile string
		workbook   string
	)

	use, short := "run DIRTY PSF", "Run a single deconvolution pass"
	if byScale {
		use, short = "byscale DIRTY PSF", "Run the scale-by-scale deconvolution"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			if paramsFile != "" {
				fileParams, err := config.LoadParams(paramsFile)
				if err != nil {
					return err
				}
				// Flags set explicitly on the command line win over the file.
				applyUnchanged(cmd, &params, fileParams)
			}

			svc := app.NewRunService(
				app.NewDeconvolver(fftconv.New(), extract.NewExtractor(), logger),
				fits.NewStore(),
				memory.NewRunRepository(),
				nil,
				logger,
			)

			run, err := svc.Execute(cmd.Context(), app.RunRequest{
				Dirty:        args[0],
				PSF:          args[1],
				Mask:         mask,
				Params:       params,
				ByScale:      byScale,
				OutputPrefix: output,
			})
			if err != nil {
				return err
			}
			logger.Info("run finished", "id", run.ID, "status", run.Status, "iterations", len(run.Iterations))

			if workbook != "" {
				if err := excel.WriteReport(workbook, run); err != nil {
					return err
				}
				logger.Info("diagnostics workbook written", "path", workbook)
			}
			return nil
		},
	}

	runFlags(cmd, &params)
	if byScale {
		cmd.Flags().IntVar(&params.StartScale, "start-scale", params.StartScale, "first analysis depth")
		cmd.Flags().IntVar(&params.StopScale, "stop-scale", params.StopScale, "last analysis depth")
	}
	cmd.Flags().StringVar(&mask, "mask", "", "deconvolution mask FITS file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output prefix for model/residual/restored FITS files")
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML parameter file")
	cmd.Flags().StringVar(&workbook, "workbook", "", "write per-iteration diagnostics to this .xlsx file")
	return cmd
}

// applyUnchanged copies every parameter the user did not set explicitly from
// the file-loaded set.
func applyUnchanged(cmd *cobra.Command, params *deconv.Params, file deconv.Params) {
	set := map[string]func(){
		"subregion":          func() { params.Subregion = file.Subregion },
		"scale-count":        func() { params.ScaleCount = file.ScaleCount },
		"sigma-level":        func() { params.SigmaLevel = file.SigmaLevel },
		"loop-gain":          func() { params.LoopGain = file.LoopGain },
		"tolerance":          func() { params.Tolerance = file.Tolerance },
		"accuracy":           func() { params.Accuracy = file.Accuracy },
		"major-loop-miter":   func() { params.MajorLoopMiter = file.MajorLoopMiter },
		"minor-loop-miter":   func() { params.MinorLoopMiter = file.MinorLoopMiter },
		"enforce-positivity": func() { params.EnforcePositivity = file.EnforcePositivity },
		"edge-suppression":   func() { params.EdgeSuppression = file.EdgeSuppression },
		"edge-offset":        func() { params.EdgeOffset = file.EdgeOffset },
		"flux-threshold":     func() { params.FluxThreshold = file.FluxThreshold },
		"neg-comp":           func() { params.NegComp = file.NegComp },
		"edge-excl":          func() { params.EdgeExcl = file.EdgeExcl },
		"int-excl":           func() { params.IntExcl = file.IntExcl },
		"conv-mode":          func() { params.ConvMode = file.ConvMode },
		"decom-mode":         func() { params.DecomMode = file.DecomMode },
		"start-scale":        func() { params.StartScale = file.StartScale },
		"stop-scale":         func() { params.StopScale = file.StopScale },
	}
	for flag, apply := range set {
		if !cmd.Flags().Changed(flag) {
			apply()
		}
	}
}

// newServeCmd builds the API server command.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the deconvolution run API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr != "" {
				cfg.Addr = addr
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			var repo ports.RunRepository
			if cfg.DatabaseURL != "" {
				pg, err := postgres.NewRunRepository(cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pg.Close()
				repo = pg
				logger.Info("using postgres run repository")
			} else {
				repo = memory.NewRunRepository()
				logger.Info("using in-memory run repository")
			}

			broadcaster := api.NewBroadcaster()
			svc := app.NewRunService(
				app.NewDeconvolver(fftconv.New(), extract.NewExtractor(), logger),
				fits.NewStore(),
				repo,
				broadcaster,
				logger,
			)
			server := &http.Server{
				Addr:    cfg.Addr,
				Handler: api.NewServer(svc, broadcaster, logger).Router(),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("listening", "addr", cfg.Addr)
				if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down")
				return server.Shutdown(context.Background())
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides GOSANE_ADDR)")
	return cmd
}
