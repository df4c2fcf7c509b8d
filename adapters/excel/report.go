// Package excel exports run diagnostics as an .xlsx workbook: one summary
// sheet with the parameters and final state, one sheet with the
// per-iteration metric table.
package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"gosane/domain/deconv"
)

const (
	summarySheet    = "Summary"
	iterationsSheet = "Iterations"
)

// WriteReport writes the diagnostics workbook for a run to path.
func WriteReport(path string, run *deconv.Run) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(iterationsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	summary := [][]any{
		{"run_id", run.ID.String()},
		{"dirty", run.DirtyName},
		{"psf", run.PSFName},
		{"status", string(run.Status)},
		{"complete", run.Complete},
		{"error", run.Error},
		{"started_at", run.StartedAt},
		{"subregion", run.Params.Subregion},
		{"scale_count", run.Params.ScaleCount},
		{"sigma_level", run.Params.SigmaLevel},
		{"loop_gain", run.Params.LoopGain},
		{"tolerance", run.Params.Tolerance},
		{"accuracy", run.Params.Accuracy},
		{"major_loop_miter", run.Params.MajorLoopMiter},
		{"minor_loop_miter", run.Params.MinorLoopMiter},
		{"conv_mode", string(run.Params.ConvMode)},
		{"decom_mode", string(run.Params.DecomMode)},
		{"enforce_positivity", run.Params.EnforcePositivity},
		{"edge_suppression", run.Params.EdgeSuppression},
		{"flux_threshold", run.Params.FluxThreshold},
	}
	if run.FinishedAt != nil {
		summary = append(summary, []any{"finished_at", *run.FinishedAt})
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	header := []any{"major_iter", "scale_count", "max_scale", "max_coeff",
		"minor_iters", "snr_db", "residual_std", "std_ratio", "reverted"}
	if err := f.SetSheetRow(iterationsSheet, "A1", &header); err != nil {
		return err
	}
	for i, m := range run.Iterations {
		row := []any{m.MajorIter, m.ScaleCount, m.MaxScale, m.MaxCoeff,
			m.MinorIters, m.SNR, m.ResidualStd, m.StdRatio, m.Reverted}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(iterationsSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
