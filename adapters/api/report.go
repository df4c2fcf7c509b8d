package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gomarkdown/markdown"

	"gosane/domain/deconv"
)

// handleReport renders a human-readable run report as HTML.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.Get(r.Context(), deconv.RunID(chi.URLParam(r, "id")))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, deconv.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	html := markdown.ToHTML([]byte(reportMarkdown(run)), nil, nil)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// reportMarkdown builds the markdown source of a run report.
func reportMarkdown(run *deconv.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Deconvolution run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Dirty image: `%s`\n", run.DirtyName)
	fmt.Fprintf(&b, "- PSF: `%s`\n", run.PSFName)
	fmt.Fprintf(&b, "- Status: **%s** (complete: %v)\n", run.Status, run.Complete)
	if run.Error != "" {
		fmt.Fprintf(&b, "- Error: `%s`\n", run.Error)
	}
	fmt.Fprintf(&b, "- Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "- Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}

	p := run.Params
	fmt.Fprintf(&b, "\n## Parameters\n\n")
	fmt.Fprintf(&b, "| parameter | value |\n|---|---|\n")
	fmt.Fprintf(&b, "| subregion | %d |\n", p.Subregion)
	fmt.Fprintf(&b, "| scale_count | %d |\n", p.ScaleCount)
	fmt.Fprintf(&b, "| sigma_level | %g |\n", p.SigmaLevel)
	fmt.Fprintf(&b, "| loop_gain | %g |\n", p.LoopGain)
	fmt.Fprintf(&b, "| tolerance | %g |\n", p.Tolerance)
	fmt.Fprintf(&b, "| accuracy | %g |\n", p.Accuracy)
	fmt.Fprintf(&b, "| conv_mode | %s |\n", p.ConvMode)
	fmt.Fprintf(&b, "| enforce_positivity | %v |\n", p.EnforcePositivity)

	if len(run.Iterations) > 0 {
		fmt.Fprintf(&b, "\n## Major iterations\n\n")
		fmt.Fprintf(&b, "| iter | scales | max scale | max coeff | minor iters | snr (dB) | residual std | std ratio | reverted |\n")
		fmt.Fprintf(&b, "|---|---|---|---|---|---|---|---|---|\n")
		for _, m := range run.Iterations {
			fmt.Fprintf(&b, "| %d | %d | %d | %.4g | %d | %.2f | %.4g | %.4g | %v |\n",
				m.MajorIter, m.ScaleCount, m.MaxScale, m.MaxCoeff, m.MinorIters, m.SNR, m.ResidualStd, m.StdRatio, m.Reverted)
		}
	}
	return b.String()
}
