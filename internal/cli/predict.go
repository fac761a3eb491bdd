package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/leaf-check/internal/controller"
	"github.com/example/leaf-check/internal/present"
	"github.com/example/leaf-check/internal/selection"
)

// settleGrace bounds how long the command waits past the request timeout for
// the controller to publish an outcome.
const settleGrace = 5 * time.Second

type predictOptions struct {
	json    bool
	metrics bool
}

// outcome is one file's line in --json output.
type outcome struct {
	File           string   `json:"file"`
	Stage          string   `json:"stage"`
	Label          string   `json:"label,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	ConfidenceText string   `json:"confidence_text,omitempty"`
	Message        string   `json:"message,omitempty"`
	Error          string   `json:"error,omitempty"`
	StatusCode     int      `json:"status_code,omitempty"`
}

func newPredictCmd(root *rootOptions) *cobra.Command {
	opts := &predictOptions{}

	cmd := &cobra.Command{
		Use:   "predict <image>...",
		Short: "Predict the disease for one or more images without the interactive UI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd.Context(), root, opts, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "Print one JSON object per image")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Print a submission summary at the end")
	return cmd
}

func runPredict(ctx context.Context, root *rootOptions, opts *predictOptions, paths []string, out io.Writer) error {
	a, err := newApp(ctx, root, false)
	if err != nil {
		return err
	}
	defer a.close()

	failed := 0
	for _, path := range paths {
		st, err := predictOne(ctx, a, path)
		if err != nil {
			return err
		}
		if st.Stage == controller.Failed {
			failed++
		}
		if err := writeOutcome(out, path, st, opts.json); err != nil {
			return err
		}
	}

	if opts.metrics {
		if err := writeMetrics(out, a, opts.json); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d predictions failed", failed, len(paths))
	}
	return nil
}

// predictOne selects path through the controller and waits for its outcome.
func predictOne(ctx context.Context, a *app, path string) (controller.UIState, error) {
	a.controller.Browse(selection.FromPath(path))
	current := a.controller.Snapshot()
	if current.Selection == nil {
		return current, fmt.Errorf("select %s: nothing was selected", path)
	}
	id := current.Selection.ID

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.API.Timeout+settleGrace)
	defer cancel()
	st, err := a.controller.Wait(waitCtx, func(s controller.UIState) bool {
		return s.Selection != nil && s.Selection.ID == id && s.Done()
	})
	if err != nil {
		return st, fmt.Errorf("waiting for %s: %w", path, err)
	}
	return st, nil
}

func writeOutcome(out io.Writer, path string, st controller.UIState, asJSON bool) error {
	v := present.Project(st)
	if asJSON {
		o := outcome{
			File:           path,
			Stage:          string(st.Stage),
			Label:          v.Label,
			ConfidenceText: v.Confidence,
			Message:        v.Note,
			Error:          v.Error,
		}
		if st.Result != nil {
			o.Confidence = st.Result.Confidence
		}
		if st.Fault != nil {
			o.StatusCode = st.Fault.StatusCode
		}
		return json.NewEncoder(out).Encode(o)
	}

	if v.Error != "" {
		_, err := fmt.Fprintf(out, "%s\t%s: %s\n", path, present.CaptionFailed, v.Error)
		return err
	}
	line := fmt.Sprintf("%s\tLabel: %s\tConfidence: %s", path, v.Label, v.Confidence)
	if v.Note != "" {
		line += "\t" + v.Note
	}
	_, err := fmt.Fprintln(out, line)
	return err
}

func writeMetrics(out io.Writer, a *app, asJSON bool) error {
	summary := a.client.Metrics()
	if asJSON {
		return json.NewEncoder(out).Encode(map[string]any{"metrics": summary})
	}
	_, err := fmt.Fprintf(out,
		"requests: %d  succeeded: %d  failed: %d  cache hits: %d  success rate: %.2f%%  avg latency: %.1fms\n",
		summary.TotalRequests, summary.SuccessfulRequests, summary.FailedRequests, summary.CacheHits,
		summary.SuccessRate*100, summary.AverageLatencyMs,
	)
	return err
}
