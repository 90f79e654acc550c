package engine

import (
	"context"
	"fmt"
	"io"
)

// preparer is implemented by engines with their own readiness routine.
type preparer interface {
	Prepare(ctx context.Context, model string, w io.Writer) error
}

// EnsureReady checks that e is reachable and that model is available.
// Engines that manage local models pull missing ones, with progress written to w.
func EnsureReady(ctx context.Context, e Engine, model string, w io.Writer) error {
	if p, ok := e.(preparer); ok {
		return p.Prepare(ctx, model, w)
	}

	if !e.IsRunning(ctx) {
		return fmt.Errorf("classifier backend is not reachable; check the provider settings")
	}

	mm, ok := e.(ModelManager)
	if !ok || mm.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", model)
	err := mm.PullModel(ctx, model, func(p PullProgress) {
		if p.Total > 0 {
			pct := float64(p.Completed) / float64(p.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}
