package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"hexmirror/internal/models"
)

// ManifestSource builds the complete manifest for one run or fails.
type ManifestSource func(ctx context.Context) (*models.Manifest, error)

// Mirror wires the engine together for one destination root.
type Mirror struct {
	Root    string
	Source  ManifestSource
	Planner Planner
	Pool    *Pool
	DryRun  bool
}

// Result describes one run.
type Result struct {
	ManifestEntries int
	Planned         []WorkItem
	Summary         models.RunSummary
}

// Run returns an error only for run-level failures: manifest or local scan.
// Per-item failures are reported in Result.Summary.
func (m *Mirror) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	manifest, err := m.Source(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}
	slog.Info("manifest ready", "artifacts", manifest.Len())

	local, err := Scan(m.Root)
	if err != nil {
		return nil, err
	}

	items := m.Planner.Plan(manifest, local)
	slog.Info("plan ready", "to_fetch", len(items), "local_files", local.Len(), "manifest", manifest.Len())

	res := &Result{ManifestEntries: manifest.Len(), Planned: items}
	if m.DryRun {
		res.Summary = models.RunSummary{AlreadyPresent: manifest.Len() - len(items)}
		return res, nil
	}

	res.Summary = m.Pool.Run(ctx, items)
	res.Summary.AlreadyPresent = manifest.Len() - len(items)
	res.Summary.OperationTime = start.Format(time.RFC3339)
	res.Summary.Duration = time.Since(start).Round(time.Millisecond).String()
	return res, nil
}

func progress(n, total int) string {
	return "[" + strconv.Itoa(n) + "/" + strconv.Itoa(total) + "]"
}
