package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/careworks-labs/nhstage/internal/curate"
	"github.com/careworks-labs/nhstage/internal/dq"
	"github.com/careworks-labs/nhstage/internal/loader"
	"github.com/careworks-labs/nhstage/internal/metrics"
	"github.com/careworks-labs/nhstage/internal/registry"
	"github.com/careworks-labs/nhstage/internal/state"
)

// MetricsSummaryFile is the CSV export written by the metrics step.
const MetricsSummaryFile = "metrics_summary.csv"

// LoadAll stages the named datasets from the data directory. An empty
// list means every dataset in the registry. A failed dataset aborts the
// run; per-row rejects are tolerated and reported in the results.
func (e *Engine) LoadAll(ctx context.Context, names []string) ([]*loader.Result, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	datasets, err := e.resolveDatasets(names)
	if err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(state.RunKindLoad, e.environment)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	results, err := e.loadDatasets(ctx, run.ID, datasets)
	if err != nil {
		_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return results, err
	}
	_ = e.store.CompleteRun(run.ID, state.RunStatusCompleted, "")
	return results, nil
}

func (e *Engine) resolveDatasets(names []string) ([]*registry.Dataset, error) {
	if len(names) == 0 {
		return e.registry.All(), nil
	}
	datasets := make([]*registry.Dataset, 0, len(names))
	for _, name := range names {
		ds, err := e.registry.Get(name)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func (e *Engine) loadDatasets(ctx context.Context, runID string, datasets []*registry.Dataset) ([]*loader.Result, error) {
	ld := loader.New(e.db, e.logger)
	recorder := dq.NewRecorder(e.db, e.logger)
	if err := recorder.EnsureTables(ctx); err != nil {
		return nil, err
	}

	var results []*loader.Result
	for _, ds := range datasets {
		res, err := ld.Load(ctx, ds, e.dataDir)
		if err != nil {
			return results, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		results = append(results, res)

		_ = e.store.RecordDatasetLoad(&state.DatasetLoad{
			RunID:    runID,
			Dataset:  ds.Name,
			Files:    len(res.Files),
			Inserted: res.Inserted,
			Updated:  res.Updated,
			Skipped:  res.Skipped,
			Rejected: res.Rejected,
		})

		if len(res.Files) == 0 {
			continue
		}
		if err := recorder.RecordCompleteness(ctx, ds.StagingTable); err != nil {
			return results, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		if err := recorder.RecordDuplicateCheck(ctx, ds); err != nil {
			return results, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
	}
	return results, nil
}

// Curate builds the curated tables and views from staged data.
func (e *Engine) Curate(ctx context.Context) error {
	if err := e.ensureDBConnected(ctx); err != nil {
		return err
	}

	run, err := e.store.CreateRun(state.RunKindCurate, e.environment)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if err := curate.New(e.db, e.logger).Build(ctx); err != nil {
		_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return err
	}
	_ = e.store.CompleteRun(run.ID, state.RunStatusCompleted, "")
	return nil
}

// Metrics computes staffing metrics, persists them to the warehouse,
// and exports the CSV summary to the output directory.
func (e *Engine) Metrics(ctx context.Context) ([]metrics.StaffingMetric, error) {
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	run, err := e.store.CreateRun(state.RunKindMetrics, e.environment)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	computed, err := e.computeMetrics(ctx)
	if err != nil {
		_ = e.store.CompleteRun(run.ID, state.RunStatusFailed, err.Error())
		return nil, err
	}
	_ = e.store.CompleteRun(run.ID, state.RunStatusCompleted, "")
	return computed, nil
}

func (e *Engine) computeMetrics(ctx context.Context) ([]metrics.StaffingMetric, error) {
	calc := metrics.New(e.db, e.logger)
	computed, err := calc.Compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := calc.Store(ctx, computed); err != nil {
		return nil, err
	}

	if e.outputDir != "" {
		if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		path := filepath.Join(e.outputDir, MetricsSummaryFile)
		if err := metrics.ExportCSV(path, computed); err != nil {
			return nil, err
		}
		e.logger.Info("exported metrics summary", "path", path, "rows", len(computed))
	}
	return computed, nil
}

// RunAll executes load, curate, and metrics in sequence.
func (e *Engine) RunAll(ctx context.Context) ([]*loader.Result, []metrics.StaffingMetric, error) {
	results, err := e.LoadAll(ctx, nil)
	if err != nil {
		return results, nil, err
	}
	if err := e.Curate(ctx); err != nil {
		return results, nil, err
	}
	computed, err := e.Metrics(ctx)
	if err != nil {
		return results, nil, err
	}
	return results, computed, nil
}
