// Package app wires the pipeline together: manifest in, ConeTec files parsed,
// records loaded into OpenGround, per-job outcomes logged and tallied.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/config"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/conetec"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/loader"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/manifest"
	"github.com/haleyaldrich/NBB-Bridge-Data-Structuring/internal/worker"
)

// Options controls one batch run.
type Options struct {
	// ManifestPath is the JSON manifest naming the files to process.
	ManifestPath string

	// BaseDir resolves relative source_file paths in the manifest. Empty
	// means the manifest's own directory.
	BaseDir string

	// Workers is the number of jobs processed concurrently. Defaults to 1;
	// each job's write sequence stays strictly ordered regardless.
	Workers int

	// FailFast aborts the run on the first job failure instead of recording
	// it and continuing.
	FailFast bool
}

// Summary tallies per-job outcomes for one run.
type Summary struct {
	Loaded   int
	Reloaded int
	Skipped  int
	Failed   int
}

func (s Summary) total() int {
	return s.Loaded + s.Reloaded + s.Skipped + s.Failed
}

func (s Summary) String() string {
	return fmt.Sprintf("jobs=%d loaded=%d reloaded=%d skipped=%d failed=%d",
		s.total(), s.Loaded, s.Reloaded, s.Skipped, s.Failed)
}

func newRunLogger(logger *log.Logger) (*log.Logger, func(format string, args ...any)) {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	return logger, logf
}

func (o Options) resolvePath(source string) string {
	if filepath.IsAbs(source) {
		return source
	}
	base := o.BaseDir
	if base == "" {
		base = filepath.Dir(o.ManifestPath)
	}
	return filepath.Join(base, source)
}

// Run executes a full batch load: every manifest job is parsed and loaded,
// failures are recorded and the rest continue (unless opts.FailFast). The
// returned error is non-nil when any job failed.
func Run(ctx context.Context, cfg config.Config, store loader.Store, opts Options, logger *log.Logger) (Summary, error) {
	runLogger, logf := newRunLogger(logger)

	jobs, err := manifest.ReadFile(opts.ManifestPath)
	if err != nil {
		return Summary{}, err
	}

	ld := loader.New(store, cfg.ProjectID, runLogger)

	start := time.Now()
	logf("load start: manifest=%s jobs=%d project=%s workers=%d failFast=%t",
		opts.ManifestPath, len(jobs), cfg.ProjectID, opts.Workers, opts.FailFast)

	process := func(ctx context.Context, job manifest.Job) (loader.Outcome, error) {
		path := opts.resolvePath(job.SourceFile)
		rec, series, err := conetec.ParseFile(path, job.Name)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", job.SourceFile, err)
		}
		return ld.Load(ctx, rec, series, job.LocationType)
	}

	results, err := worker.ProcessAll(ctx, jobs, process, worker.Options{
		Workers:  opts.Workers,
		FailFast: opts.FailFast,
	})
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, res := range results {
		if res.Err != nil {
			sum.Failed++
			logf("job id=%s failed: %v", res.Input.Name, res.Err)
			continue
		}
		switch res.Output {
		case loader.OutcomeSkipped:
			sum.Skipped++
		case loader.OutcomeReloaded:
			sum.Reloaded++
		case loader.OutcomeLoaded:
			sum.Loaded++
		default:
			sum.Failed++
		}
		logf("job id=%s outcome=%s", res.Input.Name, res.Output)
	}

	logf("load done in %s: %s", time.Since(start).Round(time.Millisecond), sum)
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d of %d jobs failed", sum.Failed, len(jobs))
	}
	return sum, nil
}

// CheckSummary tallies a parse-only pass.
type CheckSummary struct {
	OK     int
	Failed int
}

// Check parses every manifest job without touching the remote service. Used
// to vet a delivery of exports before a load run.
func Check(ctx context.Context, opts Options, logger *log.Logger) (CheckSummary, error) {
	_, logf := newRunLogger(logger)

	jobs, err := manifest.ReadFile(opts.ManifestPath)
	if err != nil {
		return CheckSummary{}, err
	}
	logf("check start: manifest=%s jobs=%d", opts.ManifestPath, len(jobs))

	process := func(_ context.Context, job manifest.Job) (int, error) {
		_, series, err := conetec.ParseFile(opts.resolvePath(job.SourceFile), job.Name)
		if err != nil {
			return 0, err
		}
		return series.Len(), nil
	}

	results, err := worker.ProcessAll(ctx, jobs, process, worker.Options{Workers: opts.Workers, FailFast: opts.FailFast})
	if err != nil {
		return CheckSummary{}, err
	}

	var sum CheckSummary
	for _, res := range results {
		if res.Err != nil {
			sum.Failed++
			logf("job id=%s invalid: %v", res.Input.Name, res.Err)
			continue
		}
		sum.OK++
		logf("job id=%s ok: rows=%d", res.Input.Name, res.Output)
	}

	logf("check done: ok=%d failed=%d", sum.OK, sum.Failed)
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d of %d files failed validation", sum.Failed, len(jobs))
	}
	return sum, nil
}
