package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one file in a batch.
type Job struct {
	Path    string
	Request Request
}

// BatchResult pairs a job with its outcome. Err is set when that file alone
// could not be analysed.
type BatchResult struct {
	Job    Job
	Result *Result
	Err    error
}

// AnalyzeAll analyses jobs concurrently, at most the configured number of
// workers at a time. Results keep the order of jobs. Per-file failures are
// reported in the results; the returned error is only set when ctx is
// cancelled.
func (a *Analyzer) AnalyzeAll(ctx context.Context, jobs []Job) ([]BatchResult, error) {
	out := make([]BatchResult, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.GetWorkers())

	for i, job := range jobs {
		out[i].Job = job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := a.AnalyzeFile(ctx, job.Path, job.Request)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			out[i].Result, out[i].Err = res, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}
