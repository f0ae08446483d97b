package fill

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novvoo/go-pdffill/pkg/fillerr"
	"github.com/novvoo/go-pdffill/pkg/render"
)

// BatchRequest fills one template once per record
type BatchRequest struct {
	Input   string
	Records []Values
	Pages   string
	Naming  Naming
	Backend *render.Backend
	// Workers bounds concurrent fills; 0 means GOMAXPROCS
	Workers int
	// Retry is applied to retryable failures; nil means no retry
	Retry *render.RetryPolicy
}

// BatchResult is the outcome of one record. Index is one-based.
type BatchResult struct {
	Index    int
	Output   string
	Digest   string
	Executed render.Backend
	Stats    Stats
	Err      error
}

// Batch fills every record into its own indexed output file. Each worker
// opens the template itself. A failed record is reported in its result and
// does not stop the others; only cancellation of ctx aborts the batch.
func (f *Filler) Batch(ctx context.Context, req BatchRequest) ([]BatchResult, error) {
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	retry := render.RetryPolicy{}
	if req.Retry != nil {
		retry = *req.Retry
	}

	// One timestamp for the whole batch
	naming := req.Naming
	if naming.Now == nil {
		start := time.Now()
		naming.Now = func() time.Time { return start }
	}

	results := make([]BatchResult, len(req.Records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, rec := range req.Records {
		i, rec := i, rec
		g.Go(func() error {
			res := &results[i]
			res.Index = i + 1
			res.Output = naming.Indexed(req.Input, i+1)

			var permanent error
			err := retry.Do(gctx, f.logger, "fill record", func() error {
				out, stats, err := f.Fill(gctx, Request{
					Input:   req.Input,
					Values:  rec,
					Pages:   req.Pages,
					Output:  res.Output,
					Backend: req.Backend,
				})
				res.Stats = stats
				if err != nil {
					if !fillerr.Retryable(err) {
						permanent = err
						return nil
					}
					return err
				}
				res.Digest = out.Digest
				res.Executed = out.Executed
				return nil
			})
			if err == nil {
				err = permanent
			}
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				res.Err = err
				f.logger.Error("record failed", "index", res.Index, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
