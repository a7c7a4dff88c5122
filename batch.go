package connman

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// BatchRequest describes one logical request within a batch.
type BatchRequest struct {
	Method  string
	URL     string
	Options *RequestOptions
}

// BatchResult is the outcome of one batch item. Exactly one of Response and
// Err is meaningful; for terminal HTTP failures both may be set, matching
// Dispatch.
type BatchResult struct {
	Response *http.Response
	Err      error
}

// BatchOptions controls batch execution. MaxWorkers bounds parallelism
// (default 5). With ReturnExceptions, per-item failures are captured in the
// result slice and the whole batch always runs to completion; without it, the
// first failure cancels outstanding work and is returned.
type BatchOptions struct {
	MaxWorkers       int
	ReturnExceptions bool
}

// Batch fans the resilience pipeline out over several logical requests with
// bounded parallelism. Results are positionally ordered to match the input
// regardless of completion order. Each item runs the same pipeline as
// Dispatch, so per-destination limiter and breaker state applies to batch
// traffic exactly as to single calls.
func (c *Client) Batch(ctx context.Context, requests []BatchRequest, opts *BatchOptions) ([]BatchResult, error) {
	if opts == nil {
		opts = &BatchOptions{}
	}
	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 5
	}

	results := make([]BatchResult, len(requests))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for i, request := range requests {
		i, request := i, request
		group.Go(func() error {
			resp, err := c.Dispatch(groupCtx, request.Method, request.URL, request.Options)
			results[i] = BatchResult{Response: resp, Err: err}
			if err != nil && !opts.ReturnExceptions {
				return err
			}
			return nil
		})
	}

	err := group.Wait()

	mode := "fail_fast"
	if opts.ReturnExceptions {
		mode = "collect"
	}
	succeeded, failed := 0, 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		} else if result.Response != nil {
			succeeded++
		}
	}
	c.metrics.RecordBatch(mode, succeeded, failed)

	if err != nil && !opts.ReturnExceptions {
		return results, err
	}
	return results, nil
}
