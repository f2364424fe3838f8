package erp

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BulkItem is the outcome of one element of a bulk operation.
type BulkItem struct {
	Index     int    `json:"index"`
	Success   bool   `json:"success"`
	Name      string `json:"name,omitempty"`
	Operation string `json:"operation,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind Kind   `json:"error_kind,omitempty"`
}

// BulkResult tallies a bulk operation. Results are in input order.
type BulkResult struct {
	TotalRequested int        `json:"total_requested"`
	SuccessCount   int        `json:"success_count"`
	ErrorCount     int        `json:"error_count"`
	Results        []BulkItem `json:"results"`
}

// BulkFunc processes element i. The returned item's Index and Success are set by Bulk.
type BulkFunc func(ctx context.Context, i int) (BulkItem, error)

// Bulk runs fn for each of n elements with at most concurrency in flight.
// A failing element never stops the others.
func Bulk(ctx context.Context, n, concurrency int, fn BulkFunc) BulkResult {
	if concurrency < 1 {
		concurrency = 1
	}
	items := make([]BulkItem, n)

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			item, err := fn(ctx, i)
			item.Index = i
			if err != nil {
				item.Success = false
				item.Error = err.Error()
				item.ErrorKind = KindOf(err)
			} else {
				item.Success = true
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	res := BulkResult{TotalRequested: n, Results: items}
	for _, it := range items {
		if it.Success {
			res.SuccessCount++
		} else {
			res.ErrorCount++
		}
	}
	return res
}

// Map renders the result as a JSON-compatible object with extra top-level fields.
func (r BulkResult) Map(extra map[string]any) map[string]any {
	results := make([]any, len(r.Results))
	for i, it := range r.Results {
		m := map[string]any{"index": it.Index, "success": it.Success}
		if it.Name != "" {
			m["name"] = it.Name
		}
		if it.Operation != "" {
			m["operation"] = it.Operation
		}
		if it.Error != "" {
			m["error"] = it.Error
			m["error_kind"] = string(it.ErrorKind)
		}
		results[i] = m
	}
	out := map[string]any{
		"total_requested": r.TotalRequested,
		"success_count":   r.SuccessCount,
		"error_count":     r.ErrorCount,
		"results":         results,
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
