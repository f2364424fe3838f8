package erp

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestBulk_TalliesInOrder(t *testing.T) {
	res := Bulk(context.Background(), 5, 3, func(ctx context.Context, i int) (BulkItem, error) {
		if i%2 == 1 {
			return BulkItem{Name: fmt.Sprintf("DOC-%d", i)}, &Error{Kind: KindValidation, Message: "bad row"}
		}
		return BulkItem{Name: fmt.Sprintf("DOC-%d", i), Operation: "create"}, nil
	})

	if res.TotalRequested != 5 || res.SuccessCount != 3 || res.ErrorCount != 2 {
		t.Fatalf("unexpected tallies: %+v", res)
	}
	for i, it := range res.Results {
		if it.Index != i {
			t.Errorf("result %d has index %d", i, it.Index)
		}
		if it.Name != fmt.Sprintf("DOC-%d", i) {
			t.Errorf("result %d has name %q", i, it.Name)
		}
	}
	if res.Results[1].Success || res.Results[1].ErrorKind != KindValidation {
		t.Errorf("expected item 1 to fail with validation, got %+v", res.Results[1])
	}
}

func TestBulk_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	Bulk(context.Background(), 20, 2, func(ctx context.Context, i int) (BulkItem, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		inFlight.Add(-1)
		return BulkItem{}, nil
	})
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 in flight, saw %d", peak.Load())
	}
}

func TestBulk_Empty(t *testing.T) {
	res := Bulk(context.Background(), 0, 4, nil)
	if res.TotalRequested != 0 || len(res.Results) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	m := res.Map(map[string]any{"doctype": "Item"})
	if m["doctype"] != "Item" || m["success_count"] != 0 {
		t.Errorf("unexpected map %v", m)
	}
}
