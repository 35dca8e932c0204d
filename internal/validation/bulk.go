package validation

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ItemType distinguishes specs from changes in bulk runs.
type ItemType string

const (
	ItemSpec   ItemType = "spec"
	ItemChange ItemType = "change"
)

// Item is one unit of a bulk validation run.
type Item struct {
	ID   string
	Type ItemType
	Run  func(ctx context.Context) (Report, error)
}

// ItemResult pairs an item with its report.
type ItemResult struct {
	ID     string   `json:"id"`
	Type   ItemType `json:"type"`
	Report Report   `json:"report"`
	Err    string   `json:"error,omitempty"`
}

// Valid reports whether the item passed.
func (r ItemResult) Valid() bool {
	return r.Err == "" && r.Report.Valid
}

// RunAll validates items with at most concurrency workers. Results are
// sorted by type then ID. A failing item does not stop the others; only
// context cancellation aborts the run.
func RunAll(ctx context.Context, items []Item, concurrency int) ([]ItemResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]ItemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := ItemResult{ID: item.ID, Type: item.Type}
			rep, err := item.Run(gctx)
			if err != nil {
				res.Err = err.Error()
			}
			res.Report = rep
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(a, b int) bool {
		if results[a].Type != results[b].Type {
			return results[a].Type < results[b].Type
		}
		return results[a].ID < results[b].ID
	})
	return results, nil
}

// Totals counts passed and failed results.
func Totals(results []ItemResult) (passed, failed int) {
	for _, r := range results {
		if r.Valid() {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}
