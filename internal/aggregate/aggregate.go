package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/errorutil"
	"github.com/gsoxley/OpenMDAO/internal/metrics"
	"github.com/gsoxley/OpenMDAO/internal/nodetree"
	"github.com/gsoxley/OpenMDAO/internal/rawtrace"
)

const readWorkers = 4

// Result holds the merged call tree and the function totals derived
// from one or more raw trace files.
type Result struct {
	Tree   *nodetree.Tree
	Totals *metrics.Totals
}

// Merge reads raw trace files and combines them into one call tree with
// function totals and percentage statistics. With more than one input,
// paths from files carrying an integer rank extension are decorated
// with that rank so per process subtrees stay disjoint in the merged
// tree. Inputs are read concurrently but accumulated in argument order,
// so merging the same files twice yields identical output.
func Merge(ctx context.Context, sources []rawtrace.Source) (*Result, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("aggregate: %w: no trace files given", errorutil.ErrNoResults)
	}
	traces, err := readSources(ctx, sources)
	if err != nil {
		return nil, err
	}

	tree := nodetree.NewTree()
	totals := metrics.NewTotals()
	decorate := len(sources) > 1
	for i, trace := range traces {
		suffix, ranked := rawtrace.RankSuffix(sources[i].Name())
		for _, record := range trace.Records {
			path := record.Path
			if decorate && ranked {
				path = callpath.Decorate(path, suffix)
			}
			node := tree.Upsert(path)
			node.Time += record.Time
			node.Count += record.Count

			// Markers are recognized on the undecorated segment.
			switch callpath.Last(record.Path) {
			case callpath.Parent:
				// Exclusive self rows never enter totals.
				node.SelfMarker = true
			case callpath.Total:
				node.RootMarker = true
				totals.Add(callpath.Total, record.Count, record.Time)
			default:
				totals.Add(callpath.Last(path), record.Count, record.Time)
			}
		}
	}

	if err := statistics(tree, totals); err != nil {
		return nil, err
	}
	return &Result{Tree: tree, Totals: totals}, nil
}

// readSources decodes every source through a small worker pool. Each
// worker writes to its own slot so the caller sees results in argument
// order.
func readSources(ctx context.Context, sources []rawtrace.Source) ([]*rawtrace.Trace, error) {
	traces := make([]*rawtrace.Trace, len(sources))
	errs := make([]error, len(sources))
	indexes := make(chan int)

	workers := readWorkers
	if len(sources) < workers {
		workers = len(sources)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				traces[i], errs[i] = readSource(ctx, sources[i])
			}
		}()
	}

feed:
	for i := range sources {
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("aggregate: reading %s: %w", sources[i].Name(), err)
		}
	}
	return traces, nil
}

func readSource(ctx context.Context, source rawtrace.Source) (*rawtrace.Trace, error) {
	rc, err := source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return rawtrace.Decode(rc)
}

// statistics resolves every node's totals and percentages against the
// merged tree. Percentages with a zero duration denominator resolve to
// the undefined sentinel instead of failing.
func statistics(tree *nodetree.Tree, totals *metrics.Totals) error {
	grand := totals.GrandTotalTime()
	for _, node := range tree.Nodes() {
		if node.SelfMarker {
			continue
		}
		key := callpath.Last(node.Name)
		if node.RootMarker {
			key = callpath.Total
		}
		bucket, ok := totals.Get(key)
		if !ok {
			return fmt.Errorf("aggregate: %w: %q missing from totals", errorutil.ErrDataIntegrity, node.Name)
		}
		parentPath, _ := callpath.Cut(node.Name)
		parent, ok := tree.Get(parentPath)
		if !ok {
			return fmt.Errorf("aggregate: %w: %q has no parent node", errorutil.ErrDataIntegrity, node.Name)
		}
		node.TotTime = bucket.TotTime
		node.TotCount = bucket.TotCount
		node.PctParent = nodetree.Ratio(node.Time, parent.Time)
		node.PctTotal = nodetree.Ratio(node.Time, grand)
		node.TotPctTotal = nodetree.Ratio(bucket.TotTime, grand)
	}

	// The undecorated root reports its own time as its total.
	if root, ok := tree.Get(callpath.Total); ok {
		root.TotTime = root.Time
	}

	// Partition layouts sum children into parents, so a parent holding
	// an exclusive self child hands its whole time to its children.
	for _, node := range tree.Nodes() {
		if !node.SelfMarker {
			continue
		}
		parentPath, _ := callpath.Cut(node.Name)
		parent, ok := tree.Get(parentPath)
		if !ok {
			return fmt.Errorf("aggregate: %w: %q has no parent node", errorutil.ErrDataIntegrity, node.Name)
		}
		parent.Time = 0
	}
	return nil
}
