package metrics

import (
	"sort"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/nodetree"
)

type (
	// Totals accumulates inclusive time and call counts per function,
	// across every call path the function appears under.
	Totals struct {
		buckets map[string]*nodetree.Node
	}

	// FunctionTotal is one flat report row.
	FunctionTotal struct {
		Name    string           `json:"name"`
		Count   int64            `json:"tot_count"`
		Time    float64          `json:"tot_time"`
		Percent nodetree.Percent `json:"pct_total"`
	}
)

func NewTotals() *Totals {
	return &Totals{buckets: make(map[string]*nodetree.Node)}
}

// Add accumulates one record into the named function's bucket.
func (t *Totals) Add(name string, count int64, secs float64) {
	bucket, ok := t.buckets[name]
	if !ok {
		bucket = &nodetree.Node{Name: name, ShortName: name}
		t.buckets[name] = bucket
	}
	bucket.TotTime += secs
	bucket.TotCount += count
}

func (t *Totals) Get(name string) (*nodetree.Node, bool) {
	bucket, ok := t.buckets[name]
	return bucket, ok
}

func (t *Totals) Len() int {
	return len(t.buckets)
}

// GrandTotalTime is the accumulated root time, the denominator of every
// percentage. It is zero when no root record was ever added.
func (t *Totals) GrandTotalTime() float64 {
	if bucket, ok := t.buckets[callpath.Total]; ok {
		return bucket.TotTime
	}
	return 0
}

// Rows flattens the buckets into report rows, sorted by total time
// ascending so the most expensive functions end up at the bottom of
// the printed table, with the name as tie break. Percentages are NaN
// when the root time is zero or missing.
func (t *Totals) Rows() []FunctionTotal {
	grand := t.GrandTotalTime()
	rows := make([]FunctionTotal, 0, len(t.buckets))
	for name, bucket := range t.buckets {
		rows = append(rows, FunctionTotal{
			Name:    name,
			Count:   bucket.TotCount,
			Time:    bucket.TotTime,
			Percent: nodetree.Ratio(bucket.TotTime*100, grand),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Time != rows[j].Time {
			return rows[i].Time < rows[j].Time
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}
