package nodetree

import (
	"math"
	"strconv"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
)

type (
	// Node is one entry of the call tree, keyed by its full call path.
	// Time and Count are what was recorded directly under this exact
	// path while TotTime and TotCount aggregate every path ending in
	// the same function regardless of ancestry.
	Node struct {
		Name        string  `json:"name"`
		ShortName   string  `json:"short_name"`
		Time        float64 `json:"time"`
		Count       int64   `json:"count"`
		TotTime     float64 `json:"tot_time"`
		TotCount    int64   `json:"tot_count"`
		PctTotal    Percent `json:"pct_total"`
		TotPctTotal Percent `json:"tot_pct_total"`
		PctParent   Percent `json:"pct_parent"`

		// ChildTime is the summed inclusive time of the direct
		// children. It only exists while building the visualization
		// tree and is never serialized.
		ChildTime float64 `json:"-"`

		// Obj is the instance owning the trailing call, kept so
		// finalization can ask it for a pathname. Never serialized.
		Obj any `json:"-"`

		// SelfMarker and RootMarker record whether the trailing
		// segment was $parent or $total before rank decoration.
		SelfMarker bool `json:"-"`
		RootMarker bool `json:"-"`
	}

	// Tree is a call tree keyed by path. Insertion order is preserved
	// so downstream passes stay deterministic for a given input.
	Tree struct {
		nodes map[string]*Node
		order []string
	}
)

func NewTree() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

// Upsert returns the node for path, creating it on first sight.
func (t *Tree) Upsert(path string) *Node {
	if n, ok := t.nodes[path]; ok {
		return n
	}
	n := &Node{
		Name:      path,
		ShortName: callpath.Last(path),
	}
	t.nodes[path] = n
	t.order = append(t.order, path)
	return n
}

func (t *Tree) Get(path string) (*Node, bool) {
	n, ok := t.nodes[path]
	return n, ok
}

func (t *Tree) Len() int {
	return len(t.nodes)
}

// Nodes returns the nodes in insertion order.
func (t *Tree) Nodes() []*Node {
	nodes := make([]*Node, 0, len(t.order))
	for _, path := range t.order {
		nodes = append(nodes, t.nodes[path])
	}
	return nodes
}

// Percent is a ratio of two durations. Dividing by a zero duration
// yields the undefined sentinel, which marshals to JSON null and
// renders as NA in reports; it is never an error.
type Percent float64

// Undefined is the sentinel for a percentage whose denominator was zero.
func Undefined() Percent {
	return Percent(math.NaN())
}

// Ratio computes num/den, or the undefined sentinel when den is zero.
func Ratio(num, den float64) Percent {
	if den == 0 {
		return Undefined()
	}
	return Percent(num / den)
}

func (p Percent) IsUndefined() bool {
	return math.IsNaN(float64(p))
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if p.IsUndefined() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(p), 'g', -1, 64), nil
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = Undefined()
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*p = Percent(f)
	return nil
}
