package nodetree

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
)

func TestTreeUpsert(t *testing.T) {
	tr := NewTree()

	a := tr.Upsert("$total@A")
	a.Time, a.Count = 2.0, 1

	again := tr.Upsert("$total@A")
	if again != a {
		t.Fatal("upserting an existing path should return the existing node")
	}
	again.Time += 0.5
	again.Count++

	if a.Time != 2.5 || a.Count != 2 {
		t.Fatalf("wanted accumulated time 2.5 count 2, got: %v %v", a.Time, a.Count)
	}
	if a.ShortName != "A" {
		t.Fatalf("wanted short name A, got: %v", a.ShortName)
	}

	root := tr.Upsert("$total")
	if root.ShortName != "$total" {
		t.Fatalf("wanted short name $total, got: %v", root.ShortName)
	}
}

func TestTreeOrder(t *testing.T) {
	tr := NewTree()
	for _, path := range []string{"$total@B", "$total", "$total@A"} {
		tr.Upsert(path)
	}

	insertion := make([]string, 0, tr.Len())
	for _, n := range tr.Nodes() {
		insertion = append(insertion, n.Name)
	}
	wantInsertion := []string{"$total@B", "$total", "$total@A"}
	for i := range wantInsertion {
		if insertion[i] != wantInsertion[i] {
			t.Fatalf("wanted insertion order %v, got: %v", wantInsertion, insertion)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(1, 4); got != 0.25 {
		t.Fatalf("wanted 0.25, got: %v", got)
	}
	if got := Ratio(1, 0); !got.IsUndefined() {
		t.Fatalf("wanted an undefined percentage, got: %v", got)
	}
	if got := Ratio(0, 0); !got.IsUndefined() {
		t.Fatalf("wanted an undefined percentage, got: %v", got)
	}
}

func TestPercentJSON(t *testing.T) {
	tests := []struct {
		name string
		pct  Percent
		want string
	}{
		{"defined", Percent(0.5), "0.5"},
		{"whole", Percent(1), "1"},
		{"undefined", Undefined(), "null"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := json.Marshal(test.pct)
			if err != nil {
				t.Fatalf("we should be able to marshal the percentage: %v", err)
			}
			if string(b) != test.want {
				t.Fatalf("wanted: %v, got: %v", test.want, string(b))
			}
			var back Percent
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("we should be able to unmarshal the percentage: %v", err)
			}
			if test.pct.IsUndefined() {
				if !back.IsUndefined() {
					t.Fatalf("wanted an undefined percentage back, got: %v", back)
				}
			} else if back != test.pct {
				t.Fatalf("wanted: %v, got: %v", test.pct, back)
			}
		})
	}
}

func TestNodeJSONRoundTrip(t *testing.T) {
	n := Node{
		Name:        "$total@A@B",
		ShortName:   "B",
		Time:        1.25,
		Count:       3,
		TotTime:     1.25,
		TotCount:    3,
		PctTotal:    Percent(0.5),
		TotPctTotal: Percent(0.5),
		PctParent:   Undefined(),
		ChildTime:   99,
		Obj:         struct{}{},
	}
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("we should be able to marshal the node: %v", err)
	}

	var back Node
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("we should be able to unmarshal the node: %v", err)
	}
	if back.ChildTime != 0 || back.Obj != nil {
		t.Fatal("internal fields should not survive serialization")
	}
	if !back.PctParent.IsUndefined() {
		t.Fatalf("wanted an undefined parent percentage back, got: %v", back.PctParent)
	}
	if back.Name != n.Name || back.Time != n.Time || back.Count != n.Count {
		t.Fatalf("wanted: %+v, got: %+v", n, back)
	}
	if math.IsNaN(back.Time) {
		t.Fatal("a recorded time should never be NaN")
	}
}
