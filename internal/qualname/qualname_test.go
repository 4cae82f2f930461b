package qualname

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/errorutil"
	"github.com/gsoxley/OpenMDAO/internal/testutil"
)

const source = `package things

type Widget struct{}

func (w *Widget) Spin() {}

func (w Widget) Stop() {}

type Gear[T any] struct{}

func (g *Gear[T]) Mesh() {}

func Standalone() {}
`

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "things.go")
	if err := os.WriteFile(path, []byte(source), 0644); err != nil {
		t.Fatalf("we should be able to write the source file: %v", err)
	}
	return path
}

func TestQualify(t *testing.T) {
	path := writeSource(t)
	r := NewSourceResolver()

	tests := []struct {
		name string
		line int
		want Qualified
	}{
		{"pointer receiver", 5, Qualified{Class: "Widget", Func: "Spin"}},
		{"value receiver", 7, Qualified{Class: "Widget", Func: "Stop"}},
		{"generic receiver", 11, Qualified{Class: "Gear", Func: "Mesh"}},
		{"free function", 13, Qualified{File: "<things.go>", Func: "Standalone"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			q, err := r.Qualify(path, test.line)
			if err != nil {
				t.Fatalf("we should be able to qualify the call site: %v", err)
			}
			if diff := testutil.Diff(test.want, q); diff != "" {
				t.Fatalf("Result mismatch: got - want +\n%s", diff)
			}
		})
	}
}

func TestQualifyUnknownLine(t *testing.T) {
	path := writeSource(t)
	r := NewSourceResolver()

	_, err := r.Qualify(path, 2)
	if err == nil {
		t.Fatal("we should not be able to qualify a line with no declaration")
	}
	if !errors.Is(err, errorutil.ErrDataIntegrity) {
		t.Fatalf("wanted a data integrity error, got: %v", err)
	}
}

func TestQualifySpanFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.go")
	src := `package things

type Pump struct{}

func (p *Pump) Run() {
	_ = p
	_ = p
}
`
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("we should be able to write the source file: %v", err)
	}
	r := NewSourceResolver()

	// Line 6 is inside the body, not the declaration line.
	q, err := r.Qualify(path, 6)
	if err != nil {
		t.Fatalf("we should be able to qualify a body line: %v", err)
	}
	want := Qualified{Class: "Pump", Func: "Run"}
	if diff := testutil.Diff(want, q); diff != "" {
		t.Fatalf("Result mismatch: got - want +\n%s", diff)
	}
}

func TestQualifyMemoizes(t *testing.T) {
	path := writeSource(t)
	r := NewSourceResolver()

	if _, err := r.Qualify(path, 5); err != nil {
		t.Fatalf("we should be able to qualify the call site: %v", err)
	}

	// A second lookup must come from the index, not the file.
	if err := os.Remove(path); err != nil {
		t.Fatalf("we should be able to remove the source file: %v", err)
	}
	if _, err := r.Qualify(path, 7); err != nil {
		t.Fatalf("we should be able to qualify from the cached index: %v", err)
	}
}

func TestNamerForms(t *testing.T) {
	path := writeSource(t)
	n := NewNamer(NewSourceResolver())

	spin := func(instance uint64) callpath.Token {
		return callpath.Token{File: path, Line: 5, Instance: instance, Function: "Spin"}
	}

	got, err := n.Name(spin(4242), "sub1.comp1", true)
	if err != nil {
		t.Fatalf("we should be able to name the call site: %v", err)
	}
	if want := "sub1.comp1.Widget.Spin"; got != want {
		t.Fatalf("wanted: %v, got: %v", want, got)
	}

	// Ordinals are dense and issued in first seen order, independent
	// of the raw instance identity.
	got, err = n.Name(spin(99000), "", false)
	if err != nil {
		t.Fatalf("we should be able to name the call site: %v", err)
	}
	if want := "Widget#1.Spin"; got != want {
		t.Fatalf("wanted: %v, got: %v", want, got)
	}
	got, err = n.Name(spin(7), "", false)
	if err != nil {
		t.Fatalf("we should be able to name the call site: %v", err)
	}
	if want := "Widget#2.Spin"; got != want {
		t.Fatalf("wanted: %v, got: %v", want, got)
	}

	// Same instance keeps its ordinal.
	got, err = n.Name(spin(99000), "", false)
	if err != nil {
		t.Fatalf("we should be able to name the call site: %v", err)
	}
	if want := "Widget#1.Spin"; got != want {
		t.Fatalf("wanted: %v, got: %v", want, got)
	}

	free := callpath.Token{File: path, Line: 13, Instance: 0, Function: "Standalone"}
	got, err = n.Name(free, "", false)
	if err != nil {
		t.Fatalf("we should be able to name the call site: %v", err)
	}
	if want := "<things.go>.Standalone"; got != want {
		t.Fatalf("wanted: %v, got: %v", want, got)
	}
}
