package iprofile

import "testing"

type (
	gear    struct{}
	motor   struct{}
	Stepper interface{ Step() }
)

func (motor) Step() {}

func TestMatchAll(t *testing.T) {
	m := MatchAll()
	if !m.Match("anything", nil) {
		t.Fatal("MatchAll should match free functions")
	}
	if !m.Match("Solve", gear{}) {
		t.Fatal("MatchAll should match any owner")
	}
}

func TestRuleSet(t *testing.T) {
	rules := RuleSet{
		{Pattern: "Solve*"},
		{Pattern: "Step", Owner: NewTypeMatcher(motor{})},
		{Pattern: "[malformed"},
	}

	tests := []struct {
		function string
		owner    any
		want     bool
	}{
		{"SolveNonlinear", nil, true},
		{"Solve", gear{}, true},
		{"Step", motor{}, true},
		{"Step", gear{}, false},
		{"Descend", nil, false},
		{"[malformed", nil, false},
	}
	for _, test := range tests {
		if got := rules.Match(test.function, test.owner); got != test.want {
			t.Errorf("Match(%q, %T) = %t, want %t", test.function, test.owner, got, test.want)
		}
	}
}

func TestNameMatcher(t *testing.T) {
	m := NameMatcher{"Solve", "Apply*"}
	tests := []struct {
		function string
		want     bool
	}{
		{"Solve", true},
		{"ApplyNonlinear", true},
		{"Step", false},
	}
	for _, test := range tests {
		if got := m.Match(test.function, nil); got != test.want {
			t.Errorf("Match(%q) = %t, want %t", test.function, got, test.want)
		}
	}
}

func TestTypeMatcher(t *testing.T) {
	m := NewTypeMatcher(gear{}, (*Stepper)(nil))

	tests := []struct {
		name  string
		owner any
		want  bool
	}{
		{"registered type", gear{}, true},
		{"pointer to registered type", &gear{}, false},
		{"interface implementation", motor{}, true},
		{"unrelated type", 42, false},
		{"no owner", nil, false},
	}
	for _, test := range tests {
		if got := m.Match("Solve", test.owner); got != test.want {
			t.Errorf("%s: Match(%T) = %t, want %t", test.name, test.owner, got, test.want)
		}
	}
}
