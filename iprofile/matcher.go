package iprofile

import (
	"path"
	"reflect"
)

// Matcher decides which invocations get traced. Implementations are
// consulted on the host's hot path and must not allocate per call.
type Matcher interface {
	Match(function string, owner any) bool
}

// MatchAll traces every instrumented invocation.
func MatchAll() Matcher {
	return RuleSet{{Pattern: "*"}}
}

type (
	// Rule pairs a function name glob with an optional owner matcher.
	// A nil Owner accepts any owner, including none.
	Rule struct {
		Pattern string
		Owner   Matcher
	}

	// RuleSet matches when any rule matches. It mirrors the method
	// registry shape of configuration like {"solve_*": solver types}.
	RuleSet []Rule
)

func (rs RuleSet) Match(function string, owner any) bool {
	for _, rule := range rs {
		if rule.Pattern != "*" {
			// Malformed globs match nothing.
			if ok, err := path.Match(rule.Pattern, function); err != nil || !ok {
				continue
			}
		}
		if rule.Owner == nil || rule.Owner.Match(function, owner) {
			return true
		}
	}
	return false
}

// NameMatcher matches when the function name matches any glob.
type NameMatcher []string

func (m NameMatcher) Match(function string, _ any) bool {
	for _, pattern := range m {
		if ok, err := path.Match(pattern, function); err == nil && ok {
			return true
		}
	}
	return false
}

// TypeMatcher matches owners by dynamic type or interface membership.
type TypeMatcher struct {
	types  map[reflect.Type]struct{}
	ifaces []reflect.Type
}

// NewTypeMatcher registers owner types from prototype values. Pass a
// value of the owner type itself, or a nil interface pointer to match
// every implementation:
//
//	NewTypeMatcher(&Solver{}, (*Stepper)(nil))
func NewTypeMatcher(prototypes ...any) TypeMatcher {
	m := TypeMatcher{types: make(map[reflect.Type]struct{})}
	for _, proto := range prototypes {
		t := reflect.TypeOf(proto)
		if t == nil {
			continue
		}
		if t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
			m.ifaces = append(m.ifaces, t.Elem())
			continue
		}
		m.types[t] = struct{}{}
	}
	return m
}

func (m TypeMatcher) Match(_ string, owner any) bool {
	if owner == nil {
		return false
	}
	t := reflect.TypeOf(owner)
	if _, ok := m.types[t]; ok {
		return true
	}
	for _, iface := range m.ifaces {
		if t.Implements(iface) {
			return true
		}
	}
	return false
}
