package callpath

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Sep joins call-site tokens into a path. It is reserved: no token or
	// display name may contain it.
	Sep = "@"

	// FieldSep joins the fields of a raw call-site token.
	FieldSep = "#"

	// Total is the synthetic root segment bracketing a profiling session.
	Total = "$total"

	// Parent is the synthetic leaf segment carrying a node's exclusive time.
	Parent = "$parent"
)

type (
	// Token is the raw identity of one call site: where the function is
	// defined and which instance it ran on. Instance is 0 for free
	// functions. It is only unique within one process and one run.
	Token struct {
		File     string
		Line     int
		Instance uint64
		Function string
	}
)

func (t Token) String() string {
	return fmt.Sprintf("%s#%d#%d#%s", t.File, t.Line, t.Instance, t.Function)
}

// ParseToken parses the raw form produced by Token.String.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, FieldSep)
	if len(parts) != 4 {
		return Token{}, fmt.Errorf("callpath: malformed token %q: expected 4 fields, got %d", s, len(parts))
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil {
		return Token{}, fmt.Errorf("callpath: malformed token %q: %w", s, err)
	}
	instance, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("callpath: malformed token %q: %w", s, err)
	}
	return Token{
		File:     parts[0],
		Line:     line,
		Instance: instance,
		Function: parts[3],
	}, nil
}

func Join(segments []string) string {
	return strings.Join(segments, Sep)
}

func Split(path string) []string {
	return strings.Split(path, Sep)
}

// Last returns the trailing segment of a path.
func Last(path string) string {
	if i := strings.LastIndex(path, Sep); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Cut splits a path into its parent path and trailing segment. A
// single-segment path is its own parent, which makes the root its own
// parent when computing percentages.
func Cut(path string) (parent, last string) {
	if i := strings.LastIndex(path, Sep); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, path
}

// Decorate appends suffix to every segment of path. It is used by the
// merge engine to keep per-process subtrees disjoint; suffix includes
// its leading dot, e.g. ".0".
func Decorate(path, suffix string) string {
	if suffix == "" {
		return path
	}
	segments := Split(path)
	for i, s := range segments {
		segments[i] = s + suffix
	}
	return Join(segments)
}

// Clean replaces the path separator in a display segment. Qualified
// names and pathnames pass through here before they may become path
// segments of a raw trace record. Display segments keep "#" and spaces,
// only Sep would corrupt the path structure.
func Clean(s string) string {
	return strings.ReplaceAll(s, Sep, "_")
}
