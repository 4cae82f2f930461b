package qualname

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"sync"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/errorutil"
)

type (
	// Qualified identifies the declaration found at a call site. Class
	// is the receiver base type and is empty for free functions; File
	// is the wrapped source base name and is empty for methods.
	Qualified struct {
		File  string
		Class string
		Func  string
	}

	Resolver interface {
		Qualify(file string, line int) (Qualified, error)
	}
)

// SourceResolver qualifies call sites by parsing their source file and
// indexing every function declaration. Lookups hit the declaration
// line first and fall back to body spans, since an instrumented call
// site may report a line inside the function rather than its entry.
// Each file is parsed at most once. Safe for concurrent use.
type SourceResolver struct {
	mu    sync.Mutex
	files map[string]*fileIndex
}

type (
	fileIndex struct {
		byLine map[int]Qualified
		spans  []span
	}

	span struct {
		start, end int
		q          Qualified
	}
)

func NewSourceResolver() *SourceResolver {
	return &SourceResolver{files: make(map[string]*fileIndex)}
}

func (r *SourceResolver) Qualify(file string, line int) (Qualified, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, ok := r.files[file]
	if !ok {
		var err error
		index, err = indexFile(file)
		if err != nil {
			return Qualified{}, err
		}
		r.files[file] = index
	}

	if q, ok := index.byLine[line]; ok {
		return q, nil
	}
	for _, s := range index.spans {
		if s.start <= line && line <= s.end {
			return s.q, nil
		}
	}
	return Qualified{}, fmt.Errorf("qualname: %w: no function declared at %s:%d", errorutil.ErrDataIntegrity, file, line)
}

func indexFile(file string) (*fileIndex, error) {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, file, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("qualname: parse %s: %w", file, err)
	}

	index := &fileIndex{byLine: make(map[int]Qualified)}
	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		q := Qualified{Func: fn.Name.Name}
		if class := receiverName(fn); class != "" {
			q.Class = class
		} else {
			q.File = "<" + filepath.Base(file) + ">"
		}
		index.byLine[fset.Position(fn.Pos()).Line] = q
		index.spans = append(index.spans, span{
			start: fset.Position(fn.Pos()).Line,
			end:   fset.Position(fn.End()).Line,
			q:     q,
		})
	}
	return index, nil
}

// receiverName returns the base type name of a method receiver,
// unwrapping pointers and type parameters, or "" for free functions.
func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	expr := fn.Recv.List[0].Type
	for {
		switch t := expr.(type) {
		case *ast.Ident:
			return t.Name
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		default:
			return ""
		}
	}
}

// Namer assembles the display form of call site tokens, issuing dense
// per class ordinals in first seen order so instance numbers stay
// stable across runs of the same program. Not safe for concurrent use;
// finalization drives it from a single goroutine.
type Namer struct {
	resolver Resolver
	ordinals map[ordinalKey]map[uint64]int
}

type ordinalKey struct {
	file  string
	class string
}

func NewNamer(resolver Resolver) *Namer {
	return &Namer{
		resolver: resolver,
		ordinals: make(map[ordinalKey]map[uint64]int),
	}
}

// Name renders one call site token. Owners exposing a pathname get the
// dotted instance form, other methods the class#ordinal form and free
// functions the file form.
func (n *Namer) Name(tok callpath.Token, pathname string, hasPathname bool) (string, error) {
	q, err := n.resolver.Qualify(tok.File, tok.Line)
	if err != nil {
		return "", err
	}

	key := ordinalKey{file: q.File, class: q.Class}
	idents, ok := n.ordinals[key]
	if !ok {
		idents = make(map[uint64]int)
		n.ordinals[key] = idents
	}
	ord, ok := idents[tok.Instance]
	if !ok {
		ord = len(idents)
		idents[tok.Instance] = ord
	}

	switch {
	case q.Class == "":
		return q.File + "." + q.Func, nil
	case hasPathname:
		return pathname + "." + q.Class + "." + q.Func, nil
	default:
		return fmt.Sprintf("%s#%d.%s", q.Class, ord, q.Func), nil
	}
}
