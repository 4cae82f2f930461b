package iprofile

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gsoxley/OpenMDAO/internal/callpath"
	"github.com/gsoxley/OpenMDAO/internal/nodetree"
	"github.com/gsoxley/OpenMDAO/internal/qualname"
)

// ErrSessionState is the base error for profiling contract violations:
// starting an active session, leaving a call that is not the top of
// the stack, or recording on a poisoned session.
var ErrSessionState = errors.New("iprofile: session state error")

// Pathnamer is implemented by owners carrying a hierarchical instance
// name. Such owners are reported as pathname.Class.Method instead of
// the Class#ordinal form.
type Pathnamer interface {
	Pathname() string
}

type (
	// Profiler owns everything shared between execution contexts: the
	// matcher, the name resolver, the per owner identity registry and
	// the run identity. Create one per process, one Session per
	// goroutine, and Close once every session has quiesced.
	Profiler struct {
		// Resolver qualifies call sites at finalization. It defaults
		// to the source parsing resolver and may be replaced before
		// Close by hosts with their own symbol information.
		Resolver qualname.Resolver

		config  Config
		matcher Matcher
		runID   uuid.UUID

		mu        sync.Mutex
		instances map[any]uint64
		sessions  []*Session
	}

	// Session tracks one execution context. It owns its call stack and
	// node map exclusively and must not be shared across goroutines.
	Session struct {
		profiler *Profiler

		tree   *nodetree.Tree
		stack  []frame
		start  time.Time
		total  time.Duration
		active bool
		err    error

		instances map[any]uint64
		sites     map[site]string
	}

	frame struct {
		token string
		owner any
		enter time.Time
	}

	site struct {
		pc uintptr
		id uint64
	}
)

func New(config Config, matcher Matcher) *Profiler {
	if matcher == nil {
		matcher = MatchAll()
	}
	return &Profiler{
		Resolver:  qualname.NewSourceResolver(),
		config:    config,
		matcher:   matcher,
		runID:     uuid.New(),
		instances: make(map[any]uint64),
	}
}

// RunID identifies this profiling run in object names and shipped
// notifications.
func (p *Profiler) RunID() string {
	return p.runID.String()
}

func (p *Profiler) NewSession() *Session {
	s := &Session{
		profiler:  p,
		tree:      nodetree.NewTree(),
		instances: make(map[any]uint64),
		sites:     make(map[site]string),
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s
}

// instanceID issues the run wide ordinal for an owner, shared across
// sessions so the same object keeps one identity everywhere.
func (p *Profiler) instanceID(owner any) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.instances[owner]; ok {
		return id
	}
	id := uint64(len(p.instances)) + 1
	p.instances[owner] = id
	return id
}

// Start begins a profiling interval, pushing the synthetic root onto
// the stack. Starting an already started session is an error.
func (s *Session) Start() error {
	if s.err != nil {
		return s.err
	}
	if s.active {
		return fmt.Errorf("%w: session already started", ErrSessionState)
	}
	s.active = true
	s.start = time.Now()
	s.stack = append(s.stack, frame{token: callpath.Total})
	root := s.tree.Upsert(callpath.Total)
	root.RootMarker = true
	return nil
}

// Stop ends the current interval, folding the elapsed wall clock time
// into the root node. Root time accumulates across start/stop cycles.
// Stopping an inactive session is a harmless no-op so shutdown paths
// stay idempotent.
func (s *Session) Stop() error {
	if s.err != nil {
		return s.err
	}
	if !s.active {
		return nil
	}
	top := s.stack[len(s.stack)-1]
	if top.token != callpath.Total {
		s.err = fmt.Errorf("%w: stop with %q still active", ErrSessionState, top.token)
		return s.err
	}
	s.stack = s.stack[:len(s.stack)-1]
	s.total += time.Since(s.start)
	root := s.tree.Upsert(callpath.Total)
	root.Time = s.total.Seconds()
	root.Count++
	s.active = false
	return nil
}

func (s *Session) Active() bool {
	return s.active
}

// Err reports the poisoning error, if any. A poisoned session records
// nothing further and fails finalization.
func (s *Session) Err() error {
	return s.err
}

// Enter records a matched invocation beginning. Callers must pair it
// with Leave in strictly nested order; Trace wraps the pair for defer
// use. Entering on an inactive or poisoned session records nothing.
func (s *Session) Enter(tok callpath.Token, owner any) {
	if s.err != nil || !s.active {
		return
	}
	s.push(tok.String(), owner)
}

// Leave records a matched invocation returning. The token must match
// the top of the stack; anything else poisons the session, since the
// stacks can no longer be trusted to line up with real control flow.
func (s *Session) Leave(tok callpath.Token) error {
	return s.pop(tok.String())
}

// Trace records one invocation of function on owner if the matcher
// approves it:
//
//	defer session.Trace(solver, "Solve")()
//
// The returned closure is inert for unmatched invocations. A mismatch
// on the return path poisons the session and surfaces through Err,
// Stop and Close.
func (s *Session) Trace(owner any, function string) func() {
	if s.err != nil || !s.active {
		return func() {}
	}
	if !s.profiler.matcher.Match(function, owner) {
		return func() {}
	}
	var pcs [1]uintptr
	if runtime.Callers(2, pcs[:]) == 0 {
		return func() {}
	}
	token := s.siteToken(pcs[0], owner, function)
	s.push(token, owner)
	return func() { _ = s.pop(token) }
}

func (s *Session) push(token string, owner any) {
	s.stack = append(s.stack, frame{token: token, owner: owner, enter: time.Now()})
}

func (s *Session) pop(token string) error {
	if s.err != nil {
		return s.err
	}
	if !s.active {
		s.err = fmt.Errorf("%w: leave %q on an inactive session", ErrSessionState, token)
		return s.err
	}
	top := s.stack[len(s.stack)-1]
	if top.token != token {
		s.err = fmt.Errorf("%w: leave %q does not match the active call %q", ErrSessionState, token, top.token)
		return s.err
	}

	// The path key includes the returning call itself.
	path := s.path()
	s.stack = s.stack[:len(s.stack)-1]

	node := s.tree.Upsert(path)
	node.Time += time.Since(top.enter).Seconds()
	node.Count++
	if node.Obj == nil {
		node.Obj = top.owner
	}
	return nil
}

func (s *Session) path() string {
	tokens := make([]string, len(s.stack))
	for i, f := range s.stack {
		tokens[i] = f.token
	}
	return strings.Join(tokens, callpath.Sep)
}

// siteToken formats the raw token for a call site, cached per
// (site, instance) so steady state tracing does not format strings.
func (s *Session) siteToken(pc uintptr, owner any, function string) string {
	id := s.instanceOf(owner)
	key := site{pc: pc, id: id}
	if token, ok := s.sites[key]; ok {
		return token
	}
	file, line := sitePosition(pc)
	token := callpath.Token{File: file, Line: line, Instance: id, Function: function}.String()
	s.sites[key] = token
	return token
}

// instanceOf maps an owner to its run wide ordinal through a session
// local cache, keeping the profiler mutex off the steady state path.
// Free functions and non comparable owners share instance 0.
func (s *Session) instanceOf(owner any) uint64 {
	if owner == nil || !reflect.TypeOf(owner).Comparable() {
		return 0
	}
	if id, ok := s.instances[owner]; ok {
		return id
	}
	id := s.profiler.instanceID(owner)
	s.instances[owner] = id
	return id
}

// sitePosition reports where the function enclosing pc is declared.
// For inlined frames without entry information it falls back to the
// call site line, which the resolver still maps by body span.
func sitePosition(pc uintptr) (string, int) {
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.Func != nil {
		return f.Func.FileLine(f.Entry)
	}
	return f.File, f.Line
}
