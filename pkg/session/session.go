// Package session maintains the incremental analysis state across edits: it
// tracks per-file check state, re-checks changed files after a debounce
// interval, cuts off downstream invalidation when a module's interface is
// unchanged, and publishes results through immutable snapshots that queries
// read without blocking on running checks.
package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lunatype/luna/pkg/check"
	"github.com/lunatype/luna/pkg/syntax"
	"github.com/lunatype/luna/pkg/workspace"
)

// State is a file's position in the incremental lifecycle.
type State int

const (
	// Unchecked files have never been analyzed.
	Unchecked State = iota
	// Checking files have an analysis in flight.
	Checking
	// Checked files have current results in the snapshot.
	Checked
	// Stale files have results in the snapshot that predate an edit or an
	// upstream interface change.
	Stale
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Checking:
		return "checking"
	case Checked:
		return "checked"
	case Stale:
		return "stale"
	default:
		return "state(?)"
	}
}

// Snapshot is one immutable generation of analysis results. Readers hold a
// snapshot for as long as they like; commits swap in a fresh one.
type Snapshot struct {
	Generation uint64
	envs       map[string]*check.Env
	chunks     map[string]*syntax.Chunk
}

// Env returns the checked environment for a file path.
func (s *Snapshot) Env(path string) (*check.Env, bool) {
	e, ok := s.envs[path]
	return e, ok
}

// Chunk returns the parsed tree for a file path. Files whose parse failed
// fatally have an Env but no Chunk.
func (s *Snapshot) Chunk(path string) (*syntax.Chunk, bool) {
	c, ok := s.chunks[path]
	return c, ok
}

// Paths lists the files present in the snapshot.
func (s *Snapshot) Paths() []string {
	out := make([]string, 0, len(s.envs))
	for p := range s.envs {
		out = append(out, p)
	}
	return out
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets how long edits are batched before a re-check starts.
func WithDebounce(d time.Duration) Option {
	return func(s *Session) { s.debounce = d }
}

// WithLogger sets the logger for session events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithWorkers bounds batch check concurrency.
func WithWorkers(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithOnCommit registers a hook invoked after every committed check with the
// file's path and the snapshot that now includes it. The hook runs on its
// own goroutine; it must not call back into mutating session methods
// synchronously with session teardown.
func WithOnCommit(fn func(path string, snap *Snapshot)) Option {
	return func(s *Session) { s.onCommit = fn }
}

// DefaultDebounce batches rapid edits before re-checking.
const DefaultDebounce = 200 * time.Millisecond

// Session owns the analysis state for one workspace.
type Session struct {
	ws       *workspace.Workspace
	logger   *slog.Logger
	debounce time.Duration
	workers  int
	onCommit func(path string, snap *Snapshot)

	snap atomic.Pointer[Snapshot]

	mu      sync.Mutex
	files   map[string]*fileEntry
	timers  map[string]*time.Timer
	blocked map[string]string // checking path -> dependency path it waits on
	closed  bool
	wg      sync.WaitGroup
}

type fileEntry struct {
	path        string
	overlay     []byte // editor buffer contents; nil means read from disk
	hasOverlay  bool
	state       State
	gen         uint64 // generation of the last committed result
	fingerprint string
	dependents  map[string]struct{}

	cancel   context.CancelFunc
	inflight chan struct{} // closed when the running check finishes
}

// New creates a session over the given workspace.
func New(ws *workspace.Workspace, opts ...Option) *Session {
	s := &Session{
		ws:       ws,
		logger:   slog.New(slog.DiscardHandler),
		debounce: DefaultDebounce,
		workers:  runtime.NumCPU(),
		files:    make(map[string]*fileEntry),
		timers:   make(map[string]*time.Timer),
		blocked:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&Snapshot{
		envs:   map[string]*check.Env{},
		chunks: map[string]*syntax.Chunk{},
	})
	return s
}

// Snapshot returns the current committed results.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Generation returns the current snapshot generation.
func (s *Session) Generation() uint64 { return s.snap.Load().Generation }

// FileState reports where path stands in the incremental lifecycle.
func (s *Session) FileState(path string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[s.canonical(path)]
	if !ok {
		return Unchecked
	}
	return e.state
}

// FileGeneration returns the generation at which path was last committed,
// or zero when it never was.
func (s *Session) FileGeneration(path string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[s.canonical(path)]
	if !ok {
		return 0
	}
	return e.gen
}

// NotifyChanged records new buffer contents for path and schedules a
// re-check after the debounce interval. An in-flight check of the file is
// cancelled; its results would describe text that no longer exists.
func (s *Session) NotifyChanged(path string, content []byte) {
	path = s.canonical(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e := s.entryLocked(path)
	e.overlay = content
	e.hasOverlay = true
	s.markStaleLocked(e)
	s.scheduleLocked(path)
	s.logger.Debug("file changed", "path", path, "bytes", len(content))
}

// NotifyClosed drops the editor buffer for path; subsequent checks read the
// file from disk again.
func (s *Session) NotifyClosed(path string) {
	path = s.canonical(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	e := s.entryLocked(path)
	e.overlay = nil
	e.hasOverlay = false
	s.markStaleLocked(e)
	s.scheduleLocked(path)
}

// Flush forces all pending debounced re-checks to run now and waits for
// them, including any downstream re-checks they trigger. Primarily for batch
// flows and tests; interactive use lets the debounce timers fire.
func (s *Session) Flush(ctx context.Context) error {
	for {
		s.mu.Lock()
		var pending []string
		for path, timer := range s.timers {
			timer.Stop()
			pending = append(pending, path)
		}
		for _, path := range pending {
			delete(s.timers, path)
		}
		s.mu.Unlock()

		if len(pending) == 0 {
			return nil
		}
		for _, path := range pending {
			if _, err := s.ensureChecked(ctx, path, nil); err != nil {
				if ctx.Err() != nil {
					return err
				}
				s.logger.Warn("flush check failed", "path", path, "error", err)
			}
		}
	}
}

// Close cancels all in-flight work and waits for it to drain. The session
// must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = map[string]*time.Timer{}
	for _, e := range s.files {
		if e.cancel != nil {
			e.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Session) canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (s *Session) entryLocked(path string) *fileEntry {
	e, ok := s.files[path]
	if !ok {
		e = &fileEntry{path: path, dependents: make(map[string]struct{})}
		s.files[path] = e
	}
	return e
}

func (s *Session) markStaleLocked(e *fileEntry) {
	if e.cancel != nil {
		e.cancel()
	}
	if e.state == Checked || e.state == Checking {
		e.state = Stale
	}
}

func (s *Session) scheduleLocked(path string) {
	if timer, ok := s.timers[path]; ok {
		timer.Reset(s.debounce)
		return
	}
	// Each expired debounce runs its re-check on the timer's goroutine; the
	// worker pool bounds batch runs only. One timer per path keeps this to at
	// most one re-check goroutine per edited file.
	s.timers[path] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.timers, path)
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		if _, err := s.ensureChecked(context.Background(), path, nil); err != nil {
			s.logger.Warn("scheduled check failed", "path", path, "error", err)
		}
	})
}

// ensureChecked returns a current environment for path, running a check if
// the committed one is missing or stale. chain lists the paths whose checks
// are on the current call stack, for require-cycle detection.
func (s *Session) ensureChecked(ctx context.Context, path string, chain []string) (*check.Env, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, errors.New("session closed")
		}
		e := s.entryLocked(path)
		if e.state == Checked {
			env, ok := s.snap.Load().Env(path)
			s.mu.Unlock()
			if ok {
				return env, nil
			}
			return nil, errors.Errorf("no committed result for %s", path)
		}
		if e.inflight != nil {
			if err := s.deadlockCheckLocked(path, chain); err != nil {
				s.mu.Unlock()
				return nil, err
			}
			waiter := ""
			if len(chain) > 0 {
				waiter = chain[len(chain)-1]
				s.blocked[waiter] = path
			}
			ch := e.inflight
			s.mu.Unlock()

			select {
			case <-ch:
			case <-ctx.Done():
			}
			s.mu.Lock()
			if waiter != "" {
				delete(s.blocked, waiter)
			}
			s.mu.Unlock()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		cctx, cancel := context.WithCancel(ctx)
		e.inflight = make(chan struct{})
		e.cancel = cancel
		e.state = Checking
		s.mu.Unlock()

		env, chunk, err := s.checkFile(cctx, path, append(chain, path))
		cancel()

		s.mu.Lock()
		close(e.inflight)
		e.inflight = nil
		e.cancel = nil
		if err != nil {
			e.state = Stale
			s.mu.Unlock()
			return nil, err
		}
		s.commitLocked(e, env, chunk)
		s.mu.Unlock()
		return env, nil
	}
}

// errCycle reports that waiting for a dependency would close a require
// cycle. The importer catches it and degrades the back edge to dynamic
// instead of failing the run.
var errCycle = errors.New("require cycle")

// deadlockCheckLocked refuses waits that would close a cycle across worker
// stacks: if the check we are about to wait on is itself (transitively)
// blocked on a path whose check is on our own stack, both stacks would wait
// forever.
func (s *Session) deadlockCheckLocked(target string, chain []string) error {
	cur := target
	for range s.blocked {
		next, ok := s.blocked[cur]
		if !ok {
			return nil
		}
		for _, p := range chain {
			if next == p {
				return errCycle
			}
		}
		cur = next
	}
	return nil
}

// checkFile parses and checks one file. The returned chunk is nil when the
// parse failed fatally; the env then carries only the fatal diagnostic.
func (s *Session) checkFile(ctx context.Context, path string, chain []string) (*check.Env, *syntax.Chunk, error) {
	src, err := s.loadSource(path)
	if err != nil {
		return nil, nil, err
	}

	chunk, err := syntax.Parse(path, src)
	if err != nil {
		var fatal *syntax.FatalError
		if errors.As(err, &fatal) {
			return check.NewFatalEnv(path, fatal), nil, nil
		}
		return nil, nil, err
	}

	env, err := check.Check(ctx, chunk, check.Options{
		Importer: s.importerFor(path, chain),
		Logger:   s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return env, chunk, nil
}

func (s *Session) loadSource(path string) ([]byte, error) {
	s.mu.Lock()
	e, ok := s.files[path]
	if ok && e.hasOverlay {
		src := e.overlay
		s.mu.Unlock()
		return src, nil
	}
	s.mu.Unlock()
	src, err := os.ReadFile(path)
	return src, errors.Wrapf(err, "reading %s", filepath.Base(path))
}

// importerFor builds the importer for one check run. Require cycles are
// checked as a mutually-recursive group: the back edge imports as dynamic so
// every member of the cycle still commits, and the fingerprint cascade then
// re-checks the members against each other's real interfaces until they
// stabilize.
func (s *Session) importerFor(fromFile string, chain []string) check.Importer {
	return check.ImporterFunc(func(ctx context.Context, name string) (*check.ModuleIface, error) {
		depPath, err := s.ws.Resolve(name, fromFile)
		if err != nil {
			return nil, err
		}
		for _, p := range chain {
			if p == depPath {
				s.logger.Debug("require cycle back edge", "from", fromFile, "to", depPath)
				return nil, nil
			}
		}
		env, err := s.ensureChecked(ctx, depPath, chain)
		if errors.Is(err, errCycle) {
			s.logger.Debug("require cycle across workers", "from", fromFile, "to", depPath)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if env.Export == nil {
			return nil, nil
		}
		return &check.ModuleIface{Arena: env.Arena, Export: env.Export}, nil
	})
}

// commitLocked publishes a finished check: it swaps in a new snapshot
// generation and, when the file's exported interface changed, marks every
// dependent stale and schedules its re-check. Dependents of an interface
// that did not change keep their results; that cutoff is what keeps edits
// from rippling through the whole workspace.
func (s *Session) commitLocked(e *fileEntry, env *check.Env, chunk *syntax.Chunk) {
	old := s.snap.Load()
	next := &Snapshot{
		Generation: old.Generation + 1,
		envs:       make(map[string]*check.Env, len(old.envs)+1),
		chunks:     make(map[string]*syntax.Chunk, len(old.chunks)+1),
	}
	for p, v := range old.envs {
		next.envs[p] = v
	}
	for p, v := range old.chunks {
		next.chunks[p] = v
	}
	next.envs[e.path] = env
	if chunk != nil {
		next.chunks[e.path] = chunk
	} else {
		delete(next.chunks, e.path)
	}

	// rebuild this file's outgoing dependency edges
	for _, name := range env.Requires {
		if depPath, err := s.ws.Resolve(name, e.path); err == nil {
			s.entryLocked(depPath).dependents[e.path] = struct{}{}
		}
	}

	fingerprint := env.Fingerprint()
	changed := fingerprint != e.fingerprint
	e.fingerprint = fingerprint
	// An edit that landed while this check ran has already marked the entry
	// stale and scheduled its re-check; the result is still published, but
	// the entry must stay stale until the re-check commits.
	if e.state == Checking {
		e.state = Checked
	}
	e.gen = next.Generation
	s.snap.Store(next)

	s.logger.Debug("committed", "path", e.path, "generation", next.Generation,
		"interfaceChanged", changed, "diagnostics", env.Report.Len())

	if s.onCommit != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.onCommit(e.path, next)
		}()
	}

	if changed {
		for depPath := range e.dependents {
			dep := s.entryLocked(depPath)
			if dep.state == Checked {
				dep.state = Stale
			}
			s.scheduleLocked(depPath)
		}
	}
}
