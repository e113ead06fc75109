// Package session implements C8: a single façade object wiring the
// scanner (C2), layout (C3), bounding volumes (C4), ray-picker (C5),
// change monitor (C6), reconciler (C7), history store (C11), and
// periodic scheduler (C13) behind the handful of operations a UI binds
// to. It also folds in C14: an optional expr-lang predicate layered on
// top of the mandatory substring search.
//
// The façade never renders anything itself; it hands the renderer
// small callbacks ("mark this node selected/highlighted/restored") so
// the renderer can keep its own per-instance color buffer in sync
// without the core knowing anything about GPU details.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/diskviz/treemap/internal/bounds"
	"github.com/diskviz/treemap/internal/colorscheme"
	"github.com/diskviz/treemap/internal/config"
	"github.com/diskviz/treemap/internal/history"
	"github.com/diskviz/treemap/internal/layout"
	"github.com/diskviz/treemap/internal/monitor"
	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/internal/picker"
	"github.com/diskviz/treemap/internal/reconcile"
	"github.com/diskviz/treemap/internal/scanner"
	"github.com/diskviz/treemap/internal/scheduler"
	"github.com/diskviz/treemap/pkg/geom"
	"github.com/diskviz/treemap/pkg/log"
	"github.com/diskviz/treemap/pkg/lrucache"
)

var logger = log.For("session")

// ScanFilter is the visibility filter scan() records for later
// queries: MinSize excludes smaller nodes from picking and search
// alike, while OnlyDirectories applies to picking only (Search takes
// its own file/directory flags). Neither removes nodes from the tree,
// so a filtered node's bytes still count toward its ancestors'
// rolled-up sizes.
type ScanFilter struct {
	MinSize         int64
	OnlyDirectories bool
}

func (f ScanFilter) pickerFilter() picker.Filter {
	return picker.Filter{MinSize: f.MinSize, OnlyDirectories: f.OnlyDirectories}
}

// Callbacks lets a renderer observe selection/highlight changes
// without the façade knowing anything about GPU buffers. Any field
// may be left nil.
type Callbacks struct {
	OnSelected      func(n *nodetree.Node)
	OnDeselected    func(n *nodetree.Node)
	OnHighlighted   func(n *nodetree.Node)
	OnUnhighlighted func(n *nodetree.Node)
}

// ScanHandle is the "future" scan() returns: a live progress readout
// plus a channel that closes when the scan (successfully, or via
// cancellation, or with an error) is done.
type ScanHandle struct {
	progress *scanner.Progress
	done     chan struct{}
	err      error
}

func (h *ScanHandle) Progress() scanner.Snapshot { return h.progress.Snapshot() }
func (h *ScanHandle) Done() <-chan struct{}      { return h.done }

// Err is only meaningful after Done() has closed.
func (h *ScanHandle) Err() error { return h.err }

// Session owns the current tree (or none), the active scan, the
// change monitor, the reconciler, the selection/highlight state, and
// the current visibility filter. The zero value is not usable;
// construct with New.
type Session struct {
	cfg    *config.Config
	colors colorscheme.ColorScheme
	hist   *history.Store // nil: history recording is skipped for this session

	callbacks Callbacks

	exprCache  *lrucache.Cache
	colorCache *lrucache.Cache

	mu           sync.Mutex
	root         *nodetree.Node
	rootPath     string
	filter       ScanFilter
	scanCancel   context.CancelFunc
	scanHandle   *ScanHandle
	mon          monitor.Monitor
	recon        *reconcile.Reconciler
	reconCancel  context.CancelFunc
	sched        *scheduler.Scheduler
	selected     *nodetree.Node
	highlighted  map[*nodetree.Node]struct{}
	stateVersion uint64
}

// New constructs a Session. hist may be nil, in which case scan
// completion is never recorded anywhere (per spec.md §7, a history
// failure never invalidates a scan, and a disabled store is just the
// degenerate case of that).
func New(cfg *config.Config, colors colorscheme.ColorScheme, hist *history.Store, callbacks Callbacks) *Session {
	return &Session{
		cfg:         cfg,
		colors:      colors,
		hist:        hist,
		callbacks:   callbacks,
		exprCache:   lrucache.New(1 << 20), // 1 MiB: compiled programs are small
		colorCache:  lrucache.New(1 << 20),
		highlighted: make(map[*nodetree.Node]struct{}),
	}
}

// Scan starts scanning root under filter. Only one scan may be active
// at a time; a previous one (if still running) is cancelled first.
func (s *Session) Scan(root string, filter ScanFilter) *ScanHandle {
	s.mu.Lock()
	s.cancelActiveScanLocked()

	ctx, cancel := context.WithCancel(context.Background())
	progress := &scanner.Progress{}
	handle := &ScanHandle{progress: progress, done: make(chan struct{})}

	s.scanCancel = cancel
	s.scanHandle = handle
	s.filter = filter
	s.mu.Unlock()

	go s.runScan(ctx, root, filter, progress, handle)
	return handle
}

func (s *Session) cancelActiveScanLocked() {
	if s.scanCancel != nil {
		s.scanCancel()
	}
	s.teardownLiveTreeLocked()
}

// teardownLiveTreeLocked stops the monitor/reconciler/scheduler bound
// to whatever tree is currently loaded. Caller must hold s.mu.
func (s *Session) teardownLiveTreeLocked() {
	if s.sched != nil {
		_ = s.sched.Shutdown(context.Background())
		s.sched = nil
	}
	if s.recon != nil {
		s.reconCancel()
		s.recon.Join()
		s.recon = nil
		s.reconCancel = nil
	}
	if s.mon.IsActive() {
		s.mon.Stop()
	}
}

func (s *Session) runScan(ctx context.Context, root string, filter ScanFilter, progress *scanner.Progress, handle *ScanHandle) {
	defer close(handle.done)

	started := time.Now()
	tree, err := scanner.Scan(ctx, root, progress, scanner.Options{Concurrency: s.cfg.Concurrency})

	s.mu.Lock()
	// A newer scan (or StopScan) may have already cancelled and torn
	// down before this one finished; in that case leave everything
	// alone — we are not the active scan anymore.
	if s.scanHandle != handle {
		s.mu.Unlock()
		return
	}

	outcome := "completed"
	if err != nil {
		handle.err = err
		if err == scanner.ErrCancelled {
			outcome = "cancelled"
		} else {
			outcome = "failed"
		}
		s.scanCancel = nil
		s.scanHandle = nil
		s.mu.Unlock()
		s.recordHistory(root, scanner.Snapshot{}, started, outcome)
		return
	}

	root2 := tree.Root()
	layout.Tree(root2, layout.Options{
		RootWidth:    s.cfg.RootWidth,
		RootDepth:    s.cfg.RootDepth,
		BlockHeight:  s.cfg.BlockHeight,
		PaddingRatio: s.cfg.PaddingRatio,
		MaxPadding:   s.cfg.MaxPadding,
	})
	bounds.Assign(root2)

	s.root = root2
	s.rootPath = root
	s.selected = nil
	s.highlighted = make(map[*nodetree.Node]struct{})
	atomic.AddUint64(&s.stateVersion, 1)
	s.scanCancel = nil

	s.recon = reconcile.New(root2, root, reconcile.DefaultOptions())
	reconCtx, reconCancel := context.WithCancel(context.Background())
	s.reconCancel = reconCancel
	s.recon.Start(reconCtx)
	if monErr := s.mon.Start(root, s.recon.Submit); monErr != nil {
		logger.Warnf("starting monitor for %s: %s", root, monErr)
	}

	sched, schedErr := scheduler.New(s.treeProvider(), scheduler.Options{})
	if schedErr != nil {
		logger.Warnf("starting scheduler: %s", schedErr)
	} else {
		s.sched = sched
		sched.Start()
	}
	s.mu.Unlock()

	snap := progress.Snapshot()
	s.recordHistory(root, snap, started, outcome)
}

// treeProvider returns a scheduler.TreeProvider reading s.root under
// lock, so the full-tree-rollup job always sees the live root even
// across a scan replacing it.
func (s *Session) treeProvider() scheduler.TreeProvider {
	return func() *nodetree.Node {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.root
	}
}

func (s *Session) recordHistory(root string, snap scanner.Snapshot, started time.Time, outcome string) {
	if s.hist == nil {
		return
	}
	rec := history.ScanSessionRecord{
		Root:               root,
		TotalBytes:         snap.BytesProcessed,
		FilesScanned:       snap.FilesScanned,
		DirectoriesScanned: snap.DirectoriesScanned,
		StartedAt:          started,
		FinishedAt:         time.Now(),
		Outcome:            outcome,
	}
	if _, err := s.hist.RecordSession(context.Background(), rec); err != nil {
		logger.Errorf("recording scan history: %s", err)
	}
}

// StopScan cancels the active scan, if any, and returns the façade to
// its pre-scan state: no tree, no monitor, no reconciler (P9).
// Cancellation is cooperative and observed between per-path tasks
// (spec.md §5). Calling StopScan when no scan is active leaves an
// already-loaded tree untouched.
func (s *Session) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanCancel == nil {
		return
	}
	s.cancelActiveScanLocked()
	s.scanHandle = nil
	s.root = nil
	s.rootPath = ""
	s.selected = nil
	s.highlighted = make(map[*nodetree.Node]struct{})
	atomic.AddUint64(&s.stateVersion, 1)
}

// SelectNodeViaRay clears any previous selection and picks the node
// under ray, recording it as the new selection. ok is false if
// nothing qualifies (the selection is cleared either way).
func (s *Session) SelectNodeViaRay(cam picker.Camera, ray geom.Ray) (node *nodetree.Node, ok bool) {
	s.mu.Lock()
	root, filter := s.root, s.filter
	prev := s.selected
	s.mu.Unlock()

	if prev != nil && s.callbacks.OnDeselected != nil {
		s.callbacks.OnDeselected(prev)
	}

	if root == nil {
		s.mu.Lock()
		s.selected = nil
		atomic.AddUint64(&s.stateVersion, 1)
		s.mu.Unlock()
		return nil, false
	}

	start := time.Now()
	picked, _, hit := picker.Pick(root, ray, cam, filter.pickerFilter())
	logger.Debugf("pick took %s", time.Since(start))

	s.mu.Lock()
	if hit {
		s.selected = picked
	} else {
		s.selected = nil
	}
	atomic.AddUint64(&s.stateVersion, 1)
	s.mu.Unlock()

	if hit && s.callbacks.OnSelected != nil {
		s.callbacks.OnSelected(picked)
	}
	return picked, hit
}

// envOf builds the environment C14's compiled expressions evaluate
// against: a flattened, read-only view of one node's FileInfo with
// lowercase keys (name, extension, size, kind), the way
// github.com/expr-lang/expr environments are built elsewhere in this
// codebase.
func envOf(n *nodetree.Node) map[string]any {
	f := n.Payload.File
	return map[string]any{
		"name":      f.Name,
		"extension": f.Extension,
		"size":      f.Size,
		"kind":      f.Kind.String(),
	}
}

// compilePredicate compiles filterExpr (memoized — compilation is a
// pure function of the expression text) into a boolean vm.Program.
func (s *Session) compilePredicate(filterExpr string) (*vm.Program, error) {
	if filterExpr == "" {
		return nil, nil
	}

	cached := s.exprCache.Get(filterExpr, func() (interface{}, time.Duration, int) {
		program, err := expr.Compile(filterExpr, expr.AsBool())
		if err != nil {
			return compileResult{err: err}, time.Minute, len(filterExpr)
		}
		return compileResult{program: program}, time.Hour, len(filterExpr)
	})

	res := cached.(compileResult)
	return res.program, res.err
}

type compileResult struct {
	program *vm.Program
	err     error
}

// Search clears the previous highlight set, then walks the tree
// post-order keeping every node whose lowercased name+extension
// contains the lowercased query, whose kind matches the search flags,
// and whose size is at least the active scan filter's threshold. When
// filterExpr is non-empty, a node must additionally satisfy the
// compiled expression (P12: the result is always a subset of the
// filterExpr=="" result). An invalid expression is returned as an
// error and the highlight set is left untouched.
func (s *Session) Search(query string, searchFiles, searchDirs bool, filterExpr string) (map[*nodetree.Node]struct{}, error) {
	program, err := s.compilePredicate(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("session: compiling search expression: %w", err)
	}

	s.mu.Lock()
	root, minSize := s.root, s.filter.MinSize
	s.mu.Unlock()

	query = strings.ToLower(query)
	matches := make(map[*nodetree.Node]struct{})
	if root == nil {
		s.replaceHighlights(matches)
		return matches, nil
	}

	for n := range root.PostOrder() {
		f := n.Payload.File
		if f.Size < minSize {
			continue
		}
		isDir := f.Kind == nodetree.Directory
		if isDir && !searchDirs {
			continue
		}
		if !isDir && !searchFiles {
			continue
		}
		haystack := strings.ToLower(f.Name + f.Extension)
		if !strings.Contains(haystack, query) {
			continue
		}
		if program != nil {
			out, err := expr.Run(program, envOf(n))
			if err != nil {
				return nil, fmt.Errorf("session: evaluating search expression: %w", err)
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}
		matches[n] = struct{}{}
	}

	s.replaceHighlights(matches)
	return matches, nil
}

// HighlightDescendants highlights every node in handle's subtree
// (handle included).
func (s *Session) HighlightDescendants(handle *nodetree.Node) {
	matches := make(map[*nodetree.Node]struct{})
	for n := range handle.PreOrder() {
		matches[n] = struct{}{}
	}
	s.replaceHighlights(matches)
}

// HighlightAncestors highlights handle and every node on the path from
// it up to the tree root.
func (s *Session) HighlightAncestors(handle *nodetree.Node) {
	matches := make(map[*nodetree.Node]struct{})
	for n := handle; n != nil; n = n.Parent() {
		matches[n] = struct{}{}
	}
	s.replaceHighlights(matches)
}

// HighlightMatchingExtension highlights every node sharing handle's
// extension, across the whole tree.
func (s *Session) HighlightMatchingExtension(handle *nodetree.Node) {
	s.mu.Lock()
	root := s.root
	s.mu.Unlock()
	if root == nil {
		return
	}

	ext := handle.Payload.File.Extension
	matches := make(map[*nodetree.Node]struct{})
	for n := range root.PostOrder() {
		if n.Payload.File.Extension == ext {
			matches[n] = struct{}{}
		}
	}
	s.replaceHighlights(matches)
}

// ClearHighlights empties the highlight set, notifying the renderer
// for every node that was highlighted.
func (s *Session) ClearHighlights() {
	s.replaceHighlights(nil)
}

func (s *Session) replaceHighlights(next map[*nodetree.Node]struct{}) {
	s.mu.Lock()
	prev := s.highlighted
	if next == nil {
		next = make(map[*nodetree.Node]struct{})
	}
	s.highlighted = next
	atomic.AddUint64(&s.stateVersion, 1)
	s.mu.Unlock()

	if s.callbacks.OnUnhighlighted != nil {
		for n := range prev {
			if _, stillHighlighted := next[n]; !stillHighlighted {
				s.callbacks.OnUnhighlighted(n)
			}
		}
	}
	if s.callbacks.OnHighlighted != nil {
		for n := range next {
			if _, wasHighlighted := prev[n]; !wasHighlighted {
				s.callbacks.OnHighlighted(n)
			}
		}
	}
}

// FetchNextFileEvent is a non-blocking drain of the reconciler's
// update queue.
func (s *Session) FetchNextFileEvent() (reconcile.ResolvedEvent, bool) {
	s.mu.Lock()
	recon := s.recon
	s.mu.Unlock()
	if recon == nil {
		return reconcile.ResolvedEvent{}, false
	}
	select {
	case e := <-recon.Updates():
		return e, true
	default:
		return reconcile.ResolvedEvent{}, false
	}
}

// NodeColor consults the color scheme plus the current
// selection/highlight state to produce handle's current color under
// the named scheme, so the renderer never has to duplicate that
// policy. Selection wins over highlight, which wins over the base
// extension color; a node with no color-scheme entry falls back to
// light grey (200, 200, 200).
func (s *Session) NodeColor(handle *nodetree.Node, scheme string) colorscheme.RGB {
	s.mu.Lock()
	isSelected := handle == s.selected
	_, isHighlighted := s.highlighted[handle]
	version := s.stateVersion
	s.mu.Unlock()

	key := fmt.Sprintf("%p:%s", handle, scheme)
	cached := s.colorCache.GetVersioned(key, version, func() (interface{}, time.Duration, int) {
		return s.computeNodeColor(handle, scheme, isSelected, isHighlighted), 5 * time.Second, 3
	})
	return cached.(colorscheme.RGB)
}

func (s *Session) computeNodeColor(handle *nodetree.Node, scheme string, isSelected, isHighlighted bool) colorscheme.RGB {
	switch {
	case isSelected:
		return colorscheme.RGB{R: 255, G: 255, B: 255}
	case isHighlighted:
		return colorscheme.RGB{R: 255, G: 215, B: 0}
	}

	if rgb, ok := s.colors.Lookup(scheme, handle.Payload.File.Extension); ok {
		return rgb
	}
	return colorscheme.RGB{R: 200, G: 200, B: 200}
}

// Tree returns the currently loaded tree's root, or nil if no scan has
// completed.
func (s *Session) Tree() *nodetree.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Close stops any active scan/monitor/reconciler/scheduler. The
// session must not be used afterward.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelActiveScanLocked()
}
