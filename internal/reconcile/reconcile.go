// Package reconcile implements C7: the bridge between C6's monitor
// callback and the tree, and onward to a renderer's update queue.
// Events flow ingest -> (rate-limited) apply -> updates, each stage a
// Go channel so producer and consumer never share a lock.
package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/diskviz/treemap/internal/monitor"
	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/pkg/log"
)

var logger = log.For("reconcile")

// ResolvedEvent is a FileEvent the reconciler has already applied to
// the tree, carrying the node handle it affected. For a Deleted event
// that is the detached node, whose Parent is already nil; Node is nil
// only when the event's path could not be resolved or it was dropped.
type ResolvedEvent struct {
	monitor.FileEvent
	Node *nodetree.Node
}

// Options tunes a Reconciler.
type Options struct {
	// IngestCapacity bounds the ingest queue; once full, further
	// monitor events are dropped and logged rather than blocking the
	// monitor's own goroutine.
	IngestCapacity int
	// UpdateCapacity bounds the update queue the renderer drains.
	UpdateCapacity int
	// RateLimit and Burst configure the token bucket debouncing how
	// fast events are pulled off the ingest queue.
	RateLimit rate.Limit
	Burst     int
}

func DefaultOptions() Options {
	return Options{
		IngestCapacity: 1024,
		UpdateCapacity: 1024,
		RateLimit:      rate.Limit(200),
		Burst:          50,
	}
}

// Reconciler owns the ingest/update queues and the goroutine draining
// the former into the latter, mutating root along the way.
type Reconciler struct {
	root     *nodetree.Node
	rootPath string

	ingest  chan monitor.FileEvent
	updates chan ResolvedEvent
	limiter *rate.Limiter

	mu   sync.Mutex
	done chan struct{}
}

// New returns a Reconciler that mutates the tree rooted at root, whose
// relative paths are resolved against the live filesystem at rootPath
// (the same path originally passed to scanner.Scan and monitor.Start).
func New(root *nodetree.Node, rootPath string, opts Options) *Reconciler {
	return &Reconciler{
		root:     root,
		rootPath: rootPath,
		ingest:   make(chan monitor.FileEvent, opts.IngestCapacity),
		updates:  make(chan ResolvedEvent, opts.UpdateCapacity),
		limiter:  rate.NewLimiter(opts.RateLimit, opts.Burst),
	}
}

// Submit is the callback to hand to monitor.Monitor.Start. It never
// blocks: a full ingest queue drops the event and logs a warning.
func (r *Reconciler) Submit(e monitor.FileEvent) {
	select {
	case r.ingest <- e:
	default:
		logger.Warnf("ingest queue full, dropping %s %s", e.Kind, e.RelativePath)
	}
}

// Updates returns the channel the renderer drains. Use DrainUpdates
// for the frame-budget-bounded convenience wrapper.
func (r *Reconciler) Updates() <-chan ResolvedEvent { return r.updates }

// Start launches the reconciler goroutine. Cancelling ctx stops it.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go r.run(ctx, done)
}

// Join blocks until the reconciler goroutine started by the most
// recent Start has returned.
func (r *Reconciler) Join() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (r *Reconciler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	batch := make([]monitor.FileEvent, 0, 32)
	for {
		select {
		case <-ctx.Done():
			return

		case e, ok := <-r.ingest:
			if !ok {
				return
			}
			if err := r.limiter.Wait(ctx); err != nil {
				return
			}

			batch = batch[:0]
			batch = append(batch, e)
		drain:
			for len(batch) < cap(batch) {
				select {
				case e2, ok := <-r.ingest:
					if !ok {
						break drain
					}
					batch = append(batch, e2)
				default:
					break drain
				}
			}
			r.applyBatch(ctx, batch)
		}
	}
}

func (r *Reconciler) applyBatch(ctx context.Context, batch []monitor.FileEvent) {
	mutated := make(map[*nodetree.Node]bool)

	for _, e := range batch {
		logger.Infof("%s %s", e.Kind, e.RelativePath)

		resolved := r.apply(e, mutated)

		select {
		case r.updates <- resolved:
		case <-ctx.Done():
			return
		}
	}

	resumAncestors(mutated)
}

// apply performs the semantic effect of e on the tree, records every
// node whose immediate children changed into mutated (the starting
// points applyBatch will re-roll up from), and returns the resolved
// event.
func (r *Reconciler) apply(e monitor.FileEvent, mutated map[*nodetree.Node]bool) ResolvedEvent {
	switch e.Kind {
	case monitor.Created:
		return r.applyCreated(e, mutated)

	case monitor.Deleted:
		target, _ := resolve(r.root, e.RelativePath)
		if target == nil {
			return ResolvedEvent{FileEvent: e}
		}
		if parent := target.Parent(); parent != nil {
			mutated[parent] = true
		}
		target.DetachFromTree()
		return ResolvedEvent{FileEvent: e, Node: target}

	case monitor.Touched:
		target, _ := resolve(r.root, e.RelativePath)
		if target == nil {
			return ResolvedEvent{FileEvent: e}
		}
		if target.Payload.File.Kind == nodetree.Directory {
			return ResolvedEvent{FileEvent: e, Node: target} // directories: no-op
		}
		info, err := os.Lstat(filepath.Join(r.rootPath, e.RelativePath))
		if err != nil || info.Mode()&os.ModeSymlink != 0 {
			return ResolvedEvent{FileEvent: e, Node: target}
		}
		target.Payload.File.Size = info.Size()
		if parent := target.Parent(); parent != nil {
			mutated[parent] = true
		}
		return ResolvedEvent{FileEvent: e, Node: target}

	case monitor.Renamed:
		if e.OldRelativePath != "" {
			if oldNode, _ := resolve(r.root, e.OldRelativePath); oldNode != nil {
				if parent := oldNode.Parent(); parent != nil {
					mutated[parent] = true
				}
				oldNode.DetachFromTree()
			}
		}
		resolved := r.applyCreated(monitor.FileEvent{
			RelativePath: e.RelativePath,
			Kind:         monitor.Created,
			Timestamp:    e.Timestamp,
		}, mutated)
		resolved.FileEvent = e // report it to the caller as Renamed, not Created
		return resolved

	default:
		return ResolvedEvent{FileEvent: e}
	}
}

func (r *Reconciler) applyCreated(e monitor.FileEvent, mutated map[*nodetree.Node]bool) ResolvedEvent {
	dirRel := filepath.Dir(e.RelativePath)
	if dirRel == "." {
		dirRel = ""
	}
	name := filepath.Base(e.RelativePath)

	_, parent := resolve(r.root, dirRel)
	if parent == nil {
		return ResolvedEvent{FileEvent: e} // parent cannot be located: drop
	}
	for c := range parent.Children() {
		if c.Payload.File.Name == name {
			return ResolvedEvent{FileEvent: e, Node: c} // already present
		}
	}

	info, err := os.Lstat(filepath.Join(r.rootPath, e.RelativePath))
	if err != nil || info.Mode()&os.ModeSymlink != 0 {
		return ResolvedEvent{FileEvent: e}
	}

	kind := nodetree.Regular
	size := info.Size()
	if info.IsDir() {
		kind = nodetree.Directory
		size = 0
	}

	child := parent.AppendChild(nodetree.Payload{File: nodetree.FileInfo{
		Name:      name,
		Extension: filepath.Ext(name),
		Size:      size,
		Kind:      kind,
	}})
	mutated[parent] = true
	return ResolvedEvent{FileEvent: e, Node: child}
}

// resolve walks from root through relPath's components, matching each
// against a direct child's name. It returns the fully resolved node
// (nil on any miss) and the deepest node reached — the latter is the
// parent stem a Created event needs even when the leaf itself does not
// yet exist in the tree.
func resolve(root *nodetree.Node, relPath string) (node, deepest *nodetree.Node) {
	relPath = strings.Trim(filepath.ToSlash(relPath), "/")
	if relPath == "" || relPath == "." {
		return root, root
	}

	cur := root
	parts := strings.Split(relPath, "/")
	for _, part := range parts {
		var next *nodetree.Node
		for c := range cur.Children() {
			if c.Payload.File.Name == part {
				next = c
				break
			}
		}
		if next == nil {
			return nil, cur
		}
		cur = next
	}
	return cur, cur
}

// resumAncestors recomputes File.Size for every node in mutated and
// every one of its ancestors, deepest first, as the direct sum of its
// immediate children's sizes.
func resumAncestors(mutated map[*nodetree.Node]bool) {
	depth := make(map[*nodetree.Node]int)
	for n := range mutated {
		for cur := n; cur != nil; cur = cur.Parent() {
			if _, seen := depth[cur]; seen {
				break
			}
			d := 0
			for p := cur; p.Parent() != nil; p = p.Parent() {
				d++
			}
			depth[cur] = d
		}
	}

	nodes := make([]*nodetree.Node, 0, len(depth))
	for n := range depth {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return depth[nodes[i]] > depth[nodes[j]] })

	for _, n := range nodes {
		if n.Payload.File.Kind != nodetree.Directory {
			continue
		}
		total := int64(0)
		for c := range n.Children() {
			total += c.Payload.File.Size
		}
		n.Payload.File.Size = total
	}
}

// DrainUpdates pulls resolved events off the update queue until either
// it is empty or budget has elapsed, whichever comes first, and
// returns what it collected. This is the bounded-drain helper spec.md
// §4.7 calls for so a burst of filesystem activity cannot stall a
// frame.
func (r *Reconciler) DrainUpdates(budget time.Duration) []ResolvedEvent {
	deadline := time.Now().Add(budget)
	var out []ResolvedEvent
	for {
		select {
		case e := <-r.updates:
			out = append(out, e)
			if time.Now().After(deadline) {
				return out
			}
		default:
			return out
		}
	}
}
