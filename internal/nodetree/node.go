// Package nodetree implements C1: an owning n-ary tree of file-system
// nodes with sibling order, cheap child iteration, and handles that
// stay valid for the lifetime of the owning tree. A *Node doubles as
// its own handle — the tree never hands out a separate index or ID.
package nodetree

import (
	"sort"
	"sync"

	"github.com/diskviz/treemap/pkg/geom"
)

// FileKind tags what kind of filesystem entry a node represents.
type FileKind int

const (
	Regular FileKind = iota
	Directory
	Symlink
)

func (k FileKind) String() string {
	switch k {
	case Directory:
		return "Directory"
	case Symlink:
		return "Symlink"
	default:
		return "Regular"
	}
}

// FileInfo is the scanned metadata for one entry.
type FileInfo struct {
	Name      string
	Extension string
	Size      int64
	Kind      FileKind
}

// InvalidVBOOffset is the sentinel meaning "not currently in the
// renderer's instance buffer". The renderer owns this field; the core
// only ever carries it along.
const InvalidVBOOffset = -1

// Payload is the data carried at every node.
type Payload struct {
	File        FileInfo
	Block       geom.Block
	BoundingBox geom.Block
	VBOOffset   int
}

// Node is one element of the tree. A Node exclusively owns its
// children; Parent is a non-owning back-reference cleared on detach so
// that a detached subtree can never observe mutations to its old
// ancestry.
type Node struct {
	Payload Payload

	mu          sync.Mutex
	parent      *Node
	firstChild  *Node
	lastChild   *Node
	prevSibling *Node
	nextSib     *Node
	count       int
}

// Tree owns a single root node and all descendants transitively.
type Tree struct {
	root *Node
}

// New creates a tree with a single root node carrying the given
// payload.
func New(root Payload) *Tree {
	return &Tree{root: &Node{Payload: root}}
}

func (t *Tree) Root() *Node { return t.root }

// Parent returns n's parent, or nil if n is a root (or a detached
// subtree's root).
func (n *Node) Parent() *Node { return n.parent }

func (n *Node) FirstChild() *Node { return n.firstChild }
func (n *Node) LastChild() *Node  { return n.lastChild }
func (n *Node) NextSibling() *Node {
	return n.nextSib
}
func (n *Node) PreviousSibling() *Node {
	return n.prevSibling
}

func (n *Node) ChildCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

func (n *Node) HasChildren() bool {
	return n.ChildCount() > 0
}

// AppendChild creates a new child node carrying payload and links it
// as the last child of n. O(1). Safe to call concurrently on the same
// parent from multiple goroutines (the scanner's worker pool does
// exactly that); a call on a different parent never contends on this
// lock.
func (n *Node) AppendChild(payload Payload) *Node {
	child := &Node{Payload: payload, parent: n}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lastChild == nil {
		n.firstChild = child
		n.lastChild = child
	} else {
		child.prevSibling = n.lastChild
		n.lastChild.nextSib = child
		n.lastChild = child
	}
	n.count++
	return child
}

// PrependChild creates a new child node carrying payload and links it
// as the first child of n. O(1).
func (n *Node) PrependChild(payload Payload) *Node {
	child := &Node{Payload: payload, parent: n}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.firstChild == nil {
		n.firstChild = child
		n.lastChild = child
	} else {
		child.nextSib = n.firstChild
		n.firstChild.prevSibling = child
		n.firstChild = child
	}
	n.count++
	return child
}

// DetachFromTree unlinks n from its parent's child list in O(1). The
// caller now owns the detached subtree (n.Parent() becomes nil); the
// subtree itself is left structurally intact. A node with no parent is
// a no-op.
func (n *Node) DetachFromTree() {
	parent := n.parent
	if parent == nil {
		return
	}

	parent.mu.Lock()
	defer parent.mu.Unlock()

	if n.prevSibling != nil {
		n.prevSibling.nextSib = n.nextSib
	} else {
		parent.firstChild = n.nextSib
	}
	if n.nextSib != nil {
		n.nextSib.prevSibling = n.prevSibling
	} else {
		parent.lastChild = n.prevSibling
	}
	parent.count--

	n.prevSibling = nil
	n.nextSib = nil
	n.parent = nil
}

// SortChildren stably reorders n's direct children according to cmp
// (cmp(a, b) reports whether a should sort before b). It is the
// caller's responsibility to avoid calling this concurrently with
// AppendChild/PrependChild/DetachFromTree on the same node — the
// scanner only sorts after its worker pool has joined (spec's
// rollup/prune/sort pipeline is strictly sequential).
func (n *Node) SortChildren(less func(a, b *Node) bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	children := make([]*Node, 0, n.count)
	for c := n.firstChild; c != nil; c = c.nextSib {
		children = append(children, c)
	}
	sort.SliceStable(children, func(i, j int) bool {
		return less(children[i], children[j])
	})

	n.firstChild = nil
	n.lastChild = nil
	for _, c := range children {
		c.prevSibling = nil
		c.nextSib = nil
		if n.lastChild == nil {
			n.firstChild = c
			n.lastChild = c
		} else {
			c.prevSibling = n.lastChild
			n.lastChild.nextSib = c
			n.lastChild = c
		}
	}
}

// BySizeDescending orders nodes by File.Size, largest first — the
// comparator the scanner uses to give the layout its "big things
// first" structure (spec.md §4.2 step 8).
func BySizeDescending(a, b *Node) bool {
	return a.Payload.File.Size > b.Payload.File.Size
}
