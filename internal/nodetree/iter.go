package nodetree

import "iter"

// Children iterates n's direct children in order. Safe against
// mutation of unrelated subtrees; mutating n's own child list while
// iterating is undefined, same as ranging over a slice being appended
// to.
func (n *Node) Children() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for c := n.firstChild; c != nil; c = c.nextSib {
			if !yield(c) {
				return
			}
		}
	}
}

// Siblings iterates n's siblings (not including n itself) in order.
func (n *Node) Siblings() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if n.parent == nil {
			return
		}
		for c := n.parent.firstChild; c != nil; c = c.nextSib {
			if c == n {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// PreOrder walks the subtree rooted at n, visiting n before its
// children.
func (n *Node) PreOrder() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		var walk func(*Node) bool
		walk = func(cur *Node) bool {
			if !yield(cur) {
				return false
			}
			for c := cur.firstChild; c != nil; c = c.nextSib {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(n)
	}
}

// PostOrder walks the subtree rooted at n, visiting n after all of its
// descendants.
func (n *Node) PostOrder() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		var walk func(*Node) bool
		walk = func(cur *Node) bool {
			for c := cur.firstChild; c != nil; c = c.nextSib {
				if !walk(c) {
					return false
				}
			}
			return yield(cur)
		}
		walk(n)
	}
}

// Leaves iterates every leaf (childless node) in the subtree rooted at
// n, in pre-order.
func (n *Node) Leaves() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for cur := range n.PreOrder() {
			if !cur.HasChildren() {
				if !yield(cur) {
					return
				}
			}
		}
	}
}
