package nodetree

// Rollup recomputes File.Size for every directory node in the tree
// rooted at root as the direct sum of its current children's sizes,
// post-order so a directory is only summed after all of its
// descendants have already been resummed. Unlike the scanner's
// one-shot accumulation during a walk, this is idempotent: calling it
// repeatedly on an already-consistent tree is a no-op, which is what
// lets a scheduled safety-net job call it on a live tree without
// double-counting.
func Rollup(root *Node) {
	for n := range root.PostOrder() {
		if n.Payload.File.Kind != Directory {
			continue
		}
		var total int64
		for c := range n.Children() {
			total += c.Payload.File.Size
		}
		n.Payload.File.Size = total
	}
}
