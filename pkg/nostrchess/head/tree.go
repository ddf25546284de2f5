package head

import (
	"sort"

	"github.com/randalmurphal/nostrchess/pkg/nostrchess/store"
)

// MoveNode links a position to its parent and children. Nodes are built
// per resolution and never persisted.
type MoveNode struct {
	Position Position
	Parent   *MoveNode

	// Children are ordered by created_at, then id.
	Children []*MoveNode
}

// Tree is the move tree of one game rooted at its start.
type Tree struct {
	Root  *MoveNode
	nodes map[string]*MoveNode
}

// BuildTree links moves under root. Moves of other games, repeated ids and
// moves whose parent is unknown are left out of the reachable tree.
func BuildTree(root store.GameStart, moves []store.GameMove) *Tree {
	t := &Tree{
		Root:  &MoveNode{Position: StartPosition(root)},
		nodes: make(map[string]*MoveNode, len(moves)+1),
	}
	t.nodes[root.ID()] = t.Root

	pending := make([]*MoveNode, 0, len(moves))
	for _, m := range moves {
		if m.GameID != root.ID() {
			continue
		}
		if _, dup := t.nodes[m.ID()]; dup {
			continue
		}
		n := &MoveNode{Position: MovePosition(m)}
		t.nodes[m.ID()] = n
		pending = append(pending, n)
	}

	for _, n := range pending {
		parentID := n.Position.ParentID()
		if parentID == "" {
			parentID = root.ID()
		}
		parent, ok := t.nodes[parentID]
		if !ok || parent == n {
			continue
		}
		n.Parent = parent
		parent.Children = append(parent.Children, n)
	}

	for _, n := range t.nodes {
		sortChildren(n.Children)
	}
	return t
}

// Node returns the node for an event id.
func (t *Tree) Node(id string) (*MoveNode, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Len returns the number of positions in the tree, including unreachable ones.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// sortChildren orders siblings earliest first. Equal timestamps fall back
// to the event id so the order never depends on input order.
func sortChildren(kids []*MoveNode) {
	sort.Slice(kids, func(i, j int) bool {
		a, b := kids[i].Position, kids[j].Position
		if a.CreatedAt() != b.CreatedAt() {
			return a.CreatedAt() < b.CreatedAt()
		}
		return a.ID() < b.ID()
	})
}
