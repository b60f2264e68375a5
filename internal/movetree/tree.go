// Package movetree stores a branching game record in an arena of nodes and
// annotates every node with engine analysis as it arrives.
package movetree

import (
	"strconv"
	"sync"

	"katrain/internal/domain/game"
	"katrain/internal/domain/sgf"
)

// NodeID is a stable index into the tree's arena.
type NodeID int

const NoNode NodeID = -1

// Tree owns all nodes. Structure (children lists) is guarded by mu; node
// analysis has its own lock so the engine reader never contends with play.
type Tree struct {
	mu    sync.RWMutex
	nodes []*Node

	sizeX int
	sizeY int
	komi  float64
	rules string
}

func New(sizeX, sizeY int, komi float64, rules string) *Tree {
	t := &Tree{
		sizeX: sizeX,
		sizeY: sizeY,
		komi:  komi,
		rules: rules,
	}
	root := t.newNode(NoNode, nil)
	root.props.Set("FF", "4")
	root.props.Set("GM", "1")
	if sizeX == sizeY {
		root.props.Set("SZ", strconv.Itoa(sizeX))
	} else {
		root.props.Set("SZ", strconv.Itoa(sizeX)+":"+strconv.Itoa(sizeY))
	}
	root.props.Set("KM", strconv.FormatFloat(komi, 'f', -1, 64))
	root.props.Set("RU", rules)
	return t
}

func (t *Tree) newNode(parent NodeID, move *game.Move) *Node {
	n := &Node{
		id:      NodeID(len(t.nodes)),
		parent:  parent,
		move:    move,
		tree:    t,
		updated: make(chan struct{}),
	}
	if parent != NoNode {
		n.depth = t.nodes[parent].depth + 1
	}
	t.nodes = append(t.nodes, n)
	return n
}

func (t *Tree) Size() (int, int) {
	return t.sizeX, t.sizeY
}

func (t *Tree) Komi() float64 {
	return t.komi
}

func (t *Tree) Rules() string {
	return t.rules
}

func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[0]
}

// Node returns nil for an id outside the arena.
func (t *Tree) Node(id NodeID) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Play returns the child of parent reached by move, creating it if no sibling
// already holds that move. Legality is the caller's concern.
func (t *Tree) Play(parent NodeID, move game.Move) (*Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.nodes[parent]
	for _, id := range p.children {
		if c := t.nodes[id]; c.move != nil && c.move.Equal(move) {
			return c, false
		}
	}
	m := move
	child := t.newNode(parent, &m)
	p.children = append(p.children, child.id)
	return child, true
}

// AddPlacement puts a setup stone (AB/AW) on the root.
func (t *Tree) AddPlacement(stone game.Move) {
	t.mu.Lock()
	defer t.mu.Unlock()
	root := t.nodes[0]
	for _, p := range root.placements {
		if p.Coords == stone.Coords {
			return
		}
	}
	root.placements = append(root.placements, stone)
}

// Undo walks up n moves, stopping at the root.
func (t *Tree) Undo(id NodeID, n int) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node := t.nodes[id]
	for i := 0; i < n && node.parent != NoNode; i++ {
		node = t.nodes[node.parent]
	}
	return node
}

// Redo follows the main (first) child n times, stopping at a leaf.
func (t *Tree) Redo(id NodeID, n int) *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node := t.nodes[id]
	for i := 0; i < n && len(node.children) > 0; i++ {
		node = t.nodes[node.children[0]]
	}
	return node
}

func (t *Tree) Parent(n *Node) *Node {
	if n.parent == NoNode {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nodes[n.parent]
}

func (t *Tree) Children(n *Node) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, len(n.children))
	for i, id := range n.children {
		out[i] = t.nodes[id]
	}
	return out
}

// NodesFromRoot is the path root..id inclusive.
func (t *Tree) NodesFromRoot(id NodeID) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node := t.nodes[id]
	path := make([]*Node, node.depth+1)
	for i := node.depth; i >= 0; i-- {
		path[i] = node
		if node.parent != NoNode {
			node = t.nodes[node.parent]
		}
	}
	return path
}

// MovesFromRoot collects the moves on the path to id, skipping the root.
func (t *Tree) MovesFromRoot(id NodeID) []game.Move {
	nodes := t.NodesFromRoot(id)
	moves := make([]game.Move, 0, len(nodes))
	for _, n := range nodes {
		if n.move != nil {
			moves = append(moves, *n.move)
		}
	}
	return moves
}

// NodesInTree lists every node depth first, children in order.
func (t *Tree) NodesInTree() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Node, 0, len(t.nodes))
	stack := []NodeID{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[id]
		out = append(out, n)
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	return out
}

// Placements returns the root setup stones.
func (t *Tree) Placements() []game.Move {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]game.Move(nil), t.nodes[0].placements...)
}

// Properties is exposed for serializers; the returned store is a copy.
func (n *Node) Properties() sgf.Properties {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.props.Clone()
}

func (n *Node) SetProperty(key string, values ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.props.Set(key, values...)
}

func (n *Node) AddProperty(key, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.props.Add(key, value)
}
