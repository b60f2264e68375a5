package movetree

import (
	"sort"
	"sync"

	"katrain/internal/domain"
	"katrain/internal/domain/game"
	"katrain/internal/domain/sgf"
)

// AutoUndo records the teaching-mode verdict on a move.
type AutoUndo int

const (
	AutoUndoUnknown AutoUndo = iota
	AutoUndoRejected
	AutoUndoAccepted
)

// unrankedOrder sorts entries the engine did not rank itself after every ranked one.
const unrankedOrder = 999

type Node struct {
	id       NodeID
	parent   NodeID
	children []NodeID
	move     *game.Move
	depth    int
	tree     *Tree

	placements []game.Move

	mu       sync.Mutex
	props    sgf.Properties
	analysis analysis
	updated  chan struct{}
	autoUndo AutoUndo
}

type analysis struct {
	moves     map[string]*domain.MoveInfo
	moveOrder []string
	root      *domain.RootInfo
	ownership []float64
	policy    []float64
	completed bool
	err       error
}

func (n *Node) ID() NodeID {
	return n.id
}

func (n *Node) Tree() *Tree {
	return n.tree
}

func (n *Node) Depth() int {
	return n.depth
}

func (n *Node) IsRoot() bool {
	return n.parent == NoNode
}

// Move is the move played to reach this node; the root has none.
func (n *Node) Move() (game.Move, bool) {
	if n.move == nil {
		return game.Move{}, false
	}
	return *n.move, true
}

// Player is whoever moved into this node.
func (n *Node) Player() game.Color {
	if n.move != nil {
		return n.move.Player
	}
	return n.NextPlayer().Opponent()
}

func (n *Node) NextPlayer() game.Color {
	if n.move != nil {
		return n.move.Player.Opponent()
	}
	n.mu.Lock()
	pl, ok := n.props.First("PL")
	n.mu.Unlock()
	if ok {
		if c, err := game.ParseColor(pl); err == nil {
			return c
		}
	}
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	onlyBlack := len(n.placements) > 0
	for _, p := range n.placements {
		if p.Player != game.Black {
			onlyBlack = false
		}
	}
	if onlyBlack {
		return game.White
	}
	return game.Black
}

func (n *Node) AutoUndo() AutoUndo {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.autoUndo
}

func (n *Node) SetAutoUndo(v AutoUndo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.autoUndo = v
}

// Updated is closed on the next analysis change; call again for a fresh channel.
func (n *Node) Updated() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.updated
}

func (n *Node) notifyLocked() {
	close(n.updated)
	n.updated = make(chan struct{})
}

// SetAnalysis merges one engine response. With refine set, the response is
// the evaluation of the position after that move and only updates its entry.
func (n *Node) SetAnalysis(resp *domain.AnalysisResponse, refine *game.Move, partial bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	a := &n.analysis
	if a.moves == nil {
		a.moves = make(map[string]*domain.MoveInfo)
	}

	if refine != nil {
		if resp.RootInfo == nil {
			return
		}
		var tail []string
		if len(resp.MoveInfos) > 0 {
			tail = resp.MoveInfos[0].PV
		}
		key := refine.GTP()
		info := domain.MoveInfoFromRoot(key, resp.RootInfo, append([]string{key}, tail...))
		n.mergeMoveLocked(key, &info)
		n.notifyLocked()
		return
	}

	for i := range resp.MoveInfos {
		mi := resp.MoveInfos[i]
		n.mergeMoveLocked(mi.Move, &mi)
	}
	if resp.Ownership != nil {
		a.ownership = append([]float64(nil), resp.Ownership...)
	}
	if resp.Policy != nil {
		a.policy = append([]float64(nil), resp.Policy...)
	}
	if resp.RootInfo != nil {
		if a.root == nil {
			root := *resp.RootInfo
			a.root = &root
		} else {
			a.root.Merge(resp.RootInfo)
		}
	}
	if !partial {
		a.completed = true
	}
	n.notifyLocked()
}

func (n *Node) mergeMoveLocked(key string, info *domain.MoveInfo) {
	a := &n.analysis
	stored, ok := a.moves[key]
	if !ok {
		entry := *info
		if !entry.HasOrder() {
			entry.Order = unrankedOrder
		}
		a.moves[key] = &entry
		a.moveOrder = append(a.moveOrder, key)
		return
	}
	stored.Merge(info)
}

// SetAnalysisError records a terminal engine error and wakes waiters.
func (n *Node) SetAnalysisError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.analysis.err = err
	n.notifyLocked()
}

func (n *Node) AnalysisErr() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.analysis.err
}

// HasAnalysis reports whether root statistics exist.
func (n *Node) HasAnalysis() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.analysis.root != nil
}

func (n *Node) Completed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.analysis.completed && n.analysis.root != nil
}

func (n *Node) HasPolicy() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.analysis.policy != nil
}

func (n *Node) RootInfo() (domain.RootInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.analysis.root == nil {
		return domain.RootInfo{}, false
	}
	return *n.analysis.root, true
}

func (n *Node) Visits() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.analysis.root == nil {
		return 0
	}
	return n.analysis.root.Visits
}

func (n *Node) Policy() []float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]float64(nil), n.analysis.policy...)
}

func (n *Node) Ownership() []float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]float64(nil), n.analysis.ownership...)
}

// MoveAnalysis returns the stored entry for one candidate.
func (n *Node) MoveAnalysis(gtp string) (domain.MoveInfo, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m, ok := n.analysis.moves[gtp]
	if !ok {
		return domain.MoveInfo{}, false
	}
	return *m, true
}

// Score is the black-positive score lead; scores are reported from black's side.
func (n *Node) Score() (float64, bool) {
	root, ok := n.RootInfo()
	return root.ScoreLead, ok
}

func (n *Node) Winrate() (float64, bool) {
	root, ok := n.RootInfo()
	return root.Winrate, ok
}

// PointsLost is how much the move into this node cost its player.
func (n *Node) PointsLost() (float64, bool) {
	parent := n.tree.Parent(n)
	if n.move == nil || parent == nil {
		return 0, false
	}
	score, ok := n.Score()
	if !ok {
		return 0, false
	}
	parentScore, ok := parent.Score()
	if !ok {
		return 0, false
	}
	return n.move.Player.Sign() * (parentScore - score), true
}

func (n *Node) WinrateLost() (float64, bool) {
	parent := n.tree.Parent(n)
	if n.move == nil || parent == nil {
		return 0, false
	}
	wr, ok := n.Winrate()
	if !ok {
		return 0, false
	}
	parentWr, ok := parent.Winrate()
	if !ok {
		return 0, false
	}
	return n.move.Player.Sign() * (parentWr - wr), true
}

type Candidate struct {
	domain.MoveInfo
	PointsLost         float64
	RelativePointsLost float64
	WinrateLost        float64
}

// CandidateMoves ranks every analysed move by (engine order, points lost).
// Before per-move results exist the top policy move stands in with no loss.
func (n *Node) CandidateMoves() []Candidate {
	next := n.NextPlayer()
	n.mu.Lock()
	a := n.analysis
	moves := make([]domain.MoveInfo, 0, len(a.moveOrder))
	for _, key := range a.moveOrder {
		moves = append(moves, *a.moves[key])
	}
	var root domain.RootInfo
	if a.root != nil {
		root = *a.root
	}
	hasRoot := a.root != nil
	hasPolicy := a.policy != nil
	n.mu.Unlock()

	if len(moves) == 0 {
		if !hasRoot && !hasPolicy {
			return nil
		}
		top := "pass"
		if ranking := n.PolicyRanking(); len(ranking) > 0 {
			top = ranking[0].Move.GTP()
		}
		info := domain.MoveInfoFromRoot(top, &root, nil)
		info.Order = 0
		return []Candidate{{MoveInfo: info}}
	}
	if !hasRoot {
		return nil
	}

	sign := next.Sign()
	topScore := root.ScoreLead
	for _, m := range moves {
		if m.Order == 0 {
			topScore = m.ScoreLead
			break
		}
	}
	out := make([]Candidate, len(moves))
	for i, m := range moves {
		out[i] = Candidate{
			MoveInfo:           m,
			PointsLost:         sign * (root.ScoreLead - m.ScoreLead),
			RelativePointsLost: sign * (topScore - m.ScoreLead),
			WinrateLost:        sign * (root.Winrate - m.Winrate),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].PointsLost < out[j].PointsLost
	})
	return out
}

type PolicyMove struct {
	Prob float64
	Move game.Move
}

// PolicyGrid reshapes the flat policy into grid[y][x]; the engine lists the top row first.
func (n *Node) PolicyGrid() [][]float64 {
	sizeX, sizeY := n.tree.Size()
	return ToGrid(n.Policy(), sizeX, sizeY)
}

// ToGrid reshapes a per-cell engine array (policy, ownership) so that grid[y][x]
// matches board coordinates. Trailing entries such as the pass policy are ignored.
func ToGrid(flat []float64, sizeX, sizeY int) [][]float64 {
	if len(flat) < sizeX*sizeY {
		return nil
	}
	grid := make([][]float64, sizeY)
	ix := 0
	for y := sizeY - 1; y >= 0; y-- {
		grid[y] = flat[ix : ix+sizeX]
		ix += sizeX
	}
	return grid
}

// PolicyRanking lists every point plus pass by descending policy.
// Illegal points carry a negative policy and sort last.
func (n *Node) PolicyRanking() []PolicyMove {
	policy := n.Policy()
	sizeX, sizeY := n.tree.Size()
	grid := ToGrid(policy, sizeX, sizeY)
	if grid == nil {
		return nil
	}
	next := n.NextPlayer()
	out := make([]PolicyMove, 0, sizeX*sizeY+1)
	for x := 0; x < sizeX; x++ {
		for y := 0; y < sizeY; y++ {
			out = append(out, PolicyMove{Prob: grid[y][x], Move: game.NewMove(next, x, y)})
		}
	}
	if len(policy) > sizeX*sizeY {
		out = append(out, PolicyMove{Prob: policy[len(policy)-1], Move: game.PassMove(next)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Prob > out[j].Prob
	})
	return out
}
