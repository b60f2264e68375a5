package game

import (
	"math/rand"

	"katrain/internal/movetree"
)

// Default teaching thresholds in points lost, worst class first, and how many
// undos each class allows. A fractional allowance is an undo probability.
var (
	DefaultEvalThresholds = []float64{12, 6, 3, 1.5, 0.5, 0}
	DefaultUndoPrompts    = []float64{1, 1, 1, 0.5, 0, 0}
)

// EvaluationClass buckets a points-lost value against descending thresholds.
func EvaluationClass(pointsLost float64, thresholds []float64) int {
	i := 0
	for i < len(thresholds)-1 && pointsLost < thresholds[i] {
		i++
	}
	return i
}

// TeachingUndo judges the current move once its analysis and its parent's are
// in, and takes it back when it lost enough points. The verdict is stored on
// the node, so a node is only ever judged once.
func (g *Game) TeachingUndo(thresholds, prompts []float64, rng *rand.Rand) bool {
	node := g.Current()
	switch node.AutoUndo() {
	case movetree.AutoUndoAccepted:
		return true
	case movetree.AutoUndoRejected:
		return false
	}

	parent := node.Tree().Parent(node)
	if parent == nil || !node.Completed() {
		return false
	}
	lost, ok := node.PointsLost()
	if !ok {
		return false
	}

	class := EvaluationClass(lost, thresholds)
	allowance := 0.0
	if class < len(prompts) {
		allowance = prompts[class]
	}
	siblings := len(node.Tree().Children(parent))

	var undo bool
	switch {
	case allowance <= 0:
		undo = false
	case allowance < 1:
		undo = rng.Float64() < allowance && siblings == 1
	default:
		undo = float64(siblings) <= allowance
	}

	if !undo {
		node.SetAutoUndo(movetree.AutoUndoRejected)
		return false
	}
	node.SetAutoUndo(movetree.AutoUndoAccepted)
	g.log.Infow("teaching undo", "move", node.Depth(), "pointsLost", lost, "class", class)
	g.Undo(1)
	return true
}
