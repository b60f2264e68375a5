package ai

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"katrain/internal/domain/game"
	"katrain/internal/movetree"
)

// openingWeighted replaces local/tenuki without a previous stone and the
// policy strategy during the opening.
var openingWeighted = Weighted{PickOverride: 0.9, WeakenFac: 1, LowerBound: 0.02}

// pickSettings is the part shared by every pick-style strategy.
type pickSettings struct {
	override float64
	pickN    int
	pickFrac float64
	endgame  float64
}

func isPolicyStrategy(s Strategy) bool {
	switch s.(type) {
	case Policy, Weighted, Pick, Local, Tenuki, Influence, Territory, Rank:
		return true
	}
	return false
}

// resolvePolicyStrategy applies the fallbacks that depend on the position.
func resolvePolicyStrategy(node *movetree.Node, s Strategy) (Strategy, string) {
	switch st := s.(type) {
	case Local, Tenuki:
		if m, ok := node.Move(); !ok || m.IsPass() {
			return openingWeighted, "No previous stone to play around, using policy-weighted strategy instead. "
		}
	case Policy:
		if node.Depth() <= st.OpeningMoves {
			return openingWeighted, "Strategy override, using policy-weighted strategy instead. "
		}
	}
	return s, ""
}

func choosePolicyMove(node *movetree.Node, s Strategy, rng *rand.Rand) (game.Move, string) {
	var thoughts strings.Builder
	next := node.NextPlayer()
	sizeX, sizeY := node.Tree().Size()

	ranking := node.PolicyRanking()
	grid := node.PolicyGrid()
	if len(ranking) == 0 || grid == nil {
		return game.PassMove(next), "No policy available, passing. "
	}
	policy := node.Policy()
	passPolicy := 0.0
	if len(policy) > sizeX*sizeY {
		passPolicy = policy[len(policy)-1]
	}
	top := ranking[0].Move
	fmt.Fprintf(&thoughts, "Using policy based strategy, base top 5 moves are %s. ", formatPolicyMoves(ranking, 5))

	for i := 0; i < len(ranking) && i < 5; i++ {
		if ranking[i].Move.IsPass() {
			thoughts.WriteString("Playing top one because one of them is pass.")
			return top, thoughts.String()
		}
	}
	if _, ok := s.(Policy); ok {
		fmt.Fprintf(&thoughts, "Playing top policy move %s.", top.GTP())
		return top, thoughts.String()
	}

	var legal []movetree.PolicyMove
	for _, pm := range ranking {
		if !pm.Move.IsPass() && pm.Prob > 0 {
			legal = append(legal, pm)
		}
	}
	squares := float64(sizeX * sizeY)

	override, overrideTwo := 1.0, 1.0
	switch st := s.(type) {
	case Rank:
		override = 0.8 * (1 - 0.5*(squares-float64(len(legal)))/squares)
		overrideTwo = 0.85 + math.Max(0, 0.02*(st.KyuRank-8))
	case Weighted:
		override = st.PickOverride
	default:
		override = pickSettingsOf(s).override
	}
	if ranking[0].Prob > override {
		fmt.Fprintf(&thoughts, "Top policy move has weight > %.1f%%, so overriding other strategies.", override*100)
		return top, thoughts.String()
	}
	if len(ranking) > 1 && ranking[0].Prob+ranking[1].Prob > overrideTwo {
		fmt.Fprintf(&thoughts, "Top two policy moves have cumulative weight > %.1f%%, so overriding other strategies.", overrideTwo*100)
		return top, thoughts.String()
	}

	if st, ok := s.(Weighted); ok {
		move, why := policyWeightedMove(ranking, st.LowerBound, st.WeakenFac, rng)
		thoughts.WriteString(why)
		return move, thoughts.String()
	}

	var n int
	if st, ok := s.(Rank); ok {
		n = rankPickCount(st.KyuRank, squares, float64(len(legal)))
	} else {
		ps := pickSettingsOf(s)
		n = int(ps.pickFrac*float64(len(legal)) + float64(ps.pickN))
		if n < 1 {
			n = 1
		}
	}

	var items []Item
	switch st := s.(type) {
	case Local, Tenuki, Influence, Territory:
		ps := pickSettingsOf(s)
		if float64(node.Depth()) > ps.endgame*squares {
			for _, pm := range legal {
				items = append(items, Item{Value: pm.Prob, Weight: 1, Move: pm.Move})
			}
			if half := len(legal) / 2; half > n {
				n = half
			}
			fmt.Fprintf(&thoughts, "Generated equal weights as move number >= %.0f. ", ps.endgame*squares)
			break
		}
		switch st := st.(type) {
		case Influence:
			items = lineWeights(grid, next, sizeX, sizeY, st.Threshold, st.LineWeight, false)
			fmt.Fprintf(&thoughts, "Generated weights for influence according to weight factor %v and distance from %vth line. ", st.LineWeight, st.Threshold)
		case Territory:
			items = lineWeights(grid, next, sizeX, sizeY, st.Threshold, st.LineWeight, true)
			fmt.Fprintf(&thoughts, "Generated weights for territory according to weight factor %v and distance from %vth line. ", st.LineWeight, st.Threshold)
		case Local:
			prev, _ := node.Move()
			items = gaussianWeights(grid, next, sizeX, sizeY, prev.Coords, st.Stddev, false)
			fmt.Fprintf(&thoughts, "Generated gaussian weights around %s with stddev %v. ", prev.GTP(), st.Stddev)
		case Tenuki:
			prev, _ := node.Move()
			items = gaussianWeights(grid, next, sizeX, sizeY, prev.Coords, st.Stddev, true)
			fmt.Fprintf(&thoughts, "Generated tenuki weights away from %s with stddev %v. ", prev.GTP(), st.Stddev)
		}
	default:
		for x := 0; x < sizeX; x++ {
			for y := 0; y < sizeY; y++ {
				if grid[y][x] > 0 {
					items = append(items, Item{Value: grid[y][x], Weight: 1, Move: game.NewMove(next, x, y)})
				}
			}
		}
	}

	picked := WeightedSelectionWithoutReplacement(items, n, rng)
	fmt.Fprintf(&thoughts, "Picked %d random moves according to weights. ", min(n, len(items)))
	if len(picked) == 0 {
		fmt.Fprintf(&thoughts, "Pick policy strategy %s failed to find legal moves, so is playing top policy move %s.", s.Mode(), top.GTP())
		return top, thoughts.String()
	}

	sort.SliceStable(picked, func(i, j int) bool {
		return picked[i].Value > picked[j].Value
	})
	if len(picked) > 5 {
		picked = picked[:5]
	}
	best := picked[0]
	fmt.Fprintf(&thoughts, "Top 5 among these were %s and picked top %s. ", formatItems(picked), best.Move.GTP())
	if best.Value < passPolicy {
		fmt.Fprintf(&thoughts, "But found pass (%.2f%%) to be higher rated than %s (%.2f%%) so will play top policy move instead.", passPolicy*100, best.Move.GTP(), best.Value*100)
		return top, thoughts.String()
	}
	return best.Move, thoughts.String()
}

func pickSettingsOf(s Strategy) pickSettings {
	switch st := s.(type) {
	case Pick:
		return pickSettings{override: st.PickOverride, pickN: st.PickN, pickFrac: st.PickFrac}
	case Local:
		return pickSettings{override: st.PickOverride, pickN: st.PickN, pickFrac: st.PickFrac, endgame: st.Endgame}
	case Tenuki:
		return pickSettings{override: st.PickOverride, pickN: st.PickN, pickFrac: st.PickFrac, endgame: st.Endgame}
	case Influence:
		return pickSettings{override: st.PickOverride, pickN: st.PickN, pickFrac: st.PickFrac, endgame: st.Endgame}
	case Territory:
		return pickSettings{override: st.PickOverride, pickN: st.PickN, pickFrac: st.PickFrac, endgame: st.Endgame}
	}
	return pickSettings{override: 1, pickN: 1}
}

// policyWeightedMove samples one non-pass move with weight policy^(1/weakenFac)
// among the moves above lowerBound. The bound is halved until some move clears it.
func policyWeightedMove(ranking []movetree.PolicyMove, lowerBound, weakenFac float64, rng *rand.Rand) (game.Move, string) {
	lowerBound = math.Max(0, lowerBound)
	weakenFac = math.Max(0.01, weakenFac)

	best := 0.0
	for _, pm := range ranking {
		if !pm.Move.IsPass() && pm.Prob > best {
			best = pm.Prob
		}
	}
	if best <= 0 {
		return ranking[0].Move, "Playing top policy move because no non-pass move has a positive policy."
	}
	for lowerBound > 0 && best <= lowerBound {
		lowerBound /= 2
	}

	var items []Item
	for _, pm := range ranking {
		if !pm.Move.IsPass() && pm.Prob > lowerBound {
			items = append(items, Item{Value: pm.Prob, Weight: math.Pow(pm.Prob, 1/weakenFac), Move: pm.Move})
		}
	}
	picked := WeightedSelectionWithoutReplacement(items, 1, rng)
	if len(picked) == 0 {
		return ranking[0].Move, fmt.Sprintf("Playing top policy move because no non-pass move > above lower_bound of %.1f%%.", lowerBound*100)
	}
	return picked[0].Move, fmt.Sprintf("Playing policy-weighted random move %s (%.1f%%) from %d moves above lower_bound of %.1f%%.",
		picked[0].Move.GTP(), picked[0].Value*100, len(items), lowerBound*100)
}

// rankPickCount is the number of random picks calibrated against human games of the given kyu rank.
func rankPickCount(kyu, squares, legal float64) int {
	origCalib := 0.063015 + 0.7624*squares/math.Pow(10, -0.05737*kyu+1.9482)
	norm := legal / squares
	spread := 3.002*norm*norm - norm - 0.034889*kyu - 0.5097
	modCalib := (0.3931 + 0.6559*norm*math.Exp(-spread*spread) - 0.01093*kyu) * origCalib
	n := squares * norm / (1.31165*(modCalib+1) - 0.082653)
	return max(1, int(math.Round(n)))
}

// lineWeights favours points near (influence) or away from (territory) the
// threshold line, decaying by 1/lineWeight per line of distance.
func lineWeights(grid [][]float64, next game.Color, sizeX, sizeY int, threshold, lineWeight float64, territory bool) []Item {
	thr := threshold - 1
	base := 1 / lineWeight
	var items []Item
	for x := 0; x < sizeX; x++ {
		for y := 0; y < sizeY; y++ {
			if grid[y][x] <= 0 {
				continue
			}
			lineX := float64(min(sizeX-1-x, x))
			lineY := float64(min(sizeY-1-y, y))
			var exp float64
			if territory {
				exp = math.Max(0, math.Min(lineX, lineY)-thr)
			} else {
				exp = math.Max(0, thr-lineX) + math.Max(0, thr-lineY)
			}
			items = append(items, Item{Value: grid[y][x], Weight: math.Pow(base, exp), Move: game.NewMove(next, x, y)})
		}
	}
	return items
}

func gaussianWeights(grid [][]float64, next game.Color, sizeX, sizeY int, center game.Coord, stddev float64, invert bool) []Item {
	variance := stddev * stddev
	var items []Item
	for x := 0; x < sizeX; x++ {
		for y := 0; y < sizeY; y++ {
			if grid[y][x] <= 0 {
				continue
			}
			dx, dy := float64(x-center.X), float64(y-center.Y)
			w := math.Exp(-0.5 * (dx*dx + dy*dy) / variance)
			if invert {
				w = 1 - w
			}
			items = append(items, Item{Value: grid[y][x], Weight: w, Move: game.NewMove(next, x, y)})
		}
	}
	return items
}

func formatPolicyMoves(ranking []movetree.PolicyMove, n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < len(ranking) && i < n; i++ {
		parts = append(parts, fmt.Sprintf("%s (%.2f%%)", ranking[i].Move.GTP(), ranking[i].Prob*100))
	}
	return strings.Join(parts, ", ")
}

func formatItems(items []Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%s (%.2f%%)", it.Move.GTP(), it.Value*100)
	}
	return strings.Join(parts, ", ")
}
