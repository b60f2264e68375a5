package ai

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	"katrain/internal/movetree"
	gameUseCase "katrain/internal/usecase/game"
)

// ChooseMove waits for the analysis the strategy needs at the current node and
// picks a move for the player to move, with a human-readable explanation.
// It fails only when the analysis can not arrive: the engine died, rejected
// the query, or ctx ended.
func ChooseMove(ctx context.Context, g *gameUseCase.Game, s Strategy, rng *rand.Rand) (game.Move, string, error) {
	node := g.Current()
	if isPolicyStrategy(s) {
		resolved, why := resolvePolicyStrategy(node, s)
		if err := g.WaitForAnalysis(ctx, node, true); err != nil {
			return game.Move{}, "", fmt.Errorf("waiting for policy: %w", err)
		}
		move, thoughts := choosePolicyMove(node, resolved, rng)
		return move, why + thoughts, nil
	}

	if err := g.WaitForAnalysis(ctx, node, false); err != nil {
		return game.Move{}, "", fmt.Errorf("waiting for analysis: %w", err)
	}
	return chooseRankedMove(node, s, rng)
}

// GenerateMove chooses a move, plays it and returns the new node with the
// explanation of the choice.
func GenerateMove(ctx context.Context, g *gameUseCase.Game, s Strategy, rng *rand.Rand, log *zap.SugaredLogger) (*movetree.Node, string, error) {
	move, thoughts, err := ChooseMove(ctx, g, s, rng)
	if err != nil {
		return nil, "", err
	}
	log.Debugw("ai move", "mode", s.Mode(), "move", move.String(), "thoughts", thoughts)
	node, err := g.Play(move, false)
	if err != nil {
		return nil, thoughts, fmt.Errorf("playing %s move: %w", s.Mode(), err)
	}
	return node, thoughts, nil
}

func chooseRankedMove(node *movetree.Node, s Strategy, rng *rand.Rand) (game.Move, string, error) {
	next := node.NextPlayer()
	candidates := node.CandidateMoves()
	if len(candidates) == 0 {
		return game.Move{}, "", fmt.Errorf("no candidate moves: %w", ownErrors.ErrAnalysisFailed)
	}
	top, err := game.FromGTP(candidates[0].Move, next)
	if err != nil {
		return game.Move{}, "", fmt.Errorf("%w: candidate %q", ownErrors.ErrMalformedResponse, candidates[0].Move)
	}
	if top.IsPass() {
		return top, "Top move is pass, so passing regardless of strategy.", nil
	}

	switch st := s.(type) {
	case Jigo:
		sign := next.Sign()
		best := 0
		bestDiff := math.Inf(1)
		for i, c := range candidates {
			if diff := math.Abs(sign*c.ScoreLead - st.TargetScore); diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		move, err := game.FromGTP(candidates[best].Move, next)
		if err != nil {
			return game.Move{}, "", fmt.Errorf("%w: candidate %q", ownErrors.ErrMalformedResponse, candidates[best].Move)
		}
		return move, fmt.Sprintf("Jigo strategy found %d candidate moves (best %s) and chose %s as closest to %v point win.",
			len(candidates), top.GTP(), move.GTP(), st.TargetScore), nil

	case ScoreLoss:
		items := make([]Item, 0, len(candidates))
		for _, c := range candidates {
			m, err := game.FromGTP(c.Move, next)
			if err != nil {
				continue
			}
			weight := math.Exp(math.Min(200, -st.Strength*math.Max(0, c.PointsLost)))
			items = append(items, Item{Value: c.PointsLost, Weight: weight, Move: m})
		}
		picked := WeightedSelectionWithoutReplacement(items, 1, rng)
		if len(picked) == 0 {
			return top, "Score loss strategy found no weighted candidate, playing top move.", nil
		}
		return picked[0].Move, fmt.Sprintf("Score loss strategy found %d candidate moves (best %s) and chose %s (%.1f points lost) with strength %v.",
			len(candidates), top.GTP(), picked[0].Move.GTP(), picked[0].Value, st.Strength), nil
	}

	return top, fmt.Sprintf("Default strategy found %d moves returned from the engine and chose %s as top move.", len(candidates), top.GTP()), nil
}
