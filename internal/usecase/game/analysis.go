package game

import (
	"context"
	"fmt"

	"katrain/internal/domain"
	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	"katrain/internal/movetree"
)

type AnalysisOptions struct {
	// Visits overrides the configured max visits when positive.
	Visits   int
	Fast     bool
	Priority int
	// ReportEvery asks the engine for partial results every so many seconds.
	ReportEvery float64
}

// Analyze queues a full analysis of node with the engine of the player to move.
// It returns the query id, or "" when no engine can take it.
func (g *Game) Analyze(node *movetree.Node, opts AnalysisOptions) string {
	return g.request(node, nil, opts, false)
}

// AnalyzeMove evaluates the position after move, storing the result as that
// move's candidate entry on node.
func (g *Game) AnalyzeMove(node *movetree.Node, move game.Move, opts AnalysisOptions) string {
	return g.request(node, &move, opts, true)
}

// Sweep refines every empty point at node with fast visits.
func (g *Game) Sweep(node *movetree.Node) (int, error) {
	b, err := g.BoardAt(node)
	if err != nil {
		return 0, err
	}
	sizeX, sizeY := b.Size()
	next := node.NextPlayer()
	sent := 0
	for y := 0; y < sizeY; y++ {
		for x := 0; x < sizeX; x++ {
			if !b.IsEmpty(x, y) {
				continue
			}
			if g.AnalyzeMove(node, game.NewMove(next, x, y), AnalysisOptions{Fast: true, Priority: -100}) != "" {
				sent++
			}
		}
	}
	return sent, nil
}

func (g *Game) request(node *movetree.Node, refine *game.Move, opts AnalysisOptions, speculative bool) string {
	engine := g.engines[node.NextPlayer()]
	if engine == nil {
		return ""
	}
	tree := node.Tree()
	req := g.buildRequest(node, refine, opts)

	onResult := func(resp *domain.AnalysisResponse, partial bool) {
		if !g.isLive(tree) {
			g.log.Debugw("discarding orphaned analysis", "id", resp.ID, "node", node.ID(), "error", ownErrors.ErrOrphanedAnalysis)
			return
		}
		node.SetAnalysis(resp, refine, partial)
	}
	var onError domain.ErrorCallback
	if !speculative {
		onError = func(resp *domain.AnalysisResponse) {
			if !g.isLive(tree) {
				g.log.Debugw("discarding orphaned analysis error", "id", resp.ID, "error", resp.Error)
				return
			}
			g.log.Errorw("analysis failed", "id", resp.ID, "node", node.ID(), "error", resp.Error)
			node.SetAnalysisError(fmt.Errorf("%w: %s", ownErrors.ErrAnalysisFailed, resp.Error))
		}
	}
	return engine.SendQuery(req, onResult, onError, speculative)
}

func (g *Game) buildRequest(node *movetree.Node, refine *game.Move, opts AnalysisOptions) domain.AnalysisRequest {
	tree := node.Tree()
	sizeX, sizeY := tree.Size()

	moves := tree.MovesFromRoot(node.ID())
	if refine != nil {
		moves = append(moves, *refine)
	}
	wireMoves := make([][2]string, len(moves))
	for i, m := range moves {
		wireMoves[i] = [2]string{string(m.Player), m.GTP()}
	}

	placements := tree.Placements()
	var initial [][2]string
	for _, p := range placements {
		initial = append(initial, [2]string{string(p.Player), p.GTP()})
	}

	visits := g.settings.MaxVisits
	if opts.Fast && g.settings.FastVisits > 0 {
		visits = g.settings.FastVisits
	}
	if opts.Visits > 0 {
		visits = opts.Visits
	}

	overrides := map[string]any{}
	if g.settings.MaxTime > 0 {
		overrides["maxTime"] = g.settings.MaxTime
	}
	if g.settings.WideRootNoise > 0 {
		overrides["wideRootNoise"] = g.settings.WideRootNoise
	}

	return domain.AnalysisRequest{
		Rules:                   tree.Rules(),
		Priority:                opts.Priority,
		AnalyzeTurns:            []int{len(moves)},
		MaxVisits:               visits,
		Komi:                    tree.Komi(),
		BoardXSize:              sizeX,
		BoardYSize:              sizeY,
		IncludeOwnership:        g.settings.Ownership && refine == nil,
		IncludePolicy:           refine == nil,
		InitialStones:           initial,
		InitialPlayer:           string(tree.Root().NextPlayer()),
		Moves:                   wireMoves,
		ReportDuringSearchEvery: opts.ReportEvery,
		OverrideSettings:        overrides,
	}
}

// WaitForAnalysis blocks until node holds a policy (policyOnly) or a completed
// analysis. It fails with the engine's error if the engine dies first, and
// with the analysis error if the engine rejected the query.
func (g *Game) WaitForAnalysis(ctx context.Context, node *movetree.Node, policyOnly bool) error {
	engine := g.engines[node.NextPlayer()]
	if engine == nil {
		return ownErrors.ErrEngineNotStarted
	}
	for {
		updated := node.Updated()
		if policyOnly && node.HasPolicy() || !policyOnly && node.Completed() {
			return nil
		}
		if err := node.AnalysisErr(); err != nil {
			return err
		}
		select {
		case <-updated:
		case <-engine.Dead():
			if err := engine.Err(); err != nil {
				return err
			}
			return ownErrors.ErrEngineDied
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
