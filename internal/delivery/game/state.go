package game

import (
	"katrain/internal/domain/game"
	gameUseCase "katrain/internal/usecase/game"
)

// maxCandidates caps the candidate list sent to clients.
const maxCandidates = 10

func stateOf(gameID string, g *gameUseCase.Game, thoughts string) game.GameStateResponse {
	node := g.Current()
	b := g.Board()

	resp := game.GameStateResponse{
		GameID:     gameID,
		MoveNumber: node.Depth(),
		NextPlayer: string(node.NextPlayer()),
		Prisoners:  make(map[string]int, 2),
		Thoughts:   thoughts,
		Analyzed:   node.Completed(),
	}
	if m, ok := node.Move(); ok {
		resp.LastMove = &game.MoveDTO{Color: string(m.Player), Coordinates: m.GTP()}
	}
	for _, stone := range b.Stones() {
		resp.Stones = append(resp.Stones, game.MoveDTO{Color: string(stone.Player), Coordinates: stone.GTP()})
	}
	for _, c := range game.Players {
		resp.Prisoners[string(c)] = b.PrisonerCount(c)
	}
	if score, ok := node.Score(); ok {
		resp.Score = &score
	}
	if wr, ok := node.Winrate(); ok {
		resp.Winrate = &wr
	}
	if pl, ok := node.PointsLost(); ok {
		resp.PointsLost = &pl
	}
	for i, c := range node.CandidateMoves() {
		if i == maxCandidates {
			break
		}
		resp.Candidates = append(resp.Candidates, game.Candidate{
			Move:       c.Move,
			ScoreLead:  c.ScoreLead,
			Winrate:    c.Winrate,
			Visits:     c.Visits,
			PointsLost: c.PointsLost,
			PV:         c.PV,
		})
	}
	return resp
}
