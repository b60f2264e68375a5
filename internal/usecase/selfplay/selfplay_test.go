package selfplay

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"katrain/internal/domain"
	"katrain/internal/domain/game"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
)

// scriptedEngine answers every query at once with the move script returns
// for the number of moves played so far.
type scriptedEngine struct {
	script func(moves int) string
}

func (e *scriptedEngine) SendQuery(req domain.AnalysisRequest, onResult domain.ResultCallback, _ domain.ErrorCallback, _ bool) string {
	move := e.script(len(req.Moves))
	resp := &domain.AnalysisResponse{
		ID:        req.ID,
		RootInfo:  &domain.RootInfo{ScoreLead: 1.5, Visits: 1},
		MoveInfos: []domain.MoveInfo{{Move: move, Order: 0, Visits: 1}},
	}
	onResult(resp, false)
	return fmt.Sprintf("Q%d", len(req.Moves))
}

func (e *scriptedEngine) OnNewGame()            {}
func (e *scriptedEngine) IsIdle() bool          { return true }
func (e *scriptedEngine) Dead() <-chan struct{} { return nil }
func (e *scriptedEngine) Err() error            { return nil }

func newTestRunner(t *testing.T, script func(int) string) *Runner {
	t.Helper()
	engine := &scriptedEngine{script: script}
	engines := map[game.Color]gameUseCase.AnalysisEngine{game.Black: engine, game.White: engine}
	return NewRunner(engines, gameUseCase.Settings{MaxVisits: 1}, zaptest.NewLogger(t).Sugar())
}

func TestSelfPlayStopsOnTwoPasses(t *testing.T) {
	r := newTestRunner(t, func(moves int) string {
		if moves < 3 {
			return []string{"C3", "G7", "E5"}[moves]
		}
		return "pass"
	})
	res, err := r.Play(context.Background(), Options{SizeX: 9, SizeY: 9, Komi: 6.5, Rules: "japanese", MaxMoves: 50})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonPasses || res.Moves != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.HasScore || res.ScoreLead != 1.5 {
		t.Fatalf("final score missing: %+v", res)
	}
	if !strings.Contains(res.SGF, ";B[cg];W[gc];B[ee];W[];B[]") {
		t.Fatalf("unexpected record %s", res.SGF)
	}
}

func TestSelfPlayStopsAtMaxMoves(t *testing.T) {
	columns := "ABCDEFGHJ"
	r := newTestRunner(t, func(moves int) string {
		return fmt.Sprintf("%c%d", columns[moves%9], moves/9+1)
	})
	res, err := r.Play(context.Background(), Options{
		Black: ai.Default{}, White: ai.Jigo{TargetScore: 0.5},
		SizeX: 9, SizeY: 9, Komi: 6.5, Rules: "japanese", MaxMoves: 8, Seed: 42,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonMaxMoves || res.Moves != 8 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSelfPlayReplacesIllegalMoveWithPass(t *testing.T) {
	r := newTestRunner(t, func(moves int) string {
		if moves < 2 {
			return "E5"
		}
		return "pass"
	})
	res, err := r.Play(context.Background(), Options{SizeX: 9, SizeY: 9, Komi: 6.5, Rules: "japanese", MaxMoves: 10})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reason != ReasonPasses || res.Moves != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSelfPlayHonoursContext(t *testing.T) {
	r := newTestRunner(t, func(int) string { return "pass" })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Play(ctx, Options{SizeX: 9, SizeY: 9, Komi: 6.5, Rules: "japanese"}); err == nil {
		t.Fatalf("cancelled context should stop the game")
	}
}

func TestSeededRandIsReproducible(t *testing.T) {
	a, b := newRand(7), newRand(7)
	for i := 0; i < 10; i++ {
		if a.Int63() != b.Int63() {
			t.Fatalf("same seed diverged at draw %d", i)
		}
	}
}
