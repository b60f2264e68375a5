package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"katrain/internal/domain"
	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	gameUseCase "katrain/internal/usecase/game"
)

type stubEngine struct {
	mu      sync.Mutex
	results []domain.ResultCallback
	dead    chan struct{}
}

func (e *stubEngine) SendQuery(_ domain.AnalysisRequest, onResult domain.ResultCallback, _ domain.ErrorCallback, _ bool) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, onResult)
	return "stub"
}

func (e *stubEngine) OnNewGame()            {}
func (e *stubEngine) IsIdle() bool          { return true }
func (e *stubEngine) Dead() <-chan struct{} { return e.dead }
func (e *stubEngine) Err() error            { return nil }

func (e *stubEngine) answer(t *testing.T, raw string) {
	t.Helper()
	var resp domain.AnalysisResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatal(err)
	}
	e.mu.Lock()
	cb := e.results[len(e.results)-1]
	e.mu.Unlock()
	cb(&resp, false)
}

func newAnalysedGame(t *testing.T, size int, raw string) *gameUseCase.Game {
	t.Helper()
	engine := &stubEngine{dead: make(chan struct{})}
	engines := map[game.Color]gameUseCase.AnalysisEngine{game.Black: engine, game.White: engine}
	g := gameUseCase.New(engines, size, size, 6.5, "japanese", gameUseCase.Settings{MaxVisits: 10}, zaptest.NewLogger(t).Sugar())
	if raw != "" {
		engine.answer(t, raw)
	}
	return g
}

// policyJSON builds a policy response from rows listed top row first, plus pass.
func policyJSON(rows [][]float64, pass float64) string {
	var flat []float64
	for _, r := range rows {
		flat = append(flat, r...)
	}
	flat = append(flat, pass)
	data, _ := json.Marshal(map[string]any{"policy": flat, "rootInfo": map[string]any{"visits": 1}})
	return string(data)
}

func TestJigoPrefersFirstOnTie(t *testing.T) {
	g := newAnalysedGame(t, 9, `{"rootInfo":{"scoreLead":2.0,"visits":100},"moveInfos":[
		{"move":"D4","order":0,"scoreLead":2.0,"visits":50},
		{"move":"pass","order":1,"scoreLead":-1.0,"visits":10}]}`)

	move, thoughts, err := ChooseMove(context.Background(), g, Jigo{TargetScore: 0.5}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	if move.GTP() != "D4" || move.Player != game.Black {
		t.Fatalf("jigo chose %s (%s)", move, thoughts)
	}
}

func TestRankedStrategiesPassWhenTopIsPass(t *testing.T) {
	raw := `{"rootInfo":{"scoreLead":0,"visits":100},"moveInfos":[
		{"move":"pass","order":0,"scoreLead":0,"visits":90},
		{"move":"E5","order":1,"scoreLead":-3,"visits":10}]}`
	for _, s := range []Strategy{Default{}, Jigo{TargetScore: -3}, ScoreLoss{Strength: 0}} {
		g := newAnalysedGame(t, 9, raw)
		move, _, err := ChooseMove(context.Background(), g, s, rand.New(rand.NewSource(1)))
		if err != nil {
			t.Fatal(err)
		}
		if !move.IsPass() {
			t.Errorf("%s should pass, got %s", s.Mode(), move)
		}
	}
}

func TestScoreLossAvoidsBigLosses(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		g := newAnalysedGame(t, 9, `{"rootInfo":{"scoreLead":1,"visits":100},"moveInfos":[
			{"move":"C3","order":0,"scoreLead":1,"visits":50},
			{"move":"A1","order":1,"scoreLead":-9,"visits":10}]}`)
		move, _, err := ChooseMove(context.Background(), g, ScoreLoss{Strength: 100}, rng)
		if err != nil {
			t.Fatal(err)
		}
		if move.GTP() != "C3" {
			t.Fatalf("a 10 point loss should never be sampled at this strength, got %s", move)
		}
	}
}

func TestPolicyStrategies(t *testing.T) {
	rows := [][]float64{
		{0.15, 0.14, 0.13},
		{0.12, 0.11, 0.10},
		{0.09, 0.08, 0.07},
	}
	rng := rand.New(rand.NewSource(3))

	t.Run("PolicyPlaysTop", func(t *testing.T) {
		g := newAnalysedGame(t, 3, policyJSON(rows, 0.01))
		move, _, err := ChooseMove(context.Background(), g, Policy{OpeningMoves: -1}, rng)
		if err != nil {
			t.Fatal(err)
		}
		if move.GTP() != "A3" {
			t.Fatalf("expected top policy A3, got %s", move)
		}
	})

	t.Run("PassInTopFive", func(t *testing.T) {
		g := newAnalysedGame(t, 3, policyJSON(rows, 0.5))
		move, thoughts, err := ChooseMove(context.Background(), g, DefaultConfig().Pick, rng)
		if err != nil {
			t.Fatal(err)
		}
		if !move.IsPass() || !strings.Contains(thoughts, "pass") {
			t.Fatalf("expected pass, got %s (%s)", move, thoughts)
		}
	})

	t.Run("PickOverride", func(t *testing.T) {
		dominant := [][]float64{{-1, -1, -1}, {-1, 0.97, 0.005}, {0.005, 0.005, 0.005}}
		g := newAnalysedGame(t, 3, policyJSON(dominant, 0.0))
		move, thoughts, err := ChooseMove(context.Background(), g, DefaultConfig().Pick, rng)
		if err != nil {
			t.Fatal(err)
		}
		if move.GTP() != "B2" || !strings.Contains(thoughts, "overriding") {
			t.Fatalf("expected override to B2, got %s (%s)", move, thoughts)
		}
	})

	t.Run("PickAllTakesBest", func(t *testing.T) {
		g := newAnalysedGame(t, 3, policyJSON(rows, 0.01))
		move, _, err := ChooseMove(context.Background(), g, Pick{PickOverride: 0.95, PickN: 20}, rng)
		if err != nil {
			t.Fatal(err)
		}
		if move.GTP() != "A3" {
			t.Fatalf("picking every move should keep the best, got %s", move)
		}
	})

	t.Run("LocalWithoutStoneFallsBack", func(t *testing.T) {
		g := newAnalysedGame(t, 3, policyJSON(rows, 0.01))
		move, thoughts, err := ChooseMove(context.Background(), g, DefaultConfig().Local, rng)
		if err != nil {
			t.Fatal(err)
		}
		if move.IsPass() || !strings.Contains(thoughts, "policy-weighted") {
			t.Fatalf("expected weighted fallback, got %s (%s)", move, thoughts)
		}
	})

	t.Run("WeightedOnlyLegal", func(t *testing.T) {
		sparse := [][]float64{{-1, -1, -1}, {-1, 0.0004, -1}, {-1, -1, 0.0003}}
		for i := 0; i < 20; i++ {
			g := newAnalysedGame(t, 3, policyJSON(sparse, -1))
			move, _, err := ChooseMove(context.Background(), g, DefaultConfig().Weighted, rng)
			if err != nil {
				t.Fatal(err)
			}
			if gtp := move.GTP(); gtp != "B2" && gtp != "C1" {
				t.Fatalf("weighted picked illegal %s", gtp)
			}
		}
	})
}

func TestChooseMoveFailsWhenEngineDies(t *testing.T) {
	engine := &stubEngine{dead: make(chan struct{})}
	engines := map[game.Color]gameUseCase.AnalysisEngine{game.Black: engine, game.White: engine}
	g := gameUseCase.New(engines, 9, 9, 6.5, "japanese", gameUseCase.Settings{}, zaptest.NewLogger(t).Sugar())
	close(engine.dead)

	_, _, err := ChooseMove(context.Background(), g, Default{}, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ownErrors.ErrEngineDied) {
		t.Fatalf("expected engine died, got %v", err)
	}
}

func TestGenerateMovePlays(t *testing.T) {
	g := newAnalysedGame(t, 9, `{"rootInfo":{"scoreLead":0.5,"visits":10},"moveInfos":[{"move":"E5","order":0,"scoreLead":0.5}]}`)
	node, thoughts, err := GenerateMove(context.Background(), g, Default{}, rand.New(rand.NewSource(1)), zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatal(err)
	}
	move, _ := node.Move()
	if move.GTP() != "E5" || thoughts == "" || g.Current() != node || g.Board().IsEmpty(4, 4) {
		t.Fatalf("move was not played")
	}
}

func TestLineWeights(t *testing.T) {
	grid := make([][]float64, 9)
	for y := range grid {
		grid[y] = make([]float64, 9)
		for x := range grid[y] {
			grid[y][x] = 0.01
		}
	}
	weight := func(items []Item, x, y int) float64 {
		for _, it := range items {
			if it.Move.Coords == (game.Coord{X: x, Y: y}) {
				return it.Weight
			}
		}
		t.Fatalf("no item at %d,%d", x, y)
		return 0
	}

	influence := lineWeights(grid, game.Black, 9, 9, 3.5, 10, false)
	if w := weight(influence, 4, 4); w != 1 {
		t.Fatalf("centre influence weight = %v", w)
	}
	if w := weight(influence, 0, 0); math.Abs(w-1e-5) > 1e-12 {
		t.Fatalf("corner influence weight = %v", w)
	}

	territory := lineWeights(grid, game.Black, 9, 9, 3.5, 2, true)
	if w := weight(territory, 0, 0); w != 1 {
		t.Fatalf("corner territory weight = %v", w)
	}
	if w := weight(territory, 4, 4); math.Abs(w-math.Pow(0.5, 1.5)) > 1e-12 {
		t.Fatalf("centre territory weight = %v", w)
	}

	tenuki := gaussianWeights(grid, game.Black, 9, 9, game.Coord{X: 4, Y: 4}, 7.5, true)
	if w := weight(tenuki, 4, 4); w != 0 {
		t.Fatalf("tenuki must never play next to the last stone, weight %v", w)
	}
}

func TestRankPickCount(t *testing.T) {
	for _, kyu := range []float64{-2, 4, 18} {
		n := rankPickCount(kyu, 361, 300)
		if n < 1 || n > 361 {
			t.Errorf("rank %v picks %d moves", kyu, n)
		}
	}
	if weak, strong := rankPickCount(18, 361, 300), rankPickCount(-2, 361, 300); weak >= strong {
		t.Errorf("weaker ranks should pick from fewer moves: %d vs %d", weak, strong)
	}
}

func TestFromConfig(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core).Sugar()
	cfg := DefaultConfig()

	if s := FromConfig("ai:p:pick", cfg, log); s != Strategy(cfg.Pick) {
		t.Fatalf("unexpected strategy %#v", s)
	}
	if s := FromConfig("territory", cfg, log); s.Mode() != ModeTerritory {
		t.Fatalf("short mode not resolved: %s", s.Mode())
	}
	if s := FromConfig("ai:handicap", cfg, log); s != Strategy(Default{}) {
		t.Fatalf("unknown mode should fall back to default, got %#v", s)
	}
	if logs.FilterMessage("falling back to default strategy").Len() != 1 {
		t.Fatalf("fallback should be logged once")
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai.yaml")
	if err := os.WriteFile(path, []byte("jigo:\n  target_score: 2.5\npick:\n  pick_n: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Jigo.TargetScore != 2.5 || cfg.Pick.PickN != 9 {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Jigo, cfg.Pick)
	}
	if cfg.Pick.PickFrac != 0.35 || cfg.Rank.KyuRank != 4 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Pick, cfg.Rank)
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}
