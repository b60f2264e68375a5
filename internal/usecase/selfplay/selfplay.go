package selfplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/bszcz/mt19937_64"
	"go.uber.org/zap"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
)

const (
	ReasonPasses     = "passes"
	ReasonMaxMoves   = "max moves"
	ReasonRepetition = "repetition"
)

type Options struct {
	Black    ai.Strategy
	White    ai.Strategy
	SizeX    int
	SizeY    int
	Komi     float64
	Rules    string
	MaxMoves int
	Seed     int64
}

type Result struct {
	Moves  int
	Reason string
	SGF    string
	// ScoreLead is the final evaluation from black's side, when the engine gave one.
	ScoreLead float64
	HasScore  bool
}

// Runner plays engine-vs-engine games with the configured strategies.
type Runner struct {
	log      *zap.SugaredLogger
	engines  map[game.Color]gameUseCase.AnalysisEngine
	settings gameUseCase.Settings
}

func NewRunner(engines map[game.Color]gameUseCase.AnalysisEngine, settings gameUseCase.Settings, log *zap.SugaredLogger) *Runner {
	return &Runner{
		log:      log,
		engines:  engines,
		settings: settings,
	}
}

func newRand(seed int64) *rand.Rand {
	rng := rand.New(mt19937_64.New())
	rng.Seed(seed)
	return rng
}

// Play runs one game until both players pass, a stone move repeats an
// earlier position, or MaxMoves moves were played.
func (r *Runner) Play(ctx context.Context, opts Options) (Result, error) {
	if opts.Black == nil {
		opts.Black = ai.Default{}
	}
	if opts.White == nil {
		opts.White = ai.Default{}
	}
	strategies := map[game.Color]ai.Strategy{game.Black: opts.Black, game.White: opts.White}
	rng := newRand(opts.Seed)

	g := gameUseCase.New(r.engines, opts.SizeX, opts.SizeY, opts.Komi, opts.Rules, r.settings, r.log)
	seen := map[uint64]bool{g.Board().Hash(): true}
	passes := 0
	reason := ReasonMaxMoves

	for moves := 0; opts.MaxMoves <= 0 || moves < opts.MaxMoves; moves++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		player := g.NextPlayer()
		strategy := strategies[player]

		move, thoughts, err := ai.ChooseMove(ctx, g, strategy, rng)
		if err != nil {
			return Result{}, fmt.Errorf("move %d: %w", moves+1, err)
		}
		if _, err := g.Play(move, false); err != nil {
			if !errors.Is(err, ownErrors.ErrIllegalMove) {
				return Result{}, err
			}
			r.log.Warnw("strategy chose an illegal move, passing instead", "mode", strategy.Mode(), "move", move.String(), "error", err)
			move = game.PassMove(player)
			if _, err := g.Play(move, false); err != nil {
				return Result{}, err
			}
		}
		r.log.Debugw("self-play move", "number", moves+1, "move", move.String(), "mode", strategy.Mode(), "thoughts", thoughts)

		if move.IsPass() {
			passes++
			if passes >= 2 {
				reason = ReasonPasses
				break
			}
			continue
		}
		passes = 0
		hash := g.Board().Hash()
		if seen[hash] {
			reason = ReasonRepetition
			break
		}
		seen[hash] = true
	}

	result := Result{
		Moves:  g.Current().Depth(),
		Reason: reason,
		SGF:    gameUseCase.SerializeSGF(g.Tree()),
	}
	if err := g.WaitForAnalysis(ctx, g.Current(), false); err == nil {
		result.ScoreLead, result.HasScore = g.Current().Score()
	}
	r.log.Infow("self-play game finished", "moves", result.Moves, "reason", result.Reason, "scoreLead", result.ScoreLead)
	return result, nil
}
