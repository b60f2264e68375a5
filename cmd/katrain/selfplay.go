package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"katrain/internal/delivery/gtp"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
	"katrain/internal/usecase/selfplay"
)

type selfPlayFlags struct {
	games    int
	black    string
	white    string
	size     int
	maxMoves int
	seed     int64
	outDir   string
}

func newSelfPlayCommand(opts *rootOptions) *cobra.Command {
	f := &selfPlayFlags{}
	cmd := &cobra.Command{
		Use:   "selfplay",
		Short: "Let two strategies play each other and write the games as SGF",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.log.Sync()
			return a.selfPlay(cmd, f)
		},
	}
	cmd.Flags().IntVar(&f.games, "games", 1, "number of games")
	cmd.Flags().StringVar(&f.black, "black", ai.ModeDefault, "strategy for black")
	cmd.Flags().StringVar(&f.white, "white", ai.ModeDefault, "strategy for white")
	cmd.Flags().IntVar(&f.size, "size", 0, "board size, 0 for the configured size")
	cmd.Flags().IntVar(&f.maxMoves, "max-moves", 400, "stop a game after this many moves")
	cmd.Flags().Int64Var(&f.seed, "seed", 1, "seed of the first game; later games count up from it")
	cmd.Flags().StringVar(&f.outDir, "out", ".", "directory for the SGF files")
	return cmd
}

func (a *app) selfPlay(cmd *cobra.Command, f *selfPlayFlags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel, a.log)

	if err := os.MkdirAll(f.outDir, 0o755); err != nil {
		return err
	}
	size := f.size
	if size <= 0 {
		size = a.cfg.BoardSize
	}

	engine, engines := a.startEngine()
	defer engine.Close()
	runner := selfplay.NewRunner(engines, gameUseCase.SettingsFromConfig(a.cfg), a.log)

	opts := selfplay.Options{
		Black:    ai.FromConfig(f.black, a.aiConfig, a.log),
		White:    ai.FromConfig(f.white, a.aiConfig, a.log),
		SizeX:    size,
		SizeY:    size,
		Komi:     a.cfg.Komi,
		Rules:    a.cfg.Rules,
		MaxMoves: f.maxMoves,
	}
	for i := 0; i < f.games; i++ {
		opts.Seed = f.seed + int64(i)
		result, err := runner.Play(ctx, opts)
		if err != nil {
			a.log.Errorw("self-play game failed", "game", i+1, "error", err)
			return err
		}

		path := filepath.Join(f.outDir, uuid.NewString()+".sgf")
		if err := os.WriteFile(path, []byte(result.SGF), 0o644); err != nil {
			return err
		}
		score := "?"
		if result.HasScore {
			score = gtp.FormatScore(result.ScoreLead)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d moves\t%s\t%s\n", path, result.Moves, result.Reason, score)
	}
	return nil
}
