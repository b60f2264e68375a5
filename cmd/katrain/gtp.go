package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"katrain/internal/delivery/gtp"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
)

func newGTPCommand(opts *rootOptions) *cobra.Command {
	var (
		strategy string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "gtp",
		Short: "Play over the Go Text Protocol on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.log.Sync()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go handleShutdown(cancel, a.log)

			engine, engines := a.startEngine()
			defer engine.Close()

			settings := gameUseCase.SettingsFromConfig(a.cfg)
			g := gameUseCase.New(engines, a.cfg.BoardSize, a.cfg.BoardSize, a.cfg.Komi, a.cfg.Rules, settings, a.log)
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			session := gtp.NewSession(g, ai.FromConfig(strategy, a.aiConfig, a.log), rng, timeout, a.log)
			return session.Run(ctx, os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", ai.ModeDefault, "move selection strategy for genmove")
	cmd.Flags().DurationVar(&timeout, "move-timeout", time.Minute, "how long genmove waits for the engine")
	return cmd
}
