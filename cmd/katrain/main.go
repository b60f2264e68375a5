package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"katrain/internal/bootstrap"
	"katrain/internal/domain/game"
	"katrain/internal/repository"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
)

type rootOptions struct {
	configPath string
	debug      bool
}

// app is what every subcommand needs once flags are parsed.
type app struct {
	cfg      *bootstrap.Config
	log      *zap.SugaredLogger
	aiConfig ai.Config
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "katrain",
		Short:        "KataGo analysis and teaching server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (.env or yaml); environment variables override it")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "development logging at debug level")

	cmd.AddCommand(
		newServeCommand(opts),
		newGTPCommand(opts),
		newSelfPlayCommand(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*app, error) {
	cfg, err := bootstrap.Setup(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("setup configuration: %w", err)
	}
	log, err := NewLogger(o.debug, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	aiConfig, err := ai.LoadConfig(cfg.AIConfigPath)
	if err != nil {
		log.Errorw("failed to load ai config", "path", cfg.AIConfigPath, "error", err)
		return nil, err
	}
	return &app{cfg: cfg, log: log, aiConfig: aiConfig}, nil
}

// NewLogger logs JSON to stderr, or readable debug output with debug set.
func NewLogger(debug bool, level string) (*zap.SugaredLogger, error) {
	zapCfg := zap.NewProductionConfig()
	if debug {
		zapCfg = zap.NewDevelopmentConfig()
	} else if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Sugar(), nil
}

// startEngine launches one KataGo process that analyses for both colors.
func (a *app) startEngine() (*repository.KatagoClient, map[game.Color]gameUseCase.AnalysisEngine) {
	engine := repository.NewKatagoClient(a.cfg, a.log)
	return engine, map[game.Color]gameUseCase.AnalysisEngine{
		game.Black: engine,
		game.White: engine,
	}
}

func handleShutdown(cancelFunc context.CancelFunc, log *zap.SugaredLogger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("Received shutdown signal")
	cancelFunc()
}
