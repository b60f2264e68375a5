package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"katrain/internal/adapters"
	"katrain/internal/bootstrap"
	gameDelivery "katrain/internal/delivery/game"
	"katrain/internal/delivery/health"
	ownMiddleware "katrain/internal/middleware"
	"katrain/internal/repository"
	gameUseCase "katrain/internal/usecase/game"
)

type dataBaseAdapters struct {
	redisAdapter *adapters.AdapterRedis
	mongoAdapter *adapters.AdapterMongo
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP/WebSocket API and the gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.load()
			if err != nil {
				return err
			}
			defer a.log.Sync()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go handleShutdown(cancel, a.log)

	databaseAdapters, err := initDatabaseAdapters(ctx, a.log, a.cfg)
	if err != nil {
		return err
	}
	defer databaseAdapters.mongoAdapter.Close(context.Background())
	defer databaseAdapters.redisAdapter.Close(context.Background())

	engine, engines := a.startEngine()
	defer engine.Close()

	store := repository.NewGameRepository(a.log, databaseAdapters.redisAdapter.GetClient(), databaseAdapters.mongoAdapter.Database)
	manager := gameUseCase.NewManager(engines, store, gameUseCase.SettingsFromConfig(a.cfg), a.log)

	checker := health.NewChecker(a.log)
	checker.Watch(ctx, engine)
	grpcServer := grpc.NewServer()
	checker.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+a.cfg.GrpcPort)
	if err != nil {
		return fmt.Errorf("listen grpc port %s: %w", a.cfg.GrpcPort, err)
	}
	go func() {
		a.log.Infof("gRPC health is running on port %s", a.cfg.GrpcPort)
		if err := grpcServer.Serve(lis); err != nil {
			a.log.Errorw("grpc server stopped", "error", err)
		}
	}()

	r := chi.NewRouter()
	if a.cfg.IsLocalCors {
		r.Use(ownMiddleware.CORS)
	}
	r.Use(middleware.Logger)
	gameDelivery.NewGameHandler(*a.cfg, a.log, manager, a.aiConfig).Router(r)

	server := &http.Server{Addr: ":" + a.cfg.ServerPort, Handler: r}
	go func() {
		<-ctx.Done()
		checker.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.log.Warnw("http shutdown", "error", err)
		}
		grpcServer.GracefulStop()
	}()

	a.log.Infof("Server is running on port %s", a.cfg.ServerPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Errorw("Failed to start server", "error", err)
		return err
	}
	a.log.Infow("server stopped", "games", manager.Len())
	return nil
}

func initDatabaseAdapters(ctx context.Context, log *zap.SugaredLogger, cfg *bootstrap.Config) (*dataBaseAdapters, error) {
	mongoAdapter := adapters.NewAdapterMongo(cfg, log)
	if err := mongoAdapter.Init(ctx); err != nil {
		log.Errorw("failed to initialize mongo", "error", err)
		return nil, err
	}

	redisAdapter := adapters.NewAdapterRedis(cfg, log)
	if err := redisAdapter.Init(ctx); err != nil {
		log.Errorw("failed to initialize redis", "error", err)
		_ = mongoAdapter.Close(ctx)
		return nil, err
	}

	log.Info("database adapters initialized")
	return &dataBaseAdapters{
		redisAdapter: redisAdapter,
		mongoAdapter: mongoAdapter,
	}, nil
}
