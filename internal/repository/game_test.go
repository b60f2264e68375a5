package repository

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
)

func TestGameRepositoryWithoutBackends(t *testing.T) {
	repo := NewGameRepository(zaptest.NewLogger(t).Sugar(), nil, nil)
	ctx := context.Background()

	if err := repo.SaveSGFToRedis(ctx, "g1", "(;FF[4])"); err != nil {
		t.Fatalf("save without redis: %v", err)
	}
	if _, err := repo.LoadSGFFromRedis(ctx, "g1"); !errors.Is(err, ownErrors.ErrGameNotFound) {
		t.Fatalf("load without redis: %v", err)
	}
	if err := repo.PutGameToMongoDatabase(ctx, game.GameRecord{ID: "g1"}); err != nil {
		t.Fatalf("archive without mongo: %v", err)
	}
	if _, err := repo.GetGameFromArchiveById(ctx, "g1"); !errors.Is(err, ownErrors.ErrGameNotFound) {
		t.Fatalf("lookup without mongo: %v", err)
	}
}
