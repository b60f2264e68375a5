package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
)

const (
	gamesCollection = "games"
	snapshotPrefix  = "game:"
	snapshotTTL     = 7 * 24 * time.Hour
)

// GameRepository keeps SGF snapshots of live games in Redis and finished
// games in Mongo. Either backend may be nil.
type GameRepository struct {
	log   *zap.SugaredLogger
	redis *redis.Client
	mongo *mongo.Database
}

func NewGameRepository(log *zap.SugaredLogger, redis *redis.Client, mongo *mongo.Database) *GameRepository {
	return &GameRepository{
		log:   log,
		redis: redis,
		mongo: mongo,
	}
}

func (g *GameRepository) SaveSGFToRedis(ctx context.Context, gameID string, sgfText string) error {
	if g.redis == nil {
		return nil
	}
	return g.redis.Set(ctx, snapshotPrefix+gameID, sgfText, snapshotTTL).Err()
}

func (g *GameRepository) LoadSGFFromRedis(ctx context.Context, gameID string) (string, error) {
	if g.redis == nil {
		return "", ownErrors.ErrGameNotFound
	}
	val, err := g.redis.Get(ctx, snapshotPrefix+gameID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ownErrors.ErrGameNotFound
	}
	return val, err
}

func (g *GameRepository) PutGameToMongoDatabase(ctx context.Context, record game.GameRecord) error {
	if g.mongo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := g.mongo.Collection(gamesCollection)
	if _, err := collection.InsertOne(ctx, record); err != nil {
		g.log.Errorf("failed to insert game to database: %v", err)
		return err
	}
	g.log.Infof("game archived with id: %s", record.ID)

	if g.redis != nil {
		if err := g.redis.Del(ctx, snapshotPrefix+record.ID).Err(); err != nil {
			g.log.Warnw("failed to drop snapshot of archived game", "game", record.ID, "error", err)
		}
	}
	return nil
}

func (g *GameRepository) GetGameFromArchiveById(ctx context.Context, gameID string) (game.GameRecord, error) {
	if g.mongo == nil {
		return game.GameRecord{}, ownErrors.ErrGameNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var record game.GameRecord
	err := g.mongo.Collection(gamesCollection).FindOne(ctx, bson.M{"_id": gameID}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return game.GameRecord{}, ownErrors.ErrGameNotFound
	}
	if err != nil {
		g.log.Error(err)
		return game.GameRecord{}, err
	}
	return record, nil
}
