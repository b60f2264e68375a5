package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
)

// GameStore persists games outside the process. Snapshots are overwritten
// after every change; the archive keeps finished games.
type GameStore interface {
	SaveSGFToRedis(ctx context.Context, gameID string, sgfText string) error
	LoadSGFFromRedis(ctx context.Context, gameID string) (string, error)
	PutGameToMongoDatabase(ctx context.Context, record game.GameRecord) error
	GetGameFromArchiveById(ctx context.Context, gameID string) (game.GameRecord, error)
}

type managedGame struct {
	game      *Game
	createdAt time.Time
}

// Manager keeps the live games of a server process, keyed by uuid.
type Manager struct {
	log      *zap.SugaredLogger
	store    GameStore
	engines  map[game.Color]AnalysisEngine
	settings Settings

	mu    sync.RWMutex
	games map[string]*managedGame
}

// NewManager accepts a nil store, in which case games live in memory only.
func NewManager(engines map[game.Color]AnalysisEngine, store GameStore, settings Settings, log *zap.SugaredLogger) *Manager {
	return &Manager{
		log:      log,
		store:    store,
		engines:  engines,
		settings: settings,
		games:    make(map[string]*managedGame),
	}
}

func (m *Manager) Create(ctx context.Context, req game.CreateGameRequest) (string, *Game) {
	size := req.BoardSize
	if size <= 0 {
		size = m.settings.BoardSize
	}
	komi := req.Komi
	if komi == 0 {
		komi = m.settings.Komi
	}
	rules := req.Rules
	if rules == "" {
		rules = m.settings.Rules
	}

	id := uuid.New().String()
	g := New(m.engines, size, size, komi, rules, m.settings, m.log.With("game", id))

	m.mu.Lock()
	m.games[id] = &managedGame{game: g, createdAt: time.Now()}
	m.mu.Unlock()

	m.log.Infow("game created", "game", id, "size", size, "komi", komi, "rules", rules)
	m.Snapshot(ctx, id)
	return id, g
}

// Get finds a live game, falling back to its stored snapshot.
func (m *Manager) Get(ctx context.Context, id string) (*Game, error) {
	m.mu.RLock()
	mg, ok := m.games[id]
	m.mu.RUnlock()
	if ok {
		return mg.game, nil
	}
	if m.store == nil {
		return nil, ownErrors.ErrGameNotFound
	}

	text, err := m.store.LoadSGFFromRedis(ctx, id)
	if errors.Is(err, ownErrors.ErrGameNotFound) {
		record, archErr := m.store.GetGameFromArchiveById(ctx, id)
		if archErr != nil {
			return nil, archErr
		}
		text, err = record.SGF, nil
	}
	if err != nil {
		return nil, err
	}

	tree, err := ParseSGF(text)
	if err != nil {
		return nil, err
	}
	g, err := FromTree(m.engines, tree, m.settings, m.log.With("game", id))
	if err != nil {
		return nil, err
	}
	g.Analyze(g.Current(), AnalysisOptions{})

	m.mu.Lock()
	if existing, ok := m.games[id]; ok {
		m.mu.Unlock()
		return existing.game, nil
	}
	m.games[id] = &managedGame{game: g, createdAt: time.Now()}
	m.mu.Unlock()
	m.log.Infow("game restored", "game", id, "moves", g.Current().Depth())
	return g, nil
}

// Snapshot stores the current record; failures are logged, not returned.
func (m *Manager) Snapshot(ctx context.Context, id string) {
	if m.store == nil {
		return
	}
	m.mu.RLock()
	mg, ok := m.games[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if err := m.store.SaveSGFToRedis(ctx, id, SerializeSGF(mg.game.Tree())); err != nil {
		m.log.Errorw("failed to store snapshot", "game", id, "error", err)
	}
}

// Archive writes the game to the archive and drops it from memory.
func (m *Manager) Archive(ctx context.Context, id string) (game.GameRecord, error) {
	g, err := m.Get(ctx, id)
	if err != nil {
		return game.GameRecord{}, err
	}
	createdAt := time.Now()
	m.mu.RLock()
	if mg, ok := m.games[id]; ok {
		createdAt = mg.createdAt
	}
	m.mu.RUnlock()

	tree := g.Tree()
	size, _ := tree.Size()
	record := game.GameRecord{
		ID:         id,
		SGF:        SerializeSGF(tree),
		BoardSize:  size,
		Komi:       tree.Komi(),
		Rules:      tree.Rules(),
		MoveNumber: g.Current().Depth(),
		CreatedAt:  createdAt,
		ArchivedAt: time.Now(),
	}
	if m.store != nil {
		if err := m.store.PutGameToMongoDatabase(ctx, record); err != nil {
			return game.GameRecord{}, err
		}
	}

	m.mu.Lock()
	delete(m.games, id)
	m.mu.Unlock()
	m.log.Infow("game archived", "game", id, "moves", record.MoveNumber)
	return record, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}
