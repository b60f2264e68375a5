package game

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
)

type memoryStore struct {
	mu        sync.Mutex
	snapshots map[string]string
	archive   map[string]game.GameRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		snapshots: make(map[string]string),
		archive:   make(map[string]game.GameRecord),
	}
}

func (s *memoryStore) SaveSGFToRedis(_ context.Context, gameID string, sgfText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[gameID] = sgfText
	return nil
}

func (s *memoryStore) LoadSGFFromRedis(_ context.Context, gameID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.snapshots[gameID]
	if !ok {
		return "", ownErrors.ErrGameNotFound
	}
	return text, nil
}

func (s *memoryStore) PutGameToMongoDatabase(_ context.Context, record game.GameRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive[record.ID] = record
	delete(s.snapshots, record.ID)
	return nil
}

func (s *memoryStore) GetGameFromArchiveById(_ context.Context, gameID string) (game.GameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.archive[gameID]
	if !ok {
		return game.GameRecord{}, ownErrors.ErrGameNotFound
	}
	return record, nil
}

func newTestManager(t *testing.T, store GameStore) (*Manager, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine()
	engines := map[game.Color]AnalysisEngine{game.Black: engine, game.White: engine}
	settings := Settings{MaxVisits: 10, BoardSize: 19, Komi: 6.5, Rules: "japanese"}
	return NewManager(engines, store, settings, zaptest.NewLogger(t).Sugar()), engine
}

func TestManagerCreateUsesDefaults(t *testing.T) {
	m, _ := newTestManager(t, nil)
	id, g := m.Create(context.Background(), game.CreateGameRequest{BoardSize: 9})
	if id == "" || m.Len() != 1 {
		t.Fatalf("game not registered")
	}
	sizeX, _ := g.Tree().Size()
	if sizeX != 9 || g.Tree().Komi() != 6.5 || g.Tree().Rules() != "japanese" {
		t.Fatalf("unexpected settings %d %v %s", sizeX, g.Tree().Komi(), g.Tree().Rules())
	}
	got, err := m.Get(context.Background(), id)
	if err != nil || got != g {
		t.Fatalf("Get should return the live game")
	}
	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, ownErrors.ErrGameNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManagerRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	first, _ := newTestManager(t, store)
	id, g := first.Create(ctx, game.CreateGameRequest{BoardSize: 9, Komi: 5.5})
	for _, coords := range []struct {
		player game.Color
		x, y   int
	}{{game.Black, 2, 2}, {game.White, 6, 6}, {game.Black, 2, 6}} {
		if _, err := g.Play(game.NewMove(coords.player, coords.x, coords.y), false); err != nil {
			t.Fatal(err)
		}
	}
	first.Snapshot(ctx, id)

	second, engine := newTestManager(t, store)
	restored, err := second.Get(ctx, id)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Current().Depth() != 3 || restored.Tree().Komi() != 5.5 {
		t.Fatalf("restored game differs: depth %d komi %v", restored.Current().Depth(), restored.Tree().Komi())
	}
	if restored.Board().Hash() != g.Board().Hash() {
		t.Fatalf("restored board differs")
	}
	if engine.count() != 1 || len(engine.query(t, 0).req.Moves) != 3 {
		t.Fatalf("restored position should be analysed once")
	}
}

func TestManagerArchive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	m, _ := newTestManager(t, store)
	id, g := m.Create(ctx, game.CreateGameRequest{})
	if _, err := g.Play(game.NewMove(game.Black, 15, 15), false); err != nil {
		t.Fatal(err)
	}

	record, err := m.Archive(ctx, id)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if record.MoveNumber != 1 || record.BoardSize != 19 || record.SGF != SerializeSGF(g.Tree()) {
		t.Fatalf("unexpected record %+v", record)
	}
	if m.Len() != 0 {
		t.Fatalf("archived game should leave memory")
	}
	if _, ok := store.archive[id]; !ok {
		t.Fatalf("record not stored")
	}

	back, err := m.Get(ctx, id)
	if err != nil || back.Current().Depth() != 1 {
		t.Fatalf("archived game should be restorable: %v", err)
	}
}
