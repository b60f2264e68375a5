package game

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"katrain/internal/bootstrap"
	"katrain/internal/domain"
	"katrain/internal/domain/board"
	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	"katrain/internal/movetree"
)

// AnalysisEngine is the part of the KataGo client a game needs.
type AnalysisEngine interface {
	SendQuery(req domain.AnalysisRequest, onResult domain.ResultCallback, onError domain.ErrorCallback, speculative bool) string
	OnNewGame()
	IsIdle() bool
	Dead() <-chan struct{}
	Err() error
}

type Settings struct {
	MaxVisits     int
	FastVisits    int
	MaxTime       float64
	WideRootNoise float64
	Ownership     bool

	BoardSize int
	Komi      float64
	Rules     string
}

func SettingsFromConfig(cfg *bootstrap.Config) Settings {
	return Settings{
		MaxVisits:     cfg.MaxVisits,
		FastVisits:    cfg.FastVisits,
		MaxTime:       cfg.MaxTime,
		WideRootNoise: cfg.WideRootNoise,
		Ownership:     cfg.Ownership,
		BoardSize:     cfg.BoardSize,
		Komi:          cfg.Komi,
		Rules:         cfg.Rules,
	}
}

// Game owns the tree, the current node and the board derived from it.
// mu covers validate-and-apply only; analysis is submitted after it is released.
type Game struct {
	log      *zap.SugaredLogger
	settings Settings
	engines  map[game.Color]AnalysisEngine

	mu      sync.Mutex
	tree    *movetree.Tree
	current *movetree.Node
	board   *board.Board
}

// New starts an empty game and queues analysis of the empty board.
// engines may hold the same client for both colors.
func New(engines map[game.Color]AnalysisEngine, sizeX, sizeY int, komi float64, rules string, settings Settings, log *zap.SugaredLogger) *Game {
	g := &Game{
		log:      log,
		settings: settings,
		engines:  engines,
	}
	g.reset(movetree.New(sizeX, sizeY, komi, rules))
	g.Analyze(g.Current(), AnalysisOptions{})
	return g
}

// FromTree adopts an existing record, for example one parsed from SGF, and
// moves to the end of its main line.
func FromTree(engines map[game.Color]AnalysisEngine, tree *movetree.Tree, settings Settings, log *zap.SugaredLogger) (*Game, error) {
	g := &Game{
		log:      log,
		settings: settings,
		engines:  engines,
	}
	g.reset(tree)
	end := tree.Redo(tree.Root().ID(), tree.Len())
	if err := g.SetCurrent(end); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Game) reset(tree *movetree.Tree) {
	sizeX, sizeY := tree.Size()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tree = tree
	g.current = tree.Root()
	g.board = board.New(sizeX, sizeY)
	for _, stone := range tree.Placements() {
		_ = g.board.Play(stone, true)
	}
}

func (g *Game) Tree() *movetree.Tree {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tree
}

func (g *Game) Current() *movetree.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Board returns a copy of the current position.
func (g *Game) Board() *board.Board {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board.Clone()
}

func (g *Game) Settings() Settings {
	return g.settings
}

// Engine returns the engine analysing for player, or nil.
func (g *Game) Engine(player game.Color) AnalysisEngine {
	return g.engines[player]
}

func (g *Game) NextPlayer() game.Color {
	return g.Current().NextPlayer()
}

// Play validates move against the current board and advances to its node.
// An illegal move leaves the game exactly as it was.
func (g *Game) Play(move game.Move, ignoreKo bool) (*movetree.Node, error) {
	g.mu.Lock()
	sizeX, sizeY := g.tree.Size()
	if !move.InBounds(sizeX, sizeY) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", move, ownErrors.ErrOutOfBounds)
	}
	if err := g.board.Play(move, ignoreKo); err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", move, err)
	}
	node, created := g.tree.Play(g.current.ID(), move)
	g.current = node
	g.mu.Unlock()

	if created || (!node.HasAnalysis() && node.AnalysisErr() == nil) {
		g.Analyze(node, AnalysisOptions{})
	}
	return node, nil
}

func (g *Game) Undo(n int) *movetree.Node {
	return g.step("undo", (*movetree.Tree).Undo, n)
}

func (g *Game) Redo(n int) *movetree.Node {
	return g.step("redo", (*movetree.Tree).Redo, n)
}

// step picks the target and moves there under one lock, so a concurrent Play
// cannot land between the two.
func (g *Game) step(what string, walk func(*movetree.Tree, movetree.NodeID, int) *movetree.Node, n int) *movetree.Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	target := walk(g.tree, g.current.ID(), n)
	if err := g.setCurrentLocked(target); err != nil {
		g.log.Errorw("failed to rebuild board on "+what, "error", err)
	}
	return g.current
}

// SetCurrent jumps to node and rebuilds the board by replaying from the root.
func (g *Game) SetCurrent(node *movetree.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.setCurrentLocked(node)
}

func (g *Game) setCurrentLocked(node *movetree.Node) error {
	if node.Tree() != g.tree {
		return ownErrors.ErrOrphanedAnalysis
	}
	b, err := replay(g.tree, node)
	if err != nil {
		return err
	}
	g.board = b
	g.current = node
	return nil
}

// BoardAt replays the position at node without moving the game there.
func (g *Game) BoardAt(node *movetree.Node) (*board.Board, error) {
	return replay(node.Tree(), node)
}

func replay(tree *movetree.Tree, node *movetree.Node) (*board.Board, error) {
	sizeX, sizeY := tree.Size()
	b := board.New(sizeX, sizeY)
	for _, stone := range tree.Placements() {
		if err := b.Play(stone, true); err != nil {
			return nil, err
		}
	}
	for _, m := range tree.MovesFromRoot(node.ID()) {
		if err := b.Play(m, true); err != nil {
			return nil, fmt.Errorf("replaying %s: %w", m, err)
		}
	}
	return b, nil
}

// NewGame discards the record. Every engine forgets its outstanding queries,
// so results still in flight for the old tree are dropped as orphaned.
func (g *Game) NewGame(sizeX, sizeY int, komi float64, rules string) {
	g.reset(movetree.New(sizeX, sizeY, komi, rules))
	seen := make(map[AnalysisEngine]bool, len(g.engines))
	for _, c := range game.Players {
		e := g.engines[c]
		if e == nil || seen[e] {
			continue
		}
		seen[e] = true
		e.OnNewGame()
	}
	g.Analyze(g.Current(), AnalysisOptions{})
}

func (g *Game) isLive(tree *movetree.Tree) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tree == tree
}

// Prisoners counts the captured stones of each color on the current board.
func (g *Game) Prisoners() map[game.Color]int {
	b := g.Board()
	out := make(map[game.Color]int, 2)
	for _, c := range game.Players {
		out[c] = b.PrisonerCount(c)
	}
	return out
}
