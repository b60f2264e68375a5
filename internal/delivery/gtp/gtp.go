// Package gtp speaks the Go Text Protocol (version 2) on top of a Game, so
// that GTP controllers can play against the configured strategy.
package gtp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
	"katrain/internal/usecase/ai"
	gameUseCase "katrain/internal/usecase/game"
)

const (
	Name            = "katrain"
	Version         = "1.0"
	protocolVersion = "2"

	minBoardSize = 2
	maxBoardSize = 25
)

var errQuit = errors.New("quit")

type command func(ctx context.Context, args []string) (string, error)

type Session struct {
	log      *zap.SugaredLogger
	game     *gameUseCase.Game
	strategy ai.Strategy
	rng      *rand.Rand
	timeout  time.Duration

	// komi set while moves are on the board applies from the next clear_board.
	komi     float64
	commands map[string]command
}

func NewSession(g *gameUseCase.Game, strategy ai.Strategy, rng *rand.Rand, timeout time.Duration, log *zap.SugaredLogger) *Session {
	s := &Session{
		log:      log,
		game:     g,
		strategy: strategy,
		rng:      rng,
		timeout:  timeout,
		komi:     g.Tree().Komi(),
	}
	s.commands = map[string]command{
		"protocol_version": s.constant(protocolVersion),
		"name":             s.constant(Name),
		"version":          s.constant(Version),
		"known_command":    s.knownCommand,
		"list_commands":    s.listCommands,
		"boardsize":        s.boardSize,
		"clear_board":      s.clearBoard,
		"komi":             s.setKomi,
		"play":             s.play,
		"genmove":          s.genMove,
		"undo":             s.undo,
		"showboard":        s.showBoard,
		"final_score":      s.finalScore,
		"quit":             s.quit,
	}
	return s
}

// Run answers commands from in until quit, end of input or ctx ends.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	w := bufio.NewWriter(out)
	defer w.Flush()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, name, args, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}

		result, err := s.execute(ctx, name, args)
		quit := errors.Is(err, errQuit)
		if err != nil && !quit {
			s.log.Debugw("gtp command failed", "command", name, "error", err)
			fmt.Fprintf(w, "?%s %s\n\n", id, err)
		} else {
			fmt.Fprintf(w, "=%s %s\n\n", id, result)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (s *Session) execute(ctx context.Context, name string, args []string) (string, error) {
	cmd, ok := s.commands[name]
	if !ok {
		return "", errors.New("unknown command")
	}
	return cmd(ctx, args)
}

// parseLine drops comments and control characters and splits off the optional numeric id.
func parseLine(line string) (id, name string, args []string, ok bool) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	line = strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 32 || r == 127:
			return -1
		}
		return r
	}, line)

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", nil, false
	}
	if _, err := strconv.Atoi(fields[0]); err == nil {
		id, fields = fields[0], fields[1:]
		if len(fields) == 0 {
			return "", "", nil, false
		}
	}
	return id, strings.ToLower(fields[0]), fields[1:], true
}

func (s *Session) constant(v string) command {
	return func(context.Context, []string) (string, error) { return v, nil }
}

func (s *Session) knownCommand(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("syntax error")
	}
	_, ok := s.commands[strings.ToLower(args[0])]
	return strconv.FormatBool(ok), nil
}

func (s *Session) listCommands(context.Context, []string) (string, error) {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

func (s *Session) boardSize(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("syntax error")
	}
	size, err := strconv.Atoi(args[0])
	if err != nil {
		return "", errors.New("syntax error")
	}
	if size < minBoardSize || size > maxBoardSize {
		return "", errors.New("unacceptable size")
	}
	s.game.NewGame(size, size, s.komi, s.game.Tree().Rules())
	return "", nil
}

func (s *Session) clearBoard(context.Context, []string) (string, error) {
	tree := s.game.Tree()
	sizeX, sizeY := tree.Size()
	s.game.NewGame(sizeX, sizeY, s.komi, tree.Rules())
	return "", nil
}

func (s *Session) setKomi(_ context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("syntax error")
	}
	komi, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return "", errors.New("syntax error")
	}
	s.komi = komi
	tree := s.game.Tree()
	if tree.Len() == 1 && len(tree.Placements()) == 0 {
		sizeX, sizeY := tree.Size()
		s.game.NewGame(sizeX, sizeY, komi, tree.Rules())
	} else {
		s.log.Infow("komi applies from the next game", "komi", komi)
	}
	return "", nil
}

func (s *Session) play(_ context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", errors.New("syntax error")
	}
	color, err := game.ParseColor(args[0])
	if err != nil {
		return "", errors.New("syntax error")
	}
	move, err := game.FromGTP(args[1], color)
	if err != nil {
		return "", errors.New("syntax error")
	}
	if _, err := s.game.Play(move, false); err != nil {
		if errors.Is(err, ownErrors.ErrIllegalMove) {
			return "", errors.New("illegal move")
		}
		return "", err
	}
	return "", nil
}

// genMove plays for color; a request for the side not to move first passes for the other side.
func (s *Session) genMove(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("syntax error")
	}
	color, err := game.ParseColor(args[0])
	if err != nil {
		return "", errors.New("syntax error")
	}
	if next := s.game.NextPlayer(); next != color {
		if _, err := s.game.Play(game.PassMove(next), false); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	node, thoughts, err := ai.GenerateMove(ctx, s.game, s.strategy, s.rng, s.log)
	if err != nil {
		s.log.Errorw("failed to generate move", "mode", s.strategy.Mode(), "error", err)
		return "", fmt.Errorf("cannot generate move: %v", err)
	}
	move, _ := node.Move()
	s.log.Infow("generated move", "move", move.GTP(), "thoughts", thoughts)
	return move.GTP(), nil
}

func (s *Session) undo(context.Context, []string) (string, error) {
	if s.game.Current().IsRoot() {
		return "", errors.New("cannot undo")
	}
	s.game.Undo(1)
	return "", nil
}

func (s *Session) showBoard(context.Context, []string) (string, error) {
	return "\n" + s.game.Board().String(), nil
}

// finalScore reports the engine's score estimate for the current position.
func (s *Session) finalScore(ctx context.Context, _ []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	node := s.game.Current()
	if err := s.game.WaitForAnalysis(ctx, node, false); err != nil {
		return "", fmt.Errorf("cannot score: %v", err)
	}
	score, ok := node.Score()
	if !ok {
		return "", errors.New("cannot score")
	}
	return FormatScore(score), nil
}

// FormatScore renders a black-side score lead as B+x, W+x or 0.
func FormatScore(lead float64) string {
	switch {
	case lead > 0:
		return "B+" + strconv.FormatFloat(lead, 'f', 1, 64)
	case lead < 0:
		return "W+" + strconv.FormatFloat(-lead, 'f', 1, 64)
	}
	return "0"
}

func (s *Session) quit(context.Context, []string) (string, error) {
	return "", errQuit
}
