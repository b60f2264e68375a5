package game

import (
	"fmt"
	"strconv"
	"strings"

	ownErrors "katrain/internal/errors"
)

// Color is the player to move, serialized the way KataGo and SGF expect it.
type Color string

const (
	Black Color = "B"
	White Color = "W"
)

var Players = [2]Color{Black, White}

func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

// Sign is +1 for black and -1 for white; scores are reported from black's side.
func (c Color) Sign() float64 {
	if c == White {
		return -1
	}
	return 1
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "black":
		return Black, nil
	case "w", "white":
		return White, nil
	}
	return "", fmt.Errorf("unknown color %q", s)
}

type Coord struct {
	X int
	Y int
}

// Move is immutable; a pass carries zero coordinates so that == compares by (player, coords).
type Move struct {
	Player Color
	Coords Coord
	Pass   bool
}

const gtpColumns = "ABCDEFGHJKLMNOPQRSTUVWXYZ"

func NewMove(player Color, x, y int) Move {
	return Move{Player: player, Coords: Coord{X: x, Y: y}}
}

func PassMove(player Color) Move {
	return Move{Player: player, Pass: true}
}

func (m Move) IsPass() bool {
	return m.Pass
}

func (m Move) Equal(other Move) bool {
	if m.Player != other.Player || m.Pass != other.Pass {
		return false
	}
	return m.Pass || m.Coords == other.Coords
}

// InBounds reports whether a non-pass move lies on a board of the given size.
func (m Move) InBounds(sizeX, sizeY int) bool {
	if m.Pass {
		return true
	}
	return m.Coords.X >= 0 && m.Coords.X < sizeX && m.Coords.Y >= 0 && m.Coords.Y < sizeY
}

func (m Move) GTP() string {
	if m.Pass {
		return "pass"
	}
	if m.Coords.X < 0 || m.Coords.X >= len(gtpColumns) {
		return "??"
	}
	return string(gtpColumns[m.Coords.X]) + strconv.Itoa(m.Coords.Y+1)
}

// SGF encodes the move with rows counted from the top; a pass is the empty value.
func (m Move) SGF(sizeY int) string {
	if m.Pass {
		return ""
	}
	return string(rune('a'+m.Coords.X)) + string(rune('a'+sizeY-1-m.Coords.Y))
}

func (m Move) String() string {
	return string(m.Player) + " " + m.GTP()
}

func FromGTP(coords string, player Color) (Move, error) {
	coords = strings.ToUpper(strings.TrimSpace(coords))
	if coords == "PASS" {
		return PassMove(player), nil
	}
	if len(coords) < 2 {
		return Move{}, fmt.Errorf("%w: %q", ownErrors.ErrInvalidCoordinate, coords)
	}
	x := strings.IndexByte(gtpColumns, coords[0])
	if x < 0 {
		return Move{}, fmt.Errorf("%w: %q", ownErrors.ErrInvalidCoordinate, coords)
	}
	row, err := strconv.Atoi(coords[1:])
	if err != nil || row < 1 {
		return Move{}, fmt.Errorf("%w: %q", ownErrors.ErrInvalidCoordinate, coords)
	}
	return NewMove(player, x, row-1), nil
}

func FromSGF(coords string, sizeY int, player Color) (Move, error) {
	if coords == "" || (coords == "tt" && sizeY <= 19) {
		return PassMove(player), nil
	}
	if len(coords) != 2 {
		return Move{}, fmt.Errorf("%w: sgf %q", ownErrors.ErrInvalidCoordinate, coords)
	}
	x := int(coords[0] - 'a')
	y := sizeY - 1 - int(coords[1]-'a')
	if x < 0 || x >= 26 || y < 0 || y >= sizeY {
		return Move{}, fmt.Errorf("%w: sgf %q", ownErrors.ErrInvalidCoordinate, coords)
	}
	return NewMove(player, x, y), nil
}
