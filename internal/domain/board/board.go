// Package board tracks stones, chains and prisoners and decides move legality.
package board

import (
	"sort"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"

	"katrain/internal/domain/game"
	ownErrors "katrain/internal/errors"
)

const empty = -1

// Board is the derived position: never persisted, rebuilt by replaying moves from the root.
// Chain ids are indices into chains and are never reused; a captured or absorbed
// chain stays in the list with no stones.
type Board struct {
	sizeX       int
	sizeY       int
	cells       []int
	chains      [][]game.Move
	prisoners   []game.Move
	lastCapture []game.Move
}

type snapshot struct {
	cells       []int
	chains      [][]game.Move
	prisoners   []game.Move
	lastCapture []game.Move
}

func New(sizeX, sizeY int) *Board {
	cells := make([]int, sizeX*sizeY)
	for i := range cells {
		cells[i] = empty
	}
	return &Board{
		sizeX: sizeX,
		sizeY: sizeY,
		cells: cells,
	}
}

// Replay builds a board from a move list known to be valid, so ko is not checked.
func Replay(sizeX, sizeY int, moves []game.Move) (*Board, error) {
	b := New(sizeX, sizeY)
	for _, m := range moves {
		if err := b.Play(m, true); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Board) Size() (int, int) {
	return b.sizeX, b.sizeY
}

// Play validates the move and applies it. On any error the board is left exactly as it was.
func (b *Board) Play(move game.Move, ignoreKo bool) error {
	if !move.InBounds(b.sizeX, b.sizeY) {
		return ownErrors.ErrOutOfBounds
	}

	koOrSnapback := len(b.lastCapture) == 1 && b.lastCapture[0].Equal(move)

	if move.Pass {
		b.lastCapture = nil
		return nil
	}

	idx := b.index(move.Coords)
	if b.cells[idx] != empty {
		return ownErrors.ErrSpaceOccupied
	}

	saved := b.save()

	var ownChains, oppChains []int
	for _, id := range b.neighbourChains([]game.Move{move}) {
		if b.chains[id][0].Player == move.Player {
			ownChains = append(ownChains, id)
		} else {
			oppChains = append(oppChains, id)
		}
	}

	thisChain := len(b.chains)
	if len(ownChains) > 0 {
		thisChain = ownChains[0]
		for _, absorbed := range ownChains[1:] {
			for _, stone := range b.chains[absorbed] {
				b.cells[b.index(stone.Coords)] = thisChain
			}
			b.chains[thisChain] = append(b.chains[thisChain], b.chains[absorbed]...)
			b.chains[absorbed] = nil
		}
		b.chains[thisChain] = append(b.chains[thisChain], move)
	} else {
		b.chains = append(b.chains, []game.Move{move})
	}
	b.cells[idx] = thisChain

	var captured []game.Move
	for _, id := range oppChains {
		if b.hasLiberty(b.chains[id]) {
			continue
		}
		captured = append(captured, b.chains[id]...)
		for _, stone := range b.chains[id] {
			b.cells[b.index(stone.Coords)] = empty
		}
		b.chains[id] = nil
	}
	b.lastCapture = captured

	if koOrSnapback && len(captured) == 1 && !ignoreKo {
		b.restore(saved)
		return ownErrors.ErrKo
	}
	b.prisoners = append(b.prisoners, captured...)

	if !b.hasLiberty(b.chains[thisChain]) {
		b.restore(saved)
		return ownErrors.ErrSuicide
	}
	return nil
}

func (b *Board) index(c game.Coord) int {
	return c.Y*b.sizeX + c.X
}

func (b *Board) adjacent(c game.Coord) []game.Coord {
	out := make([]game.Coord, 0, 4)
	for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		x, y := c.X+d[0], c.Y+d[1]
		if x >= 0 && x < b.sizeX && y >= 0 && y < b.sizeY {
			out = append(out, game.Coord{X: x, Y: y})
		}
	}
	return out
}

// neighbourChains returns the distinct chain ids touching the stones, sorted.
func (b *Board) neighbourChains(stones []game.Move) []int {
	seen := make(map[int]struct{}, 4)
	for _, s := range stones {
		for _, c := range b.adjacent(s.Coords) {
			if id := b.cells[b.index(c)]; id != empty {
				seen[id] = struct{}{}
			}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (b *Board) hasLiberty(stones []game.Move) bool {
	for _, s := range stones {
		for _, c := range b.adjacent(s.Coords) {
			if b.cells[b.index(c)] == empty {
				return true
			}
		}
	}
	return false
}

// save keeps slice headers only; chains are never mutated in place, only replaced or appended to.
func (b *Board) save() snapshot {
	return snapshot{
		cells:       append([]int(nil), b.cells...),
		chains:      append([][]game.Move(nil), b.chains...),
		prisoners:   b.prisoners,
		lastCapture: b.lastCapture,
	}
}

func (b *Board) restore(s snapshot) {
	b.cells = s.cells
	b.chains = s.chains
	b.prisoners = s.prisoners
	b.lastCapture = s.lastCapture
}

func (b *Board) Clone() *Board {
	chains := make([][]game.Move, len(b.chains))
	for i, c := range b.chains {
		chains[i] = append([]game.Move(nil), c...)
	}
	return &Board{
		sizeX:       b.sizeX,
		sizeY:       b.sizeY,
		cells:       append([]int(nil), b.cells...),
		chains:      chains,
		prisoners:   append([]game.Move(nil), b.prisoners...),
		lastCapture: append([]game.Move(nil), b.lastCapture...),
	}
}

// ChainID returns the chain occupying (x, y), or -1 for an empty or off-board point.
func (b *Board) ChainID(x, y int) int {
	if x < 0 || x >= b.sizeX || y < 0 || y >= b.sizeY {
		return empty
	}
	return b.cells[y*b.sizeX+x]
}

func (b *Board) Color(x, y int) (game.Color, bool) {
	id := b.ChainID(x, y)
	if id == empty {
		return "", false
	}
	return b.chains[id][0].Player, true
}

func (b *Board) IsEmpty(x, y int) bool {
	return b.ChainID(x, y) == empty
}

// Chains returns a copy of every chain ever created, including emptied ones.
func (b *Board) Chains() [][]game.Move {
	out := make([][]game.Move, len(b.chains))
	for i, c := range b.chains {
		out[i] = append([]game.Move(nil), c...)
	}
	return out
}

// Liberties counts the distinct empty points adjacent to a chain.
func (b *Board) Liberties(chainID int) int {
	if chainID < 0 || chainID >= len(b.chains) {
		return 0
	}
	libs := make(map[int]struct{})
	for _, s := range b.chains[chainID] {
		for _, c := range b.adjacent(s.Coords) {
			if i := b.index(c); b.cells[i] == empty {
				libs[i] = struct{}{}
			}
		}
	}
	return len(libs)
}

func (b *Board) Prisoners() []game.Move {
	return append([]game.Move(nil), b.prisoners...)
}

func (b *Board) LastCapture() []game.Move {
	return append([]game.Move(nil), b.lastCapture...)
}

// PrisonerCount is the number of captured stones of the given color.
func (b *Board) PrisonerCount(color game.Color) int {
	n := 0
	for _, p := range b.prisoners {
		if p.Player == color {
			n++
		}
	}
	return n
}

// Stones lists the stones on the board, bottom row first.
func (b *Board) Stones() []game.Move {
	var out []game.Move
	for y := 0; y < b.sizeY; y++ {
		for x := 0; x < b.sizeX; x++ {
			if color, ok := b.Color(x, y); ok {
				out = append(out, game.NewMove(color, x, y))
			}
		}
	}
	return out
}

// Hash fingerprints the stone layout.
func (b *Board) Hash() uint64 {
	buf := make([]byte, len(b.cells))
	for i, id := range b.cells {
		switch {
		case id == empty:
			buf[i] = '.'
		case b.chains[id][0].Player == game.Black:
			buf[i] = 'X'
		default:
			buf[i] = 'O'
		}
	}
	return xxhash.Checksum64(buf)
}

func (b *Board) String() string {
	const columns = "ABCDEFGHJKLMNOPQRSTUVWXYZ"
	var sb strings.Builder
	sb.WriteString("   ")
	for x := 0; x < b.sizeX && x < len(columns); x++ {
		sb.WriteByte(' ')
		sb.WriteByte(columns[x])
	}
	for y := b.sizeY - 1; y >= 0; y-- {
		sb.WriteByte('\n')
		row := strconv.Itoa(y + 1)
		sb.WriteString(strings.Repeat(" ", 3-len(row)))
		sb.WriteString(row)
		for x := 0; x < b.sizeX; x++ {
			sb.WriteByte(' ')
			color, ok := b.Color(x, y)
			switch {
			case !ok:
				sb.WriteByte('.')
			case color == game.Black:
				sb.WriteByte('X')
			default:
				sb.WriteByte('O')
			}
		}
	}
	return sb.String()
}
