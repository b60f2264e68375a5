package game

import (
	"fmt"
	"strconv"
	"strings"

	"katrain/internal/domain/game"
	"katrain/internal/domain/sgf"
	"katrain/internal/movetree"
)

// fixed order of the root properties, anything else follows in insertion order
var orderedKeys = []string{"FF", "GM", "SZ", "PB", "PW", "DT", "RE", "KM", "RU", "PL", "C"}

// structural keys are written from the node itself, never from its property store
var structuralKeys = map[string]bool{"B": true, "W": true, "AB": true, "AW": true}

func SerializeSGF(tree *movetree.Tree) string {
	var builder strings.Builder
	builder.WriteString("(")
	serializeGameTree(&builder, tree, tree.Root())
	builder.WriteString(")")
	return builder.String()
}

func serializeGameTree(builder *strings.Builder, tree *movetree.Tree, node *movetree.Node) {
	for {
		serializeNode(builder, tree, node)
		children := tree.Children(node)
		if len(children) == 1 {
			node = children[0]
			continue
		}
		for _, child := range children {
			builder.WriteString("(")
			serializeGameTree(builder, tree, child)
			builder.WriteString(")")
		}
		return
	}
}

func serializeNode(builder *strings.Builder, tree *movetree.Tree, node *movetree.Node) {
	_, sizeY := tree.Size()
	builder.WriteString(";")

	if move, ok := node.Move(); ok {
		writeProperty(builder, string(move.Player), move.SGF(sizeY))
	}
	if node.IsRoot() {
		var black, white []string
		for _, p := range tree.Placements() {
			if p.Player == game.Black {
				black = append(black, p.SGF(sizeY))
			} else {
				white = append(white, p.SGF(sizeY))
			}
		}
		if len(black) > 0 {
			writeProperty(builder, "AB", black...)
		}
		if len(white) > 0 {
			writeProperty(builder, "AW", white...)
		}
	}

	props := node.Properties()
	used := make(map[string]bool)
	for _, key := range orderedKeys {
		if props.Has(key) {
			used[key] = true
			writeProperty(builder, key, props.Get(key)...)
		}
	}
	for _, key := range props.Keys() {
		if !used[key] && !structuralKeys[key] {
			writeProperty(builder, key, props.Get(key)...)
		}
	}
}

func writeProperty(builder *strings.Builder, key string, values ...string) {
	builder.WriteString(key)
	for _, v := range values {
		builder.WriteString("[")
		builder.WriteString(escapeValue(v))
		builder.WriteString("]")
	}
}

func escapeValue(v string) string {
	if !strings.ContainsAny(v, `]\`) {
		return v
	}
	var sb strings.Builder
	for _, r := range v {
		if r == ']' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type sgfNode struct {
	props    sgf.Properties
	children []*sgfNode
}

type sgfParser struct {
	text string
	pos  int
}

// ParseSGF rebuilds a move tree, variations included. Setup stones are only
// honoured on the root; nodes without a move are folded into their parent.
func ParseSGF(text string) (*movetree.Tree, error) {
	p := &sgfParser{text: text}
	p.skipSpace()
	root, err := p.parseGameTree()
	if err != nil {
		return nil, err
	}
	return buildTree(root)
}

func (p *sgfParser) skipSpace() {
	for p.pos < len(p.text) && strings.ContainsRune(" \t\r\n", rune(p.text[p.pos])) {
		p.pos++
	}
}

func (p *sgfParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.text) || p.text[p.pos] != c {
		return fmt.Errorf("sgf: expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

func (p *sgfParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.text) {
		return 0
	}
	return p.text[p.pos]
}

func (p *sgfParser) parseGameTree() (*sgfNode, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var first, last *sgfNode
	for p.peek() == ';' {
		p.pos++
		node, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = node
		} else {
			last.children = append(last.children, node)
		}
		last = node
	}
	if first == nil {
		return nil, fmt.Errorf("sgf: empty game tree at offset %d", p.pos)
	}
	for p.peek() == '(' {
		child, err := p.parseGameTree()
		if err != nil {
			return nil, err
		}
		last.children = append(last.children, child)
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return first, nil
}

func (p *sgfParser) parseNode() (*sgfNode, error) {
	node := &sgfNode{}
	for {
		c := p.peek()
		if c < 'A' || c > 'Z' {
			return node, nil
		}
		start := p.pos
		for p.pos < len(p.text) && p.text[p.pos] >= 'A' && p.text[p.pos] <= 'Z' {
			p.pos++
		}
		key := p.text[start:p.pos]
		if p.peek() != '[' {
			return nil, fmt.Errorf("sgf: property %s without value at offset %d", key, p.pos)
		}
		for p.peek() == '[' {
			p.pos++
			value, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			node.props.Add(key, value)
		}
	}
}

func (p *sgfParser) parseValue() (string, error) {
	var sb strings.Builder
	for p.pos < len(p.text) {
		c := p.text[p.pos]
		p.pos++
		switch c {
		case ']':
			return sb.String(), nil
		case '\\':
			if p.pos < len(p.text) {
				if p.text[p.pos] != '\n' {
					sb.WriteByte(p.text[p.pos])
				}
				p.pos++
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", fmt.Errorf("sgf: unterminated value")
}

func parseSize(v string) (int, int, error) {
	if x, y, ok := strings.Cut(v, ":"); ok {
		sx, err := strconv.Atoi(x)
		if err != nil {
			return 0, 0, err
		}
		sy, err := strconv.Atoi(y)
		return sx, sy, err
	}
	s, err := strconv.Atoi(v)
	return s, s, err
}

var rootKeys = map[string]bool{"FF": true, "GM": true, "SZ": true, "KM": true, "RU": true, "AB": true, "AW": true, "B": true, "W": true}

func buildTree(root *sgfNode) (*movetree.Tree, error) {
	sizeX, sizeY := 19, 19
	if v, ok := root.props.First("SZ"); ok {
		var err error
		if sizeX, sizeY, err = parseSize(v); err != nil {
			return nil, fmt.Errorf("sgf: bad SZ %q: %w", v, err)
		}
	}
	komi := 6.5
	if v, ok := root.props.First("KM"); ok {
		k, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("sgf: bad KM %q: %w", v, err)
		}
		komi = k
	}
	rules := "japanese"
	if v, ok := root.props.First("RU"); ok && v != "" {
		rules = v
	}

	tree := movetree.New(sizeX, sizeY, komi, rules)
	for _, color := range game.Players {
		for _, coords := range root.props.Get("A" + string(color)) {
			stone, err := game.FromSGF(coords, sizeY, color)
			if err != nil {
				return nil, err
			}
			if !stone.IsPass() {
				tree.AddPlacement(stone)
			}
		}
	}
	for _, key := range root.props.Keys() {
		if !rootKeys[key] {
			tree.Root().SetProperty(key, root.props.Get(key)...)
		}
	}

	start := tree.Root()
	if hasMove(root) {
		node, err := addNode(tree, start, root, sizeY)
		if err != nil {
			return nil, err
		}
		start = node
	}
	for _, child := range root.children {
		if err := addBranch(tree, start, child, sizeY); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func hasMove(n *sgfNode) bool {
	return n.props.Has("B") || n.props.Has("W")
}

func addBranch(tree *movetree.Tree, parent *movetree.Node, n *sgfNode, sizeY int) error {
	node := parent
	if hasMove(n) {
		var err error
		if node, err = addNode(tree, parent, n, sizeY); err != nil {
			return err
		}
	}
	for _, child := range n.children {
		if err := addBranch(tree, node, child, sizeY); err != nil {
			return err
		}
	}
	return nil
}

func addNode(tree *movetree.Tree, parent *movetree.Node, n *sgfNode, sizeY int) (*movetree.Node, error) {
	color := game.Black
	coords, _ := n.props.First("B")
	if !n.props.Has("B") {
		color = game.White
		coords, _ = n.props.First("W")
	}
	move, err := game.FromSGF(coords, sizeY, color)
	if err != nil {
		return nil, err
	}
	node, _ := tree.Play(parent.ID(), move)
	for _, key := range n.props.Keys() {
		if !structuralKeys[key] {
			node.SetProperty(key, n.props.Get(key)...)
		}
	}
	return node, nil
}
