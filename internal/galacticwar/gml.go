package galacticwar

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Legacy scenario files are GML: nested key-value lists with int, real and
// string atoms, XML-entity escaping for non-ASCII text, and a couple of
// quirks inherited from the tool that produced them (repeated keys become
// lists, a "_networkx_list_start" marker denotes a single-element list).

type gmlTokenKind int

const (
	gmlKey gmlTokenKind = iota
	gmlReal
	gmlInt
	gmlString
	gmlDictStart
	gmlDictEnd
	gmlEOF
)

type gmlToken struct {
	kind gmlTokenKind
	text string
	real float64
	num  int
	line int
	pos  int
}

// listStartMarker flags a list of length one in files written by the old
// tooling.
const listStartMarker = "_networkx_list_start"

// Pattern order matters: bare INF and NAN tokenize as keys and are handled
// contextually by the parser, while +INF and -INF are reals.
var (
	gmlKeyPattern    = regexp.MustCompile(`^[A-Za-z][0-9A-Za-z_]*`)
	gmlRealPattern   = regexp.MustCompile(`^[+-]?(?:[0-9]*\.[0-9]+|[0-9]+\.[0-9]*|INF)(?:[Ee][+-]?[0-9]+)?`)
	gmlIntPattern    = regexp.MustCompile(`^[+-]?[0-9]+`)
	gmlStringPattern = regexp.MustCompile(`^".*?"`)
	gmlSkipPattern   = regexp.MustCompile(`^(?:#.*$|\s+)`)
	gmlEntityPattern = regexp.MustCompile(`&(?:[0-9A-Za-z]+|#(?:[0-9]+|x[0-9A-Fa-f]+));`)
)

var gmlNamedEntities = map[string]rune{
	"amp":  '&',
	"quot": '"',
	"apos": '\'',
	"lt":   '<',
	"gt":   '>',
}

// unescapeEntities replaces XML character references with the characters
// they name. Unknown references are left unchanged.
func unescapeEntities(s string) string {
	return gmlEntityPattern.ReplaceAllStringFunc(s, func(ref string) string {
		body := ref[1 : len(ref)-1]
		if strings.HasPrefix(body, "#x") || strings.HasPrefix(body, "#X") {
			if code, err := strconv.ParseInt(body[2:], 16, 32); err == nil {
				return string(rune(code))
			}
			return ref
		}
		if strings.HasPrefix(body, "#") {
			if code, err := strconv.Atoi(body[1:]); err == nil {
				return string(rune(code))
			}
			return ref
		}
		if r, ok := gmlNamedEntities[body]; ok {
			return string(r)
		}
		return ref
	})
}

func tokenizeGML(r io.Reader) ([]gmlToken, error) {
	var tokens []gmlToken
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		pos := 0
		for pos < len(line) {
			rest := line[pos:]
			if m := gmlSkipPattern.FindString(rest); m != "" {
				pos += len(m)
				continue
			}
			switch rest[0] {
			case '[':
				tokens = append(tokens, gmlToken{kind: gmlDictStart, line: lineno, pos: pos + 1})
				pos++
				continue
			case ']':
				tokens = append(tokens, gmlToken{kind: gmlDictEnd, line: lineno, pos: pos + 1})
				pos++
				continue
			}
			if m := gmlKeyPattern.FindString(rest); m != "" {
				tokens = append(tokens, gmlToken{kind: gmlKey, text: m, line: lineno, pos: pos + 1})
				pos += len(m)
				continue
			}
			if m := gmlRealPattern.FindString(rest); m != "" {
				v, err := parseGMLReal(m)
				if err != nil {
					return nil, fmt.Errorf("bad real %q at (%d, %d)", m, lineno, pos+1)
				}
				tokens = append(tokens, gmlToken{kind: gmlReal, text: m, real: v, line: lineno, pos: pos + 1})
				pos += len(m)
				continue
			}
			if m := gmlIntPattern.FindString(rest); m != "" {
				v, err := strconv.Atoi(m)
				if err != nil {
					return nil, fmt.Errorf("bad int %q at (%d, %d)", m, lineno, pos+1)
				}
				tokens = append(tokens, gmlToken{kind: gmlInt, text: m, num: v, line: lineno, pos: pos + 1})
				pos += len(m)
				continue
			}
			if m := gmlStringPattern.FindString(rest); m != "" {
				tokens = append(tokens, gmlToken{kind: gmlString, text: unescapeEntities(m[1 : len(m)-1]), line: lineno, pos: pos + 1})
				pos += len(m)
				continue
			}
			return nil, fmt.Errorf("cannot tokenize %q at (%d, %d)", rest, lineno, pos+1)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gml: %w", err)
	}
	tokens = append(tokens, gmlToken{kind: gmlEOF, line: lineno + 1, pos: 1})
	return tokens, nil
}

func parseGMLReal(text string) (float64, error) {
	switch text {
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(text, 64)
}

type gmlParser struct {
	tokens []gmlToken
	pos    int
}

func (p *gmlParser) cur() gmlToken { return p.tokens[p.pos] }

func (p *gmlParser) advance() { p.pos++ }

func (p *gmlParser) unexpected(expected string) error {
	t := p.cur()
	value := t.text
	if t.kind == gmlEOF {
		value = "EOF"
	}
	return fmt.Errorf("expected %s, found %q at (%d, %d)", expected, value, t.line, t.pos)
}

// parseKV parses a run of key-value pairs. Repeated keys collect into a
// list; single values collapse to scalars unless led by the list marker.
func (p *gmlParser) parseKV() (map[string]any, error) {
	values := make(map[string][]any)
	for p.cur().kind == gmlKey {
		key := p.cur().text
		p.advance()

		var value any
		switch t := p.cur(); t.kind {
		case gmlReal:
			value = t.real
			p.advance()
		case gmlInt:
			value = t.num
			p.advance()
		case gmlString:
			value = t.text
			p.advance()
		case gmlDictStart:
			nested, err := p.parseDict()
			if err != nil {
				return nil, err
			}
			value = nested
		case gmlKey:
			// Identifier values are tolerated after id-like keys, and
			// bare NAN/INF denote floats anywhere else.
			switch {
			case key == "id" || key == "label" || key == "source" || key == "target":
				value = unescapeEntities(t.text)
			case t.text == "NAN":
				value = math.NaN()
			case t.text == "INF":
				value = math.Inf(1)
			default:
				return nil, p.unexpected("an int, float, string or '['")
			}
			p.advance()
		default:
			return nil, p.unexpected("an int, float, string or '['")
		}
		values[key] = append(values[key], value)
	}

	dct := make(map[string]any, len(values))
	for key, list := range values {
		switch {
		case len(list) == 1:
			dct[key] = list[0]
		case list[0] == listStartMarker:
			dct[key] = list[1:]
		default:
			dct[key] = list
		}
	}
	return dct, nil
}

func (p *gmlParser) parseDict() (map[string]any, error) {
	if p.cur().kind != gmlDictStart {
		return nil, p.unexpected("'['")
	}
	p.advance()
	dct, err := p.parseKV()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != gmlDictEnd {
		return nil, p.unexpected("']'")
	}
	p.advance()
	return dct, nil
}

// ParseGML reads a legacy GML scenario into a Document.
func ParseGML(r io.Reader) (*Document, error) {
	tokens, err := tokenizeGML(r)
	if err != nil {
		return nil, err
	}
	p := &gmlParser{tokens: tokens}
	top, err := p.parseKV()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != gmlEOF {
		return nil, p.unexpected("EOF")
	}
	graph, ok := top["graph"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input contains no graph")
	}
	return graphToDocument(graph)
}

func graphToDocument(graph map[string]any) (*Document, error) {
	doc := &Document{Label: asGMLString(graph["label"])}
	for _, raw := range gmlList(graph["node"]) {
		node, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed node entry %v", raw)
		}
		id, ok := asGMLInt(node["id"])
		if !ok {
			return nil, fmt.Errorf("node without id: %v", node)
		}
		n := NodeDoc{
			ID:           id,
			Label:        asGMLString(node["label"]),
			Map:          asGMLString(node["map"]),
			Mod:          asGMLString(node["mod"]),
			CapitalOf:    asGMLString(node["capital_of"]),
			ControlledBy: asGMLString(node["controlled_by"]),
		}
		if size, ok := asGMLFloat(node["size"]); ok {
			n.Size = size
		}
		if scores, ok := node["score"].(map[string]any); ok {
			n.Score = make(map[string]float64, len(scores))
			for faction, v := range scores {
				if f, ok := asGMLFloat(v); ok {
					n.Score[faction] = f
				}
			}
		}
		for _, rawB := range gmlList(node["belligerents"]) {
			b, ok := rawB.(map[string]any)
			if !ok {
				continue
			}
			pid, ok := asGMLInt(b["player_id"])
			if !ok {
				continue
			}
			score, _ := asGMLFloat(b["score"])
			n.Belligerents = append(n.Belligerents, BelligerentDoc{
				PlayerID: pid,
				Faction:  asGMLString(b["faction"]),
				Score:    score,
			})
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	for _, raw := range gmlList(graph["edge"]) {
		edge, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("malformed edge entry %v", raw)
		}
		source, okS := asGMLInt(edge["source"])
		target, okT := asGMLInt(edge["target"])
		if !okS || !okT {
			return nil, fmt.Errorf("edge without source/target: %v", edge)
		}
		doc.Edges = append(doc.Edges, EdgeDoc{Source: source, Target: target})
	}
	return doc, nil
}

// gmlList normalizes an optional value that may be absent, a single entry
// or a list.
func gmlList(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return val
	default:
		return []any{val}
	}
}

func asGMLString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	}
	return ""
}

func asGMLInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case float64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(val)
		return n, err == nil
	}
	return 0, false
}

func asGMLFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	}
	return 0, false
}
