package stats

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LiteralKind tags the variants of Literal.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota + 1
	LiteralText
	LiteralList
	LiteralMapping
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralNumber:
		return "number"
	case LiteralText:
		return "text"
	case LiteralList:
		return "list"
	case LiteralMapping:
		return "mapping"
	default:
		return "invalid"
	}
}

// Literal is a value of the closed output grammar: numbers, quoted text,
// lists and text-keyed mappings. Only the field matching Kind is set.
type Literal struct {
	Kind    LiteralKind
	Number  float64
	Text    string
	List    []Literal
	Mapping map[string]Literal
}

// MaxLiteralDepth bounds list/mapping nesting.
const MaxLiteralDepth = 32

var (
	errUnexpectedEOF  = errors.New("unexpected end of literal")
	errTooDeep        = errors.New("literal nested too deeply")
	errTrailing       = errors.New("trailing characters after literal")
	errNonTextKey     = errors.New("mapping key must be text")
	errDuplicateKey   = errors.New("duplicate mapping key")
	errInvalidNumber  = errors.New("invalid number")
	errUnterminated   = errors.New("unterminated string")
	errUnknownEscape  = errors.New("unknown escape sequence")
	errUnexpectedChar = errors.New("unexpected character")
)

// ParseLiteral parses s as exactly one literal. It recognises nothing beyond
// the four literal kinds: no names, operators or calls.
func ParseLiteral(s string) (Literal, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	v, err := p.value(0)
	if err != nil {
		return Literal{}, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Literal{}, fmt.Errorf("%w at offset %d", errTrailing, p.pos)
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) value(depth int) (Literal, error) {
	if depth > MaxLiteralDepth {
		return Literal{}, errTooDeep
	}
	if p.pos >= len(p.src) {
		return Literal{}, errUnexpectedEOF
	}
	switch c := p.src[p.pos]; {
	case c == '[':
		return p.list(depth)
	case c == '{':
		return p.mapping(depth)
	case c == '"' || c == '\'':
		s, err := p.text()
		if err != nil {
			return Literal{}, err
		}
		return Literal{Kind: LiteralText, Text: s}, nil
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	default:
		return Literal{}, fmt.Errorf("%w %q at offset %d", errUnexpectedChar, c, p.pos)
	}
}

func (p *literalParser) list(depth int) (Literal, error) {
	p.pos++ // [
	items := []Literal{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Literal{}, errUnexpectedEOF
		}
		if p.src[p.pos] == ']' {
			p.pos++
			return Literal{Kind: LiteralList, List: items}, nil
		}
		item, err := p.value(depth + 1)
		if err != nil {
			return Literal{}, err
		}
		items = append(items, item)
		done, err := p.separator(']')
		if err != nil {
			return Literal{}, err
		}
		if done {
			return Literal{Kind: LiteralList, List: items}, nil
		}
	}
}

func (p *literalParser) mapping(depth int) (Literal, error) {
	p.pos++ // {
	entries := map[string]Literal{}
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Literal{}, errUnexpectedEOF
		}
		if p.src[p.pos] == '}' {
			p.pos++
			return Literal{Kind: LiteralMapping, Mapping: entries}, nil
		}
		if c := p.src[p.pos]; c != '"' && c != '\'' {
			return Literal{}, errNonTextKey
		}
		key, err := p.text()
		if err != nil {
			return Literal{}, err
		}
		if _, dup := entries[key]; dup {
			return Literal{}, fmt.Errorf("%w %q", errDuplicateKey, key)
		}
		p.skipSpace()
		if p.pos >= len(p.src) {
			return Literal{}, errUnexpectedEOF
		}
		if p.src[p.pos] != ':' {
			return Literal{}, fmt.Errorf("%w %q at offset %d", errUnexpectedChar, p.src[p.pos], p.pos)
		}
		p.pos++
		p.skipSpace()
		v, err := p.value(depth + 1)
		if err != nil {
			return Literal{}, err
		}
		entries[key] = v
		done, err := p.separator('}')
		if err != nil {
			return Literal{}, err
		}
		if done {
			return Literal{Kind: LiteralMapping, Mapping: entries}, nil
		}
	}
}

// separator consumes a comma (continue) or the closing byte (done).
// A trailing comma before the closing byte is accepted by the next loop turn.
func (p *literalParser) separator(closing byte) (bool, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return false, errUnexpectedEOF
	}
	switch c := p.src[p.pos]; c {
	case ',':
		p.pos++
		return false, nil
	case closing:
		p.pos++
		return true, nil
	default:
		return false, fmt.Errorf("%w %q at offset %d", errUnexpectedChar, c, p.pos)
	}
}

func (p *literalParser) text() (string, error) {
	quote := p.src[p.pos]
	p.pos++
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n':
			return "", errUnterminated
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", errUnterminated
			}
			switch e := p.src[p.pos+1]; e {
			case '\\', '\'', '"':
				b.WriteByte(e)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				return "", fmt.Errorf("%w \\%c", errUnknownEscape, e)
			}
			p.pos += 2
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", errUnterminated
}

func (p *literalParser) number() (Literal, error) {
	start := p.pos
	if c := p.src[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	digits := p.digits()
	if p.pos < len(p.src) && p.src[p.pos] == '.' {
		p.pos++
		digits += p.digits()
	}
	if digits == 0 {
		return Literal{}, fmt.Errorf("%w %q", errInvalidNumber, p.src[start:p.pos])
	}
	if p.pos < len(p.src) && (p.src[p.pos] == 'e' || p.src[p.pos] == 'E') {
		p.pos++
		if p.pos < len(p.src) && (p.src[p.pos] == '-' || p.src[p.pos] == '+') {
			p.pos++
		}
		if p.digits() == 0 {
			return Literal{}, fmt.Errorf("%w %q", errInvalidNumber, p.src[start:p.pos])
		}
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil || !isFinite(v) {
		return Literal{}, fmt.Errorf("%w %q", errInvalidNumber, p.src[start:p.pos])
	}
	return Literal{Kind: LiteralNumber, Number: v}, nil
}

func (p *literalParser) digits() int {
	n := 0
	for p.pos < len(p.src) && isDigit(p.src[p.pos]) {
		p.pos++
		n++
	}
	return n
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
