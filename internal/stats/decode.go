package stats

import (
	"fmt"
	"strings"
	"unicode"
)

// DecodedRecord is a persisted monthly summary as served to clients.
type DecodedRecord struct {
	Month         MonthKey `json:"month"`
	Temperature   float64  `json:"temperature"`
	Precipitation float64  `json:"precipitation"`
}

// OutputShape identifies which historical output encoding a line used.
type OutputShape int

const (
	ShapeUnsupported OutputShape = iota
	ShapeObject                  // {"avg_max_temp": t, "total_precip": p}
	ShapePair                    // [t, p], legacy
)

// DecodeAll decodes every non-empty line of text, skipping malformed lines.
// Records keep source order. The second result is the number of skipped lines.
func DecodeAll(text string) ([]DecodedRecord, int) {
	records, counters := DecodeLines(text)
	return records, int(counters.Total())
}

// DecodeLines is DecodeAll with the skipped lines counted per DecodeErrorKind.
func DecodeLines(text string) ([]DecodedRecord, Counters) {
	records, skipped := DecodeWithErrors(text)
	counters := Counters{}
	for _, err := range skipped {
		counters.Inc(string(err.Kind))
	}
	return records, counters
}

// DecodeWithErrors returns the decoded records and one error per skipped
// line, each carrying its 1-based line number.
func DecodeWithErrors(text string) ([]DecodedRecord, []*DecodeError) {
	records := []DecodedRecord{}
	var skipped []*DecodeError
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec, err := DecodeLine(line)
		if err != nil {
			err.Line = i + 1
			skipped = append(skipped, err)
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// DecodeLine decodes a single trimmed, non-empty output line.
func DecodeLine(line string) (DecodedRecord, *DecodeError) {
	monthToken, remainder, ok := splitFirstSpace(line)
	if !ok {
		return DecodedRecord{}, &DecodeError{Kind: DecodeMalformedLine}
	}
	month, ok := unquoteMonth(monthToken)
	if !ok || month == "" {
		return DecodedRecord{}, &DecodeError{Kind: DecodeMalformedLine}
	}

	lit, err := ParseLiteral(remainder)
	if err != nil {
		return DecodedRecord{}, &DecodeError{Kind: DecodeInvalidLiteral, Err: err}
	}

	var tempLit, precipLit Literal
	switch shapeOf(lit) {
	case ShapeObject:
		tempLit, _ = lookup(lit.Mapping, KeyAvgMaxTemp, keyAvgMaxTempAlt)
		precipLit, _ = lookup(lit.Mapping, KeyTotalPrecip, keyTotalPrecipAlt)
	case ShapePair:
		tempLit, precipLit = lit.List[0], lit.List[1]
	default:
		return DecodedRecord{}, &DecodeError{
			Kind: DecodeUnsupportedShape,
			Err:  fmt.Errorf("top-level %s", lit.Kind),
		}
	}

	if tempLit.Kind != LiteralNumber || precipLit.Kind != LiteralNumber {
		return DecodedRecord{}, &DecodeError{Kind: DecodeNonNumeric}
	}
	return DecodedRecord{
		Month:         MonthKey(month),
		Temperature:   tempLit.Number,
		Precipitation: precipLit.Number,
	}, nil
}

// shapeOf resolves a literal to one of the two accepted output shapes.
func shapeOf(lit Literal) OutputShape {
	switch lit.Kind {
	case LiteralMapping:
		_, hasTemp := lookup(lit.Mapping, KeyAvgMaxTemp, keyAvgMaxTempAlt)
		_, hasPrecip := lookup(lit.Mapping, KeyTotalPrecip, keyTotalPrecipAlt)
		if hasTemp && hasPrecip {
			return ShapeObject
		}
	case LiteralList:
		if len(lit.List) == 2 {
			return ShapePair
		}
	case LiteralNumber, LiteralText:
	}
	return ShapeUnsupported
}

func lookup(m map[string]Literal, names ...string) (Literal, bool) {
	for _, name := range names {
		if v, ok := m[name]; ok {
			return v, true
		}
	}
	return Literal{}, false
}

// unquoteMonth strips one matching pair of surrounding quotes. A token that
// opens or closes with a quote without its partner is rejected.
func unquoteMonth(tok string) (string, bool) {
	n := len(tok)
	if n >= 2 && (tok[0] == '"' || tok[0] == '\'') && tok[n-1] == tok[0] {
		return tok[1 : n-1], true
	}
	if strings.ContainsAny(tok[:1], `"'`) || strings.ContainsAny(tok[n-1:], `"'`) {
		return "", false
	}
	return tok, true
}

// splitFirstSpace splits at the first run of whitespace. Both halves must be
// non-empty.
func splitFirstSpace(line string) (string, string, bool) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i <= 0 {
		return "", "", false
	}
	head := line[:i]
	rest := strings.TrimSpace(line[i:])
	if rest == "" {
		return "", "", false
	}
	return head, rest, true
}
