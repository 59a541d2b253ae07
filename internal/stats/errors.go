package stats

import (
	"fmt"
	"math"
	"sort"
)

// ParseErrorKind classifies input lines rejected by ParseLine.
type ParseErrorKind string

const (
	ParseMalformed    ParseErrorKind = "malformed"
	ParseMissingField ParseErrorKind = "missing_field"
	ParseInvalidValue ParseErrorKind = "invalid_value"
)

// ParseError is returned for an input line that cannot become an observation.
type ParseError struct {
	Kind  ParseErrorKind
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	msg := "parse observation: " + string(e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeErrorKind classifies persisted output lines rejected by the decoder.
type DecodeErrorKind string

const (
	DecodeMalformedLine    DecodeErrorKind = "malformed_line"
	DecodeInvalidLiteral   DecodeErrorKind = "invalid_literal"
	DecodeUnsupportedShape DecodeErrorKind = "unsupported_shape"
	DecodeNonNumeric       DecodeErrorKind = "non_numeric"
)

// DecodeError describes a skipped output line. Line is 1-based.
type DecodeError struct {
	Kind DecodeErrorKind
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode line %d: %s", e.Line, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Counters holds named error counts. Counters from different workers are
// combined with Add, which sums.
type Counters map[string]int64

// Inc adds one to the named counter.
func (c Counters) Inc(name string) {
	c[name]++
}

// Add sums other into c.
func (c Counters) Add(other Counters) {
	for k, v := range other {
		c[k] += v
	}
}

// Total is the sum of all counters.
func (c Counters) Total() int64 {
	var n int64
	for _, v := range c {
		n += v
	}
	return n
}

// Names returns the counter names in sorted order.
func (c Counters) Names() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
