package stats

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Input field names, as exported by the Open-Meteo daily archive.
const (
	FieldDate          = "date"
	FieldMaxTemp       = "temperature_2m_max"
	FieldPrecipitation = "precipitation_sum"
)

const dateLayout = "2006-01-02"

// MonthKey is the YYYY-MM grouping key.
type MonthKey string

// DailyObservation is one parsed input line.
type DailyObservation struct {
	Date           time.Time
	MaxTemperature float64
	Precipitation  float64
}

// Month truncates the observation date to its MonthKey.
func (o DailyObservation) Month() MonthKey {
	return MonthKey(o.Date.Format("2006-01"))
}

// Partial returns the single-observation PartialStat.
func (o DailyObservation) Partial() PartialStat {
	return PartialStat{
		Count:            1,
		SumTemperature:   o.MaxTemperature,
		SumPrecipitation: o.Precipitation,
	}
}

// ParseLine converts one raw input line into a keyed PartialStat.
// Failures are always *ParseError.
func ParseLine(line string) (MonthKey, PartialStat, error) {
	obs, err := ParseObservation(line)
	if err != nil {
		return "", PartialStat{}, err
	}
	return obs.Month(), obs.Partial(), nil
}

// ParseObservation decodes a JSON object line into a DailyObservation.
func ParseObservation(line string) (DailyObservation, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil || fields == nil {
		return DailyObservation{}, &ParseError{Kind: ParseMalformed, Err: err}
	}

	rawDate, err := requireField(fields, FieldDate)
	if err != nil {
		return DailyObservation{}, err
	}
	rawTemp, err := requireField(fields, FieldMaxTemp)
	if err != nil {
		return DailyObservation{}, err
	}
	rawPrecip, err := requireField(fields, FieldPrecipitation)
	if err != nil {
		return DailyObservation{}, err
	}

	var dateStr string
	if err := json.Unmarshal(rawDate, &dateStr); err != nil {
		return DailyObservation{}, &ParseError{Kind: ParseInvalidValue, Field: FieldDate, Err: err}
	}
	if dateStr == "" {
		return DailyObservation{}, &ParseError{Kind: ParseMissingField, Field: FieldDate}
	}
	date, err := time.Parse(dateLayout, dateStr)
	if err != nil {
		return DailyObservation{}, &ParseError{Kind: ParseInvalidValue, Field: FieldDate, Err: err}
	}

	temp, err := numericField(rawTemp, FieldMaxTemp)
	if err != nil {
		return DailyObservation{}, err
	}
	precip, err := numericField(rawPrecip, FieldPrecipitation)
	if err != nil {
		return DailyObservation{}, err
	}

	return DailyObservation{
		Date:           date,
		MaxTemperature: temp,
		Precipitation:  precip,
	}, nil
}

// requireField treats an absent key and a JSON null the same way.
func requireField(fields map[string]json.RawMessage, name string) (json.RawMessage, error) {
	raw, ok := fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, &ParseError{Kind: ParseMissingField, Field: name}
	}
	return raw, nil
}

// numericField accepts a JSON number or a string holding a decimal number.
func numericField(raw json.RawMessage, name string) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.ParseFloat(n.String(), 64); err == nil && isFinite(v) {
			return v, nil
		}
		return 0, &ParseError{Kind: ParseInvalidValue, Field: name}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, &ParseError{Kind: ParseInvalidValue, Field: name, Err: err}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !isFinite(v) {
		return 0, &ParseError{Kind: ParseInvalidValue, Field: name, Err: err}
	}
	return v, nil
}
