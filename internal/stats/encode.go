package stats

import (
	"strconv"
	"strings"
)

// Output object keys. The camelCase spellings are accepted on decode only.
const (
	KeyAvgMaxTemp  = "avg_max_temp"
	KeyTotalPrecip = "total_precip"

	keyAvgMaxTempAlt  = "avgMaxTemp"
	keyTotalPrecipAlt = "totalPrecip"
)

// Encode renders one persisted output line:
//
//	"2023-01"	{"avg_max_temp": 21.0, "total_precip": 8.0}
//
// The legacy [temperature, precipitation] shape is never produced.
func Encode(key MonthKey, stat FinalStat) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(strconv.Quote(string(key)))
	b.WriteByte('\t')
	b.WriteString(`{"` + KeyAvgMaxTemp + `": `)
	b.WriteString(formatNumber(round2(stat.AverageMaxTemperature)))
	b.WriteString(`, "` + KeyTotalPrecip + `": `)
	b.WriteString(formatNumber(round2(stat.TotalPrecipitation)))
	b.WriteByte('}')
	return b.String()
}

// formatNumber prints the shortest round-tripping form, keeping a ".0" on
// integral values so the output stays a float literal.
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
