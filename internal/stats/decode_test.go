package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t,
		"\"2023-01\"\t{\"avg_max_temp\": 21.0, \"total_precip\": 8.0}",
		Encode("2023-01", FinalStat{AverageMaxTemperature: 21, TotalPrecipitation: 8}))
	assert.Equal(t,
		"\"2023-02\"\t{\"avg_max_temp\": -3.46, \"total_precip\": 0.1}",
		Encode("2023-02", FinalStat{AverageMaxTemperature: -3.456, TotalPrecipitation: 0.1}))
}

func TestDecodeAll_CurrentFormat(t *testing.T) {
	records, errs := DecodeAll(`"2023-02"` + "\t" + `{"avg_max_temp": 25.99, "total_precip": 56.7}`)
	assert.Equal(t, 0, errs)
	assert.Equal(t, []DecodedRecord{{Month: "2023-02", Temperature: 25.99, Precipitation: 56.7}}, records)
}

func TestDecodeAll_LegacyFormat(t *testing.T) {
	records, errs := DecodeAll(`"2023-01"` + "\t" + `[24.75, 106.5]`)
	assert.Equal(t, 0, errs)
	assert.Equal(t, []DecodedRecord{{Month: "2023-01", Temperature: 24.75, Precipitation: 106.5}}, records)
}

func TestDecodeAll_CamelCaseKeys(t *testing.T) {
	records, errs := DecodeAll(`"2023-03"    {'avgMaxTemp': 18.2, 'totalPrecip': 12, 'days': 31}`)
	assert.Equal(t, 0, errs)
	assert.Equal(t, []DecodedRecord{{Month: "2023-03", Temperature: 18.2, Precipitation: 12}}, records)
}

func TestDecodeAll_MalformedTolerance(t *testing.T) {
	blob := "\"2023-01\"\t[24.75, 106.5]\nnot-a-valid-line\n"
	records, errs := DecodeAll(blob)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, errs)
}

func TestDecodeLines_ErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind DecodeErrorKind
	}{
		{"single token", `not-a-valid-line`, DecodeMalformedLine},
		{"empty month", `"" [1, 2]`, DecodeMalformedLine},
		{"mismatched quotes", `'2023-01" [1, 2]`, DecodeMalformedLine},
		{"unclosed quote", `"2023-01 [1, 2]`, DecodeMalformedLine},
		{"lone quote", `" [1, 2]`, DecodeMalformedLine},
		{"unparseable literal", `"2023-01" [1, 2`, DecodeInvalidLiteral},
		{"expression", `"2023-01" __import__('os').system('id')`, DecodeInvalidLiteral},
		{"arithmetic", `"2023-01" [1+1, 2]`, DecodeInvalidLiteral},
		{"bare words", `"2023-01" hello world`, DecodeInvalidLiteral},
		{"three elements", `"2023-01" [1, 2, 3]`, DecodeUnsupportedShape},
		{"one element", `"2023-01" [1]`, DecodeUnsupportedShape},
		{"scalar", `"2023-01" 42`, DecodeUnsupportedShape},
		{"text", `"2023-01" "hot"`, DecodeUnsupportedShape},
		{"mapping missing key", `"2023-01" {"avg_max_temp": 1}`, DecodeUnsupportedShape},
		{"text in pair", `"2023-01" ["24.75", 106.5]`, DecodeNonNumeric},
		{"list in mapping", `"2023-01" {"avg_max_temp": [1], "total_precip": 2}`, DecodeNonNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, counters := DecodeLines(tt.line)
			assert.Empty(t, records)
			assert.Equal(t, Counters{string(tt.kind): 1}, counters)
		})
	}
}

func TestDecodeAll_PreservesOrderAndSkipsBlankLines(t *testing.T) {
	blob := "\"2023-03\"\t[3, 30]\r\n\n   \n\"2023-01\"\t{\"avg_max_temp\": 1, \"total_precip\": 10}\n\"2023-02\"\t[2, 20]\n"
	records, errs := DecodeAll(blob)
	require.Equal(t, 0, errs)
	require.Len(t, records, 3)
	assert.Equal(t, MonthKey("2023-03"), records[0].Month)
	assert.Equal(t, MonthKey("2023-01"), records[1].Month)
	assert.Equal(t, MonthKey("2023-02"), records[2].Month)
}

func TestDecodeAll_Empty(t *testing.T) {
	records, errs := DecodeAll("")
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Equal(t, 0, errs)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		stat := Finalize(PartialStat{
			Count:            int64(r.Intn(31) + 1),
			SumTemperature:   r.Float64()*1500 - 300,
			SumPrecipitation: r.Float64() * 600,
		})
		records, errs := DecodeAll(Encode("2024-06", stat))
		require.Equal(t, 0, errs)
		require.Len(t, records, 1)
		assert.Equal(t, DecodedRecord{
			Month:         "2024-06",
			Temperature:   stat.AverageMaxTemperature,
			Precipitation: stat.TotalPrecipitation,
		}, records[0])
	}
}

func TestDecodeLine_MonthQuoting(t *testing.T) {
	for _, line := range []string{`"2023-01" [1, 2]`, `'2023-01' [1, 2]`, `2023-01 [1, 2]`} {
		rec, err := DecodeLine(line)
		require.Nil(t, err, line)
		assert.Equal(t, MonthKey("2023-01"), rec.Month, line)
	}
}

func TestDecodeWithErrors_LineNumbers(t *testing.T) {
	blob := "\"2023-01\"\t[1, 2]\n\nbroken\n\"2023-02\"\t[1, 2, 3]\n\"2023-03\"\t[3, 4]\n"
	records, skipped := DecodeWithErrors(blob)
	require.Len(t, records, 2)
	require.Len(t, skipped, 2)
	assert.Equal(t, 3, skipped[0].Line)
	assert.Equal(t, DecodeMalformedLine, skipped[0].Kind)
	assert.Equal(t, 4, skipped[1].Line)
	assert.Equal(t, DecodeUnsupportedShape, skipped[1].Kind)
	assert.Contains(t, skipped[1].Error(), "decode line 4")
}
