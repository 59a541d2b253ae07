// Package stats implements the monthly weather aggregation: parsing daily
// observations, combining partial sums, reducing them to monthly statistics,
// and encoding/decoding the persisted summary lines.
//
// # Input
//
// One JSON object per line, as exported from the Open-Meteo daily archive:
//
//	{"date": "2023-01-01", "temperature_2m_max": 20.0, "precipitation_sum": 5.0}
//
// Extra fields are ignored. Rejected lines are reported as *ParseError with a
// kind (malformed, missing_field, invalid_value) and never stop a batch.
//
// # Aggregation
//
// Each observation becomes PartialStat{Count: 1, ...} under its YYYY-MM key.
// PartialMonoid merges partials component-wise; because the merge is
// associative and commutative with identity {0, 0, 0}, a runtime can combine
// any subset of partials for a key, any number of times, before Reduce sees
// them. Float sums may differ in the last bits depending on order; results are
// rounded to 2 decimals.
//
// # Output
//
// Encode always writes the object shape:
//
//	"2023-01"	{"avg_max_temp": 21.0, "total_precip": 8.0}
//
// The decoder also accepts the legacy pair shape written by older jobs:
//
//	"2023-01"	[24.75, 106.5]
//
// Values are read with ParseLiteral, a closed grammar of numbers, quoted text,
// lists and mappings. Nothing is evaluated.
package stats
