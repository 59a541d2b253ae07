package summary

import "github.com/i474232898/monthly-weather-stats/internal/stats"

// MonthRange selects records whose month lies in [From, To]. Either bound
// may be empty. Months are compared as YYYY-MM strings.
type MonthRange struct {
	From stats.MonthKey
	To   stats.MonthKey
}

func (r MonthRange) Contains(m stats.MonthKey) bool {
	if r.From != "" && m < r.From {
		return false
	}
	if r.To != "" && m > r.To {
		return false
	}
	return true
}

// Filter returns the records of s that fall inside r, in their original order.
func (s Summary) Filter(r MonthRange) Summary {
	if r.From == "" && r.To == "" {
		return s
	}
	out := s
	out.Records = make([]stats.DecodedRecord, 0, len(s.Records))
	for _, rec := range s.Records {
		if r.Contains(rec.Month) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}
