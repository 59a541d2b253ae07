package stats

import "github.com/shopspring/decimal"

// FinalStat is the per-month result, both values rounded to 2 decimals.
type FinalStat struct {
	AverageMaxTemperature float64
	TotalPrecipitation    float64
}

// Reduce folds every partial routed to key into a FinalStat. The caller
// guarantees all partials share key. A month with no observations has an
// average of 0 rather than an error; consumers cannot tell it apart from a
// month whose maxima averaged to zero.
func Reduce(_ MonthKey, partials []PartialStat) FinalStat {
	return Finalize(Fold[PartialStat](PartialMonoid{}, partials))
}

// Finalize converts a fully merged partial into a FinalStat. Rounding is
// half away from zero on the shortest decimal form of the value, so 2.675
// becomes 2.68, where rounding the binary double (2.67499...) would give 2.67.
func Finalize(p PartialStat) FinalStat {
	var avg float64
	if p.Count > 0 {
		avg = p.SumTemperature / float64(p.Count)
	}
	return FinalStat{
		AverageMaxTemperature: round2(avg),
		TotalPrecipitation:    round2(p.SumPrecipitation),
	}
}

func round2(v float64) float64 {
	if !isFinite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// Finite reports whether both values are encodable numbers. Sums that
// overflow float64 finalize to an infinity.
func (s FinalStat) Finite() bool {
	return isFinite(s.AverageMaxTemperature) && isFinite(s.TotalPrecipitation)
}
