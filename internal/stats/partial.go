package stats

// Monoid is an associative, commutative merge with an identity element.
// Any runtime may apply Merge zero, one, or many times, in any grouping,
// without changing the reduced result.
type Monoid[T any] interface {
	Identity() T
	Merge(a, b T) T
}

// Fold merges values left to right starting from the identity.
func Fold[T any](m Monoid[T], values []T) T {
	acc := m.Identity()
	for _, v := range values {
		acc = m.Merge(acc, v)
	}
	return acc
}

// PartialStat is a pre-aggregated (count, sum temperature, sum precipitation)
// tuple for a single MonthKey.
type PartialStat struct {
	Count            int64
	SumTemperature   float64
	SumPrecipitation float64
}

// PartialMonoid is the combiner for PartialStat. Count is exact; the float sums
// depend on summation order only up to rounding drift, which the 2-decimal
// rounding in Reduce absorbs for realistic inputs.
type PartialMonoid struct{}

func (PartialMonoid) Identity() PartialStat { return PartialStat{} }

func (PartialMonoid) Merge(a, b PartialStat) PartialStat {
	return Merge(a, b)
}

// Merge adds two partials component-wise.
func Merge(a, b PartialStat) PartialStat {
	return PartialStat{
		Count:            a.Count + b.Count,
		SumTemperature:   a.SumTemperature + b.SumTemperature,
		SumPrecipitation: a.SumPrecipitation + b.SumPrecipitation,
	}
}

// Combiner accumulates partials per MonthKey. It is not safe for concurrent
// use; each worker owns one.
type Combiner struct {
	partials map[MonthKey]PartialStat
}

func NewCombiner() *Combiner {
	return &Combiner{partials: make(map[MonthKey]PartialStat)}
}

// Add merges p into the accumulated partial for key.
func (c *Combiner) Add(key MonthKey, p PartialStat) {
	c.partials[key] = Merge(c.partials[key], p)
}

// Len returns the number of distinct keys held.
func (c *Combiner) Len() int { return len(c.partials) }

// Drain returns the accumulated partials and resets the combiner.
func (c *Combiner) Drain() map[MonthKey]PartialStat {
	out := c.partials
	c.partials = make(map[MonthKey]PartialStat)
	return out
}
