package pipeline

import (
	"hash/fnv"

	"github.com/i474232898/monthly-weather-stats/internal/stats"
)

// partitionFor routes a key to one of n reducers. The mapping is stable, so
// every partial for a key lands in the same partition regardless of which
// mapper produced it.
func partitionFor(key stats.MonthKey, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()&0x7fffffff) % n
}
