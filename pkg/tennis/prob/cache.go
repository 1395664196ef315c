package prob

import (
	"math"
	"sync"
)

// Memo caches are shared across matches: the same sub-state recurs both
// across ticks and across hypothetical branches of the recursion, and serve
// probabilities cluster tightly once quantized. Entries are written at most
// once per key (LoadOrStore), so concurrent readers never observe a partial
// value.
var (
	gameCache = new(sync.Map) // gameKey -> float64
	tbCache   = new(sync.Map) // tbKey -> float64
	setCache  = new(sync.Map) // setKey -> float64
)

// quantScale fixes probability keys at 4 decimal digits (1 bp). Coarser
// visibly moves cent prices near even money; finer defeats sharing.
const quantScale = 1e4

func quantize(p float64) int32 {
	return int32(math.Round(p * quantScale))
}

// ResetCaches drops all memoized probabilities. Only useful in tests and
// long-lived processes that want to bound memory across many tournaments.
func ResetCaches() {
	gameCache = new(sync.Map)
	tbCache = new(sync.Map)
	setCache = new(sync.Map)
}
