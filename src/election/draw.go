package election

import (
	"math/rand/v2"
	"sort"
)

// NoWinner is the result of a draw in which nobody holds any stake.
const NoWinner int64 = -1

// Source is the pseudo-random generator used to draw the winner of an
// election. Every validator must build the same Source out of the same seed.
type Source interface {
	Int64N(n int64) int64
}

// NewSource returns a PCG generator seeded with seed.
func NewSource(seed int64) Source {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// Seed is the sum of the stakes.
func Seed(stakes map[int64]int64) int64 {
	var seed int64
	for _, s := range stakes {
		seed += s
	}
	return seed
}

// Draw picks a validator with a probability proportional to its stake. It
// draws one number r in [0, total) and walks the validators in ascending id
// order, accumulating their stakes, until the cumulative stake exceeds r.
// Validators without stake are never picked.
func Draw(src Source, stakes map[int64]int64) int64 {
	ids := make([]int64, 0, len(stakes))
	var total int64
	for id, s := range stakes {
		ids = append(ids, id)
		if s > 0 {
			total += s
		}
	}

	if total <= 0 {
		return NoWinner
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	r := src.Int64N(total)

	var cumulative int64
	for _, id := range ids {
		s := stakes[id]
		if s <= 0 {
			continue
		}
		cumulative += s
		if r < cumulative {
			return id
		}
	}

	return NoWinner
}
