// Package draw implements the weighted random selection of a product from a
// box's configured pool.
package draw

import (
	"errors"
	"math"
)

// ErrEmptyPool is returned when a draw is attempted against a box with no
// product entries. The caller must treat this as a catalog misconfiguration,
// never as a silent no-op.
var ErrEmptyPool = errors.New("box has no products to draw from")

// Source supplies uniform random values in [0, 1). *math/rand.Rand satisfies
// it, and tests inject fixed values to make draws deterministic.
type Source interface {
	Float64() float64
}

// Entry is one candidate of a draw: a product and its probability weight.
// Weights do not have to sum to any fixed total; selection is proportional.
type Entry struct {
	ProductID int64
	Weight    float64
}

// Pick selects exactly one product from entries.
//
// Entries with a non-finite or non-positive weight are excluded from
// selection but do not fail the draw. If every weight is invalid the draw
// falls back to a uniform pick over all entries: a purchased box must always
// yield a product. The walk uses a strict < comparison so a random value
// landing exactly on a cumulative boundary belongs to the next entry.
func Pick(entries []Entry, src Source) (int64, error) {
	if len(entries) == 0 {
		return 0, ErrEmptyPool
	}

	var total float64
	for _, e := range entries {
		if validWeight(e.Weight) {
			total += e.Weight
		}
	}

	if total <= 0 {
		// Uniform fallback over all entries, invalid weights included.
		i := int(src.Float64() * float64(len(entries)))
		if i >= len(entries) {
			i = len(entries) - 1
		}
		return entries[i].ProductID, nil
	}

	r := src.Float64() * total

	var sum float64
	last := int64(0)
	for _, e := range entries {
		if !validWeight(e.Weight) {
			continue
		}
		sum += e.Weight
		last = e.ProductID
		if r < sum {
			return e.ProductID, nil
		}
	}

	// Floating-point accumulation can leave r marginally >= sum after the
	// walk; the boundary then belongs to the last valid entry.
	return last, nil
}

func validWeight(w float64) bool {
	return !math.IsNaN(w) && !math.IsInf(w, 0) && w > 0
}
