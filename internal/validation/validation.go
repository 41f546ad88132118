// Package validation contains input checks for settlement operations.
package validation

// MaxBatchUnbox is the largest number of orders one batch unbox request may carry.
const MaxBatchUnbox = 10

// MaxBoxCount caps how many box units a single purchase may fan out into.
const MaxBoxCount = 100

// IsValidRefundRate reports whether rate is a usable refund percentage.
// Out-of-range values would produce negative or inflated refunds and are
// rejected instead of clamped.
func IsValidRefundRate(rate int64) bool {
	return rate >= 0 && rate <= 100
}

// IsValidBatchSize reports whether a batch unbox request has an acceptable
// number of order ids.
func IsValidBatchSize(n int) bool {
	return n >= 1 && n <= MaxBatchUnbox
}

// IsValidBoxCount reports whether a purchase fan-out count is acceptable.
func IsValidBoxCount(n int) bool {
	return n >= 1 && n <= MaxBoxCount
}
