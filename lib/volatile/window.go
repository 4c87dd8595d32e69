package volatile

// Time windows group entries whose expiration times are close enough to be
// reclaimed together. A window is the half-open interval
// [end-granularity, end) where end is a multiple of the granularity; the
// window end doubles as the ordered-index key for the bucket holding the
// window's entries. Granularities are powers of two between 16 ms and
// 8192 ms; only the two extremes are used directly: the fine granularity
// decides whether two entries may share a tight window, the coarse
// granularity bounds how wide a window may ever get.
const (
	fineGranularityMs   int64 = 16
	coarseGranularityMs int64 = 8192
)

// bucketEnd returns the end of the window of the given granularity that
// contains expiry: the smallest multiple of granularity strictly greater
// than expiry. Every entry filed under a window key k therefore satisfies
// expiry < k.
func bucketEnd(expiry, granularity int64) int64 {
	return (expiry/granularity)*granularity + granularity
}

// fineBucketTs returns the tightest window end for expiry.
func fineBucketTs(expiry int64) int64 {
	return bucketEnd(expiry, fineGranularityMs)
}

// coarseBucketTs returns the widest window end for expiry.
func coarseBucketTs(expiry int64) int64 {
	return bucketEnd(expiry, coarseGranularityMs)
}
