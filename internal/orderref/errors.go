package orderref

import "errors"

// ErrOrderLookupFailed indicates a summary fetch failed for a reason other
// than not-found. It is logged and cached as a negative entry, never returned
// from FetchSummary.
var ErrOrderLookupFailed = errors.New("order lookup failed")
