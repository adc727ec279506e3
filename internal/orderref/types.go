// Package orderref resolves order references embedded in messages or the
// clipboard and caches read-only order summaries for display.
package orderref

import (
	"context"

	"github.com/shopspring/decimal"
)

// Summary is the read-only display card of an order.
type Summary struct {
	OrderID      string          `json:"orderId"`
	SKU          string          `json:"sku"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	ReceiverName string          `json:"receiverName"`
}

// Fetcher loads an order summary. A nil summary with a nil error means the
// order does not exist.
type Fetcher interface {
	FetchOrderSummary(ctx context.Context, orderID string) (*Summary, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, orderID string) (*Summary, error)

// FetchOrderSummary calls f.
func (f FetcherFunc) FetchOrderSummary(ctx context.Context, orderID string) (*Summary, error) {
	return f(ctx, orderID)
}

// Clipboard reads the current clipboard text. The content is untrusted.
type Clipboard interface {
	ReadText() (string, error)
}

// Lookup outcomes reported to a Recorder.
const (
	LookupHit      = "hit"
	LookupNegative = "negative"
	LookupFetched  = "fetched"
	LookupNotFound = "not_found"
	LookupFailed   = "failed"
)

// Recorder observes summary lookups.
type Recorder interface {
	OrderLookup(result string)
}

type nopRecorder struct{}

func (nopRecorder) OrderLookup(string) {}
