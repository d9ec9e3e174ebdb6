package core

import (
	"context"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// Inventory provides fresh reads of the medicine table and a guarded stock
// decrement. Implementations must not cache: stock can change between
// conversation turns and every check works from the current snapshot.
type Inventory interface {
	Medicines(ctx context.Context) ([]pkg.Medicine, error)
	// DecrementStock fails with db.ErrInsufficientStock semantics when the
	// medicine is missing or stock is below qty.
	DecrementStock(ctx context.Context, name string, qty int) error
}

// PriceSource is the optional secondary price table. The bool reports whether
// a positive price record exists; callers fall back to a fixed default.
type PriceSource interface {
	Price(ctx context.Context, name string) (float64, bool, error)
}

// OrderSink persists the outcome of an executed order.
type OrderSink interface {
	AppendOrder(ctx context.Context, rec pkg.OrderRecord) error
	UpsertContact(ctx context.Context, c pkg.Contact) error
}

// OrderNotifier announces a placed order. Delivery is best effort; failures
// are logged, never surfaced to the user.
type OrderNotifier interface {
	OrderPlaced(ctx context.Context, orderNo string) error
}

// PaymentLinker generates a payment link for an order that is ready to
// execute. A nil PaymentLinker on the agent disables the payment handoff.
type PaymentLinker interface {
	CreateLink(ctx context.Context, order pkg.Order, amount float64) (pkg.PaymentInfo, error)
}
