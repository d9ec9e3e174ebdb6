package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL. The order
// executor fires one notification per placed order so an inventory dashboard
// can refresh without polling.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier. The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	if channel == "" {
		channel = "order_placed"
	}
	return &Notifier{DB: db, Channel: channel}
}

// OrderPlaced sends a notification carrying the order number.
func (n *Notifier) OrderPlaced(ctx context.Context, orderNo string) error {
	channel := pq.QuoteIdentifier(n.Channel)
	_, err := n.DB.ExecContext(ctx, fmt.Sprintf("NOTIFY %s, %s", channel, pq.QuoteLiteral(orderNo)))
	return err
}
