// Package payment generates payment links for orders awaiting payment
// confirmation. Actual charging happens on the provider side; the assistant
// only hands the link over and waits for the user's confirmation.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// LinkGenerator builds provider payment URLs from a configured base URL.
type LinkGenerator struct {
	BaseURL string
}

// NewLinkGenerator creates a generator for the given provider base URL.
func NewLinkGenerator(baseURL string) *LinkGenerator {
	return &LinkGenerator{BaseURL: strings.TrimRight(baseURL, "/")}
}

// CreateLink returns a payment link for the order amount.
func (g *LinkGenerator) CreateLink(_ context.Context, _ pkg.Order, amount float64) (pkg.PaymentInfo, error) {
	id := "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return pkg.PaymentInfo{
		LinkID: id,
		URL:    fmt.Sprintf("%s/%s?amount=%.2f", g.BaseURL, id, amount),
		Amount: amount,
	}, nil
}
