package core

import (
	"context"
	"fmt"
	"log"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// Evaluator applies the stock rules to an order. Prescription policy is
// deliberately not enforced here: the flag rides on every non-rejected
// decision and the conversation controller decides when to act on it, so a
// partial quantity can be offered before a prescription is requested for the
// reduced amount.
type Evaluator struct {
	Inv Inventory
}

// NewEvaluator constructs an Evaluator over the given inventory.
func NewEvaluator(inv Inventory) *Evaluator { return &Evaluator{Inv: inv} }

// Evaluate returns exactly one of Rejected, Partial or InStock for the order.
// It reads stock fresh on every call and is never cached.
func (e *Evaluator) Evaluate(ctx context.Context, order pkg.Order) pkg.SafetyDecision {
	if order.MedicineName == "" {
		return pkg.SafetyDecision{Status: pkg.StatusRejected, Reason: "Missing medicine name"}
	}
	if order.Quantity <= 0 {
		return pkg.SafetyDecision{Status: pkg.StatusRejected, Reason: "Invalid quantity"}
	}

	meds, err := e.Inv.Medicines(ctx)
	if err != nil {
		log.Printf("safety: inventory read failed: %v", err)
		return pkg.SafetyDecision{Status: pkg.StatusRejected, Reason: "Inventory temporarily unavailable", Requested: order.Quantity}
	}

	med, ok := findMedicine(meds, order.MedicineName)
	if !ok {
		return pkg.SafetyDecision{Status: pkg.StatusRejected, Reason: "Medicine not found", Requested: order.Quantity}
	}

	if med.Stock <= 0 {
		return pkg.SafetyDecision{
			Status:               pkg.StatusRejected,
			Reason:               fmt.Sprintf("%s is out of stock", med.Name),
			Requested:            order.Quantity,
			PrescriptionRequired: med.PrescriptionRequired,
		}
	}

	if med.Stock < order.Quantity {
		return pkg.SafetyDecision{
			Status:               pkg.StatusPartial,
			Reason:               fmt.Sprintf("Only %d units of %s are available", med.Stock, med.Name),
			Stock:                med.Stock,
			Requested:            order.Quantity,
			PrescriptionRequired: med.PrescriptionRequired,
		}
	}

	return pkg.SafetyDecision{
		Status:               pkg.StatusInStock,
		Reason:               "Order allowed",
		Stock:                med.Stock,
		Requested:            order.Quantity,
		PrescriptionRequired: med.PrescriptionRequired,
	}
}
