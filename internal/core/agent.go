package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/rx"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/session"
	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// conversationState names the dispatch target for one incoming message. The
// controller derives it from the session's pending slots in a fixed priority
// order so the state-to-state flow stays auditable.
type conversationState int

const (
	stateFresh conversationState = iota
	statePaymentConfirm
	statePreorderOffer
	stateMedicineChoice
	statePartialConfirm
	stateRxFinalConfirm
	stateRxPending
)

// Agent is the conversation controller: it owns the per-session pending
// state, dispatches each incoming message to the matching state handler and
// threads extraction, resolution, safety evaluation and execution together.
// One session processes one turn at a time; the HTTP layer serializes calls
// per conversation key.
type Agent struct {
	Extractor *Extractor
	Resolver  *Resolver
	Safety    *Evaluator
	Executor  *Executor
	Inv       Inventory
	Sessions  session.Store
	Payments  PaymentLinker // nil disables the payment handoff
}

// NewAgent wires the conversation controller. payments may be nil.
func NewAgent(extractor *Extractor, resolver *Resolver, safety *Evaluator, executor *Executor,
	inv Inventory, sessions session.Store, payments PaymentLinker) *Agent {
	return &Agent{
		Extractor: extractor,
		Resolver:  resolver,
		Safety:    safety,
		Executor:  executor,
		Inv:       inv,
		Sessions:  sessions,
		Payments:  payments,
	}
}

// HandleMessage runs one conversation turn for the session identified by key.
// The returned error covers session-store failures only; everything the user
// should see, including rejections, arrives as the reply.
func (a *Agent) HandleMessage(ctx context.Context, key string, id pkg.Identity, message string) (pkg.AgentReply, error) {
	state, err := a.Sessions.Get(ctx, key)
	if err != nil {
		return pkg.AgentReply{}, fmt.Errorf("load session %s: %w", key, err)
	}

	reply := a.dispatch(ctx, state, id, message)

	if err := a.Sessions.Put(ctx, key, state); err != nil {
		return pkg.AgentReply{}, fmt.Errorf("save session %s: %w", key, err)
	}
	return reply, nil
}

// AttachPrescription stores a fresh verification record on the session so the
// next prescription-pending turn can consume it. The HTTP upload endpoint
// calls this before feeding a synthetic "upload prescription" message back in.
func (a *Agent) AttachPrescription(ctx context.Context, key string, rec *pkg.VerificationRecord) error {
	state, err := a.Sessions.Get(ctx, key)
	if err != nil {
		return err
	}
	state.PendingPrescriptionUpload = rec
	return a.Sessions.Put(ctx, key, state)
}

func activeState(s *pkg.SessionState) conversationState {
	switch {
	case s.PendingPaymentOrder != nil:
		return statePaymentConfirm
	case s.PendingPreorderOffer != nil:
		return statePreorderOffer
	case s.PendingMedicineChoice != nil:
		return stateMedicineChoice
	case s.PendingPartialOrder != nil:
		return statePartialConfirm
	case s.PendingRxConfirmation:
		return stateRxFinalConfirm
	case s.PendingPrescriptionOrder != nil:
		return stateRxPending
	default:
		return stateFresh
	}
}

func (a *Agent) dispatch(ctx context.Context, s *pkg.SessionState, id pkg.Identity, message string) pkg.AgentReply {
	msg := strings.ToLower(strings.TrimSpace(message))

	switch activeState(s) {
	case statePaymentConfirm:
		return a.handlePaymentConfirm(ctx, s, id, msg)
	case statePreorderOffer:
		return a.handlePreorderOffer(s, msg)
	case stateMedicineChoice:
		return a.handleMedicineChoice(ctx, s, id, msg)
	case statePartialConfirm:
		return a.handlePartialConfirm(ctx, s, id, msg)
	case stateRxFinalConfirm:
		return a.handleRxFinalConfirm(ctx, s, id, msg)
	case stateRxPending:
		return a.handleRxPending(ctx, s, id, message, msg)
	default:
		return a.handleFresh(ctx, s, id, message)
	}
}

// handlePaymentConfirm completes or cancels an order parked behind a payment
// link.
func (a *Agent) handlePaymentConfirm(ctx context.Context, s *pkg.SessionState, id pkg.Identity, msg string) pkg.AgentReply {
	order := *s.PendingPaymentOrder
	switch {
	case msg == "paid" || isAffirmative(msg):
		s.PendingPaymentOrder = nil
		return a.execute(ctx, id, order)
	case isNegative(msg):
		s.ClearAll()
		return reply(MsgOrderCancelled)
	default:
		return reply(MsgPaymentReprompt)
	}
}

// handlePreorderOffer resolves a pending out-of-stock pre-order offer.
// Pre-orders are non-binding acknowledgments and never touch inventory.
func (a *Agent) handlePreorderOffer(s *pkg.SessionState, msg string) pkg.AgentReply {
	offer := *s.PendingPreorderOffer
	switch {
	case isAffirmative(msg):
		s.ClearAll()
		return reply(fmt.Sprintf("Pre-order confirmed for %s. We will notify you as soon as it is back in stock (expected in about %d days).",
			offer.MedicineName, offer.RefillDays))
	case isNegative(msg):
		s.ClearAll()
		return reply(MsgOrderCancelled)
	default:
		return reply("Please reply 'Yes' to pre-order or 'No' to skip.")
	}
}

// handleMedicineChoice consumes a numeric disambiguation reply. A valid index
// clears the choice slots and falls through to safety evaluation in the same
// turn; anything else keeps the pending state.
func (a *Agent) handleMedicineChoice(ctx context.Context, s *pkg.SessionState, id pkg.Identity, msg string) pkg.AgentReply {
	choice, err := strconv.Atoi(msg)
	if err != nil {
		return reply(MsgReplyWithOption)
	}
	if choice < 1 || choice > len(s.PendingMedicineChoice) {
		return reply(MsgInvalidOption)
	}
	if s.PendingOrderData == nil {
		s.ClearChoice()
		return reply(MsgChoiceExpired)
	}

	order := *s.PendingOrderData
	order.MedicineName = s.PendingMedicineChoice[choice-1]
	s.ClearChoice()
	return a.evaluate(ctx, s, id, order)
}

// handlePartialConfirm resolves a reduced-quantity offer. A prescription
// requirement remembered from the original decision moves the reduced order
// into the prescription flow instead of executing directly.
func (a *Agent) handlePartialConfirm(ctx context.Context, s *pkg.SessionState, id pkg.Identity, msg string) pkg.AgentReply {
	order := *s.PendingPartialOrder
	requiresRx := s.PendingPartialRequiresRx
	switch {
	case isAffirmative(msg):
		s.ClearPartial()
		if requiresRx {
			return a.enterRxPending(s, order, order.Quantity)
		}
		return a.completeOrder(ctx, s, id, order)
	case isNegative(msg):
		s.ClearAll()
		return reply(MsgOrderCancelled)
	default:
		return reply(MsgReplyYesNo)
	}
}

// handleRxFinalConfirm resolves the yes/no that follows a verified
// prescription when the available quantity changed while waiting.
func (a *Agent) handleRxFinalConfirm(ctx context.Context, s *pkg.SessionState, id pkg.Identity, msg string) pkg.AgentReply {
	if s.PendingPrescriptionOrder == nil {
		s.ClearRx()
		return reply(MsgChoiceExpired)
	}
	switch {
	case isAffirmative(msg):
		order := *s.PendingPrescriptionOrder
		order.Quantity = s.PendingFinalQuantity
		s.ClearRx()
		return a.completeOrder(ctx, s, id, order)
	case isNegative(msg):
		s.ClearAll()
		return reply(MsgOrderCancelled)
	default:
		return reply(MsgReplyYesNo)
	}
}

// handleRxPending processes the turn that follows a prescription request.
// Upload-style replies consume the session's verification record; "no"
// cancels; any other input clears the prescription state and is reprocessed
// as a brand-new message, matching the established behavior.
func (a *Agent) handleRxPending(ctx context.Context, s *pkg.SessionState, id pkg.Identity, message, msg string) pkg.AgentReply {
	if isNegative(msg) {
		s.ClearAll()
		return reply(MsgOrderCancelled)
	}

	if strings.Contains(msg, "upload") || msg == "done" || msg == "yes" {
		rec := s.PendingPrescriptionUpload
		if rec == nil {
			return pkg.AgentReply{Reply: MsgUploadToContinue, PrescriptionRequired: true}
		}
		// Consumed exactly once, whatever the outcome.
		s.PendingPrescriptionUpload = nil

		order := *s.PendingPrescriptionOrder
		if !rec.Verified || !rx.NamesConsistent(rec.MedicineNameMatched, order.MedicineName) {
			s.ClearRx()
			reason := rec.VerificationReason
			if reason == "" {
				reason = "the uploaded prescription could not be verified"
			}
			return reply(fmt.Sprintf("Prescription rejected: %s\nOrder cancelled.", reason))
		}

		// Time has passed since the prescription was requested; re-check
		// stock before committing.
		requested := order.Quantity
		check := order
		check.Quantity = s.PendingFinalQuantity
		decision := a.Safety.Evaluate(ctx, check)
		switch decision.Status {
		case pkg.StatusRejected:
			s.ClearRx()
			if isOutOfStockReason(decision.Reason) {
				return a.offerPreorder(ctx, s, order.MedicineName, decision.Reason)
			}
			return reply("Order Rejected: " + decision.Reason)
		case pkg.StatusPartial:
			s.PendingFinalQuantity = decision.Stock
			s.PendingRxConfirmation = true
			return reply(fmt.Sprintf("Prescription received successfully.\n\nOnly %d units are available (you requested %d).\nWould you like to confirm the partial order?\nReply 'Yes' to confirm or 'No' to cancel.",
				decision.Stock, requested))
		default:
			order.Quantity = s.PendingFinalQuantity
			s.ClearRx()
			out := a.completeOrder(ctx, s, id, order)
			out.Reply = "Prescription received successfully.\n\n" + out.Reply
			return out
		}
	}

	// Unrecognized reply: treat as an unrelated fresh message and drop the
	// prescription state.
	s.ClearRx()
	return a.handleFresh(ctx, s, id, message)
}

// handleFresh classifies a message with no active pending state and either
// answers informationally or runs the extract/resolve/evaluate pipeline.
func (a *Agent) handleFresh(ctx context.Context, s *pkg.SessionState, id pkg.Identity, message string) pkg.AgentReply {
	if !isOrderIntent(message) {
		return a.infoReply(ctx, message)
	}

	order, err := a.Extractor.Extract(ctx, message)
	if err != nil {
		if errors.Is(err, ErrServiceUnavailable) {
			log.Printf("agent: extraction unavailable: %v", err)
			return reply(MsgServiceUnavailable)
		}
		var pe *ParseError
		if errors.As(err, &pe) && pe.RawOutput != "" {
			return reply(fmt.Sprintf("Could not understand your request.\nRaw Output: %s", pe.RawOutput))
		}
		return reply("Could not understand your request: " + err.Error())
	}

	res, err := a.Resolver.Resolve(ctx, order.MedicineName)
	if err != nil {
		log.Printf("agent: resolve failed: %v", err)
		return reply("Inventory is temporarily unavailable. Please try again in a moment.")
	}
	if !res.Found() {
		return reply(fmt.Sprintf("Medicine '%s' not found in inventory.", order.MedicineName))
	}
	if res.Match != "" {
		order.MedicineName = res.Match
		return a.evaluate(ctx, s, id, order)
	}

	s.PendingMedicineChoice = res.Candidates
	s.PendingOrderData = &order
	var options strings.Builder
	for i, name := range res.Candidates {
		fmt.Fprintf(&options, "%d. %s\n", i+1, name)
	}
	return reply("Multiple medicines found. Which one do you want?\n\n" +
		options.String() + "\nReply with option number (1,2,3...).")
}

// evaluate runs the safety check on a resolved order and branches into the
// matching follow-up state or straight into execution.
func (a *Agent) evaluate(ctx context.Context, s *pkg.SessionState, id pkg.Identity, order pkg.Order) pkg.AgentReply {
	decision := a.Safety.Evaluate(ctx, order)

	switch decision.Status {
	case pkg.StatusRejected:
		if isOutOfStockReason(decision.Reason) {
			return a.offerPreorder(ctx, s, order.MedicineName, decision.Reason)
		}
		return reply("Order Rejected: " + decision.Reason)

	case pkg.StatusPartial:
		reduced := order
		reduced.Quantity = decision.Stock
		s.PendingPartialOrder = &reduced
		s.PendingPartialRequiresRx = decision.PrescriptionRequired
		return reply(fmt.Sprintf("Only %d units are available (you requested %d).\nWould you like to order %d units now?\nReply 'Yes' to confirm or 'No' to cancel.",
			decision.Stock, decision.Requested, decision.Stock))

	default: // InStock
		if decision.PrescriptionRequired {
			return a.enterRxPending(s, order, order.Quantity)
		}
		return a.completeOrder(ctx, s, id, order)
	}
}

// enterRxPending parks the order behind a prescription upload and raises the
// prescription_required side-channel signal.
func (a *Agent) enterRxPending(s *pkg.SessionState, order pkg.Order, finalQty int) pkg.AgentReply {
	s.PendingPrescriptionOrder = &order
	s.PendingFinalQuantity = finalQty
	s.PendingRxConfirmation = false
	return pkg.AgentReply{
		Reply: fmt.Sprintf("A prescription is required for %s.\nPlease upload a photo of your prescription to continue.",
			order.MedicineName),
		PrescriptionRequired: true,
	}
}

// offerPreorder pivots an out-of-stock rejection into a pre-order offer.
func (a *Agent) offerPreorder(ctx context.Context, s *pkg.SessionState, medicineName, reason string) pkg.AgentReply {
	offer := &pkg.PreorderOffer{MedicineName: medicineName, RefillDays: a.refillDays(ctx, medicineName)}
	s.PendingPreorderOffer = offer
	return reply(fmt.Sprintf("%s. We expect fresh stock in about %d days.\nWould you like to pre-order it? Reply 'Yes' to reserve or 'No' to skip.",
		reason, offer.RefillDays))
}

// completeOrder finishes a confirmed cycle: the session returns to idle,
// then the order either executes or parks behind a payment link.
func (a *Agent) completeOrder(ctx context.Context, s *pkg.SessionState, id pkg.Identity, order pkg.Order) pkg.AgentReply {
	s.ClearAll()

	if a.Payments != nil {
		amount := a.Executor.unitPrice(ctx, order.MedicineName) * float64(order.Quantity)
		info, err := a.Payments.CreateLink(ctx, order, amount)
		if err != nil {
			log.Printf("agent: payment link failed for %s: %v", order.MedicineName, err)
			return reply("The payment service is temporarily unavailable. Please try again in a moment.")
		}
		s.PendingPaymentOrder = &order
		return pkg.AgentReply{
			Reply: fmt.Sprintf("Your order for %d %s of %s is ready. Total: %.2f.\nPlease complete the payment to confirm: %s\nReply 'Paid' once done, or 'No' to cancel.",
				order.Quantity, order.Unit, order.MedicineName, info.Amount, info.URL),
			PaymentRequired: true,
			Payment:         &info,
		}
	}
	return a.execute(ctx, id, order)
}

func (a *Agent) execute(ctx context.Context, id pkg.Identity, order pkg.Order) pkg.AgentReply {
	msg, err := a.Executor.Execute(ctx, order, id)
	if err != nil {
		log.Printf("agent: execution failed for %s: %v", order.MedicineName, err)
		return reply("Sorry, something went wrong while placing your order. Please try again.")
	}
	return reply(msg)
}

// infoReply answers a non-order message with matching inventory rows, or a
// conversational fallback when nothing matches.
func (a *Agent) infoReply(ctx context.Context, message string) pkg.AgentReply {
	meds, err := a.Inv.Medicines(ctx)
	if err != nil {
		log.Printf("agent: inventory read failed: %v", err)
		return reply("Inventory is temporarily unavailable. Please try again in a moment.")
	}

	query := strings.ToLower(strings.TrimSpace(message))
	var lines []string
	for _, m := range meds {
		if query != "" && strings.Contains(strings.ToLower(m.Name), query) {
			rxFlag := "No"
			if m.PrescriptionRequired {
				rxFlag = "Yes"
			}
			lines = append(lines, fmt.Sprintf("- %s | Stock: %d | Prescription: %s", m.Name, m.Stock, rxFlag))
			if len(lines) == 3 {
				break
			}
		}
	}
	if len(lines) == 0 {
		return reply("I could not find that medicine in our inventory. You can ask about a medicine by name, or place an order like 'I need 2 strips of Paracetamol'.")
	}
	return reply("Medicine Info:\n" + strings.Join(lines, "\n"))
}

func (a *Agent) refillDays(ctx context.Context, medicineName string) int {
	meds, err := a.Inv.Medicines(ctx)
	if err == nil {
		if med, ok := findMedicine(meds, medicineName); ok && med.RefillDays > 0 {
			return med.RefillDays
		}
	}
	return 7
}

func reply(text string) pkg.AgentReply { return pkg.AgentReply{Reply: text} }

func isAffirmative(msg string) bool {
	switch msg {
	case "yes", "y", "confirm", "ok", "okay", "order":
		return true
	}
	return false
}

func isNegative(msg string) bool {
	switch msg {
	case "no", "n", "cancel", "wait":
		return true
	}
	return false
}

func isOutOfStockReason(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "out of stock")
}

var (
	digitRe = regexp.MustCompile(`\d`)
	wordRe  = regexp.MustCompile(`[a-zA-Z]+`)
)

var orderVerbs = map[string]bool{
	"order": true, "buy": true, "need": true, "want": true,
	"refill": true, "book": true, "purchase": true,
}

var quantityUnits = map[string]bool{
	"strip": true, "strips": true, "tablet": true, "tablets": true,
	"bottle": true, "bottles": true, "unit": true, "units": true,
	"pack": true, "packs": true, "ml": true, "mg": true, "g": true,
}

// isOrderIntent reports whether a message looks like an order: it contains a
// digit, or pairs an order verb with a quantity unit.
func isOrderIntent(message string) bool {
	msg := strings.ToLower(message)
	if digitRe.MatchString(msg) {
		return true
	}
	hasVerb, hasUnit := false, false
	for _, w := range wordRe.FindAllString(msg, -1) {
		if orderVerbs[w] {
			hasVerb = true
		}
		if quantityUnits[w] {
			hasUnit = true
		}
	}
	return hasVerb && hasUnit
}
