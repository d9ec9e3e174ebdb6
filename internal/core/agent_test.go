package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/db"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/session"
	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

type fakeInventory struct {
	mu   sync.Mutex
	meds []pkg.Medicine
	err  error
}

func (f *fakeInventory) Medicines(ctx context.Context) ([]pkg.Medicine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]pkg.Medicine, len(f.meds))
	copy(out, f.meds)
	return out, nil
}

func (f *fakeInventory) DecrementStock(ctx context.Context, name string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.meds {
		if strings.EqualFold(f.meds[i].Name, name) {
			if f.meds[i].Stock < qty {
				return db.ErrInsufficientStock
			}
			f.meds[i].Stock -= qty
			return nil
		}
	}
	return db.ErrInsufficientStock
}

func (f *fakeInventory) stock(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.meds {
		if strings.EqualFold(m.Name, name) {
			return m.Stock
		}
	}
	return -1
}

type fakeLLM struct {
	out string
	err error
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return f.out, f.err
}

type fakeHistory struct {
	mu       sync.Mutex
	orders   []pkg.OrderRecord
	contacts []pkg.Contact
}

func (f *fakeHistory) AppendOrder(ctx context.Context, rec pkg.OrderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, rec)
	return nil
}

func (f *fakeHistory) UpsertContact(ctx context.Context, c pkg.Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts = append(f.contacts, c)
	return nil
}

type fakePayments struct {
	err   error
	calls int
}

func (f *fakePayments) CreateLink(ctx context.Context, order pkg.Order, amount float64) (pkg.PaymentInfo, error) {
	f.calls++
	if f.err != nil {
		return pkg.PaymentInfo{}, f.err
	}
	return pkg.PaymentInfo{LinkID: "pay_test", URL: "https://pay.example/pay_test", Amount: amount}, nil
}

func newTestAgent(inv *fakeInventory, model *fakeLLM, payments PaymentLinker) (*Agent, *fakeHistory) {
	history := &fakeHistory{}
	executor := NewExecutor(inv, nil, history, nil)
	agent := NewAgent(NewExtractor(model), NewResolver(inv), NewEvaluator(inv), executor,
		inv, session.NewMemoryStore(), payments)
	return agent, history
}

func send(t *testing.T, a *Agent, key, message string) pkg.AgentReply {
	t.Helper()
	reply, err := a.HandleMessage(context.Background(), key, pkg.Identity{PatientID: "p1", Username: "ravi", Phone: "9876543210"}, message)
	require.NoError(t, err)
	return reply
}

func TestInStockOrderCompletes(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Paracetamol", Stock: 50}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Paracetamol", "quantity": 2, "unit": "strip"}`}, nil)

	reply := send(t, agent, "s1", "I need 2 strips of Paracetamol")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	assert.Contains(t, reply.Reply, "Medicine: Paracetamol")
	assert.Contains(t, reply.Reply, "Quantity: 2 strip")
	assert.False(t, reply.PrescriptionRequired)

	assert.Equal(t, 48, inv.stock("Paracetamol"))
	require.Len(t, history.orders, 1)
	assert.Equal(t, "Placed", history.orders[0].Status)
	assert.Equal(t, "+919876543210", history.orders[0].Phone)
}

func TestNotFoundMedicine(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Paracetamol", Stock: 50}}}
	agent, _ := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Zyrtomol", "quantity": 2}`}, nil)

	reply := send(t, agent, "s1", "I need 2 strips of Zyrtomol")
	assert.Equal(t, "Medicine 'Zyrtomol' not found in inventory.", reply.Reply)
}

func TestMedicineChoiceFlow(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{
		{Name: "Paracetamol 500mg", Stock: 40},
		{Name: "Paracetamol 650mg", Stock: 30},
	}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Paracetamol", "quantity": 3}`}, nil)

	reply := send(t, agent, "s1", "order 3 strips of paracetamol")
	assert.Contains(t, reply.Reply, "Multiple medicines found")
	assert.Contains(t, reply.Reply, "1. Paracetamol 500mg")
	assert.Contains(t, reply.Reply, "2. Paracetamol 650mg")

	// Non-numeric input keeps the pending choice.
	reply = send(t, agent, "s1", "the second one")
	assert.Equal(t, MsgReplyWithOption, reply.Reply)

	// Out-of-range index keeps the pending choice.
	reply = send(t, agent, "s1", "9")
	assert.Equal(t, MsgInvalidOption, reply.Reply)

	reply = send(t, agent, "s1", "2")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	assert.Contains(t, reply.Reply, "Paracetamol 650mg")
	assert.Equal(t, 27, inv.stock("Paracetamol 650mg"))
	assert.Equal(t, 40, inv.stock("Paracetamol 500mg"))
	require.Len(t, history.orders, 1)
}

func TestPartialOfferConfirm(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Cetirizine", Stock: 3}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Cetirizine", "quantity": 10}`}, nil)

	reply := send(t, agent, "s1", "buy 10 strips of cetirizine")
	assert.Contains(t, reply.Reply, "Only 3 units are available (you requested 10).")
	assert.Contains(t, reply.Reply, "Would you like to order 3 units now?")

	reply = send(t, agent, "s1", "hmm")
	assert.Equal(t, MsgReplyYesNo, reply.Reply)

	reply = send(t, agent, "s1", "yes")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	assert.Contains(t, reply.Reply, "Quantity: 3 strip")
	assert.Equal(t, 0, inv.stock("Cetirizine"))
	require.Len(t, history.orders, 1)
	assert.Equal(t, 3, history.orders[0].Quantity)
}

func TestPartialOfferDecline(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Cetirizine", Stock: 3}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Cetirizine", "quantity": 10}`}, nil)

	send(t, agent, "s1", "buy 10 strips of cetirizine")
	reply := send(t, agent, "s1", "no")
	assert.Equal(t, MsgOrderCancelled, reply.Reply)
	assert.Equal(t, 3, inv.stock("Cetirizine"))
	assert.Empty(t, history.orders)
}

func TestOutOfStockPreorderOffer(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Insulin", Stock: 0, RefillDays: 5}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Insulin", "quantity": 2}`}, nil)

	reply := send(t, agent, "s1", "need 2 units of insulin")
	assert.Contains(t, reply.Reply, "Insulin is out of stock")
	assert.Contains(t, reply.Reply, "about 5 days")
	assert.Contains(t, reply.Reply, "pre-order")

	reply = send(t, agent, "s1", "yes")
	assert.Contains(t, reply.Reply, "Pre-order confirmed for Insulin")
	assert.Contains(t, reply.Reply, "about 5 days")
	assert.Empty(t, history.orders)

	// The offer is consumed; the session is idle again.
	reply = send(t, agent, "s1", "insulin")
	assert.Contains(t, reply.Reply, "Stock: 0")
}

func TestPreorderOfferDeclined(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Insulin", Stock: 0}}}
	agent, _ := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Insulin", "quantity": 2}`}, nil)

	send(t, agent, "s1", "need 2 units of insulin")
	reply := send(t, agent, "s1", "no")
	assert.Equal(t, MsgOrderCancelled, reply.Reply)
}

func TestPrescriptionFlowVerified(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Amoxicillin", Stock: 30, PrescriptionRequired: true}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Amoxicillin", "quantity": 2}`}, nil)

	reply := send(t, agent, "s1", "order 2 strips of amoxicillin")
	assert.Contains(t, reply.Reply, "A prescription is required for Amoxicillin.")
	assert.True(t, reply.PrescriptionRequired)

	// Claiming an upload with no record on the session re-prompts.
	reply = send(t, agent, "s1", "uploaded it")
	assert.Equal(t, MsgUploadToContinue, reply.Reply)
	assert.True(t, reply.PrescriptionRequired)

	rec := &pkg.VerificationRecord{
		MedicineNameMatched: "Amoxicillin",
		Verified:            true,
		VerificationReason:  "Prescription verified. Found medicine name 'Amoxicillin' in uploaded image.",
	}
	require.NoError(t, agent.AttachPrescription(context.Background(), "s1", rec))

	reply = send(t, agent, "s1", "upload")
	assert.Contains(t, reply.Reply, "Prescription received successfully.")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	assert.Equal(t, 28, inv.stock("Amoxicillin"))
	require.Len(t, history.orders, 1)
}

func TestPrescriptionRejected(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Amoxicillin", Stock: 30, PrescriptionRequired: true}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Amoxicillin", "quantity": 2}`}, nil)

	send(t, agent, "s1", "order 2 strips of amoxicillin")
	rec := &pkg.VerificationRecord{
		Verified:           false,
		VerificationReason: "Uploaded prescription does not contain medicine name 'Amoxicillin'.",
	}
	require.NoError(t, agent.AttachPrescription(context.Background(), "s1", rec))

	reply := send(t, agent, "s1", "upload")
	assert.Contains(t, reply.Reply, "Prescription rejected: Uploaded prescription does not contain medicine name 'Amoxicillin'.")
	assert.Contains(t, reply.Reply, "Order cancelled.")
	assert.Equal(t, 30, inv.stock("Amoxicillin"))
	assert.Empty(t, history.orders)
}

func TestPrescriptionMismatchedMedicineRejected(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Amoxicillin", Stock: 30, PrescriptionRequired: true}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Amoxicillin", "quantity": 2}`}, nil)

	send(t, agent, "s1", "order 2 strips of amoxicillin")
	rec := &pkg.VerificationRecord{
		MedicineNameMatched: "Metformin",
		Verified:            true,
		VerificationReason:  "Prescription verified. Found medicine name 'Metformin' in uploaded image.",
	}
	require.NoError(t, agent.AttachPrescription(context.Background(), "s1", rec))

	reply := send(t, agent, "s1", "upload")
	assert.Contains(t, reply.Reply, "Prescription rejected:")
	assert.Empty(t, history.orders)
}

func TestPrescriptionStockShrankWhileWaiting(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Amoxicillin", Stock: 10, PrescriptionRequired: true}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Amoxicillin", "quantity": 10}`}, nil)

	send(t, agent, "s1", "order 10 strips of amoxicillin")

	// Another sale drains most of the stock during the upload gap.
	require.NoError(t, inv.DecrementStock(context.Background(), "Amoxicillin", 7))

	rec := &pkg.VerificationRecord{MedicineNameMatched: "Amoxicillin", Verified: true}
	require.NoError(t, agent.AttachPrescription(context.Background(), "s1", rec))

	reply := send(t, agent, "s1", "upload")
	assert.Contains(t, reply.Reply, "Prescription received successfully.")
	assert.Contains(t, reply.Reply, "Only 3 units are available (you requested 10).")
	assert.Contains(t, reply.Reply, "confirm the partial order")

	reply = send(t, agent, "s1", "yes")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	require.Len(t, history.orders, 1)
	assert.Equal(t, 3, history.orders[0].Quantity)
	assert.Equal(t, 0, inv.stock("Amoxicillin"))
}

func TestPrescriptionPendingUnrelatedMessageClearsState(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{
		{Name: "Amoxicillin", Stock: 30, PrescriptionRequired: true},
		{Name: "Paracetamol", Stock: 50},
	}}
	model := &fakeLLM{out: `{"medicine_name": "Amoxicillin", "quantity": 2}`}
	agent, history := newTestAgent(inv, model, nil)

	send(t, agent, "s1", "order 2 strips of amoxicillin")

	// A reply that is neither an upload claim nor a cancellation abandons
	// the prescription flow and is processed as a brand-new request.
	model.out = `{"medicine_name": "Paracetamol", "quantity": 2}`
	reply := send(t, agent, "s1", "actually give me 2 strips of paracetamol")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	assert.Contains(t, reply.Reply, "Paracetamol")

	state, err := agent.Sessions.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, state.PendingPrescriptionOrder)
	assert.Equal(t, 30, inv.stock("Amoxicillin"))
	require.Len(t, history.orders, 1)
	assert.Equal(t, "Paracetamol", history.orders[0].MedicineName)
}

func TestPartialThenPrescription(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Amoxicillin", Stock: 3, PrescriptionRequired: true}}}
	agent, _ := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Amoxicillin", "quantity": 10}`}, nil)

	reply := send(t, agent, "s1", "order 10 strips of amoxicillin")
	assert.Contains(t, reply.Reply, "Only 3 units are available")

	// Accepting the reduced quantity still routes through the
	// prescription gate before anything executes.
	reply = send(t, agent, "s1", "yes")
	assert.Contains(t, reply.Reply, "A prescription is required for Amoxicillin.")
	assert.True(t, reply.PrescriptionRequired)
	assert.Equal(t, 3, inv.stock("Amoxicillin"))
}

func TestServiceUnavailableReply(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Paracetamol", Stock: 50}}}
	agent, _ := newTestAgent(inv, &fakeLLM{err: errors.New("connection refused")}, nil)

	reply := send(t, agent, "s1", "I need 2 strips of Paracetamol")
	assert.Equal(t, MsgServiceUnavailable, reply.Reply)
}

func TestUnparseableModelOutputSurfacesRaw(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Paracetamol", Stock: 50}}}
	agent, _ := newTestAgent(inv, &fakeLLM{out: "I think you want some paracetamol"}, nil)

	reply := send(t, agent, "s1", "I need 2 strips of Paracetamol")
	assert.Contains(t, reply.Reply, "Could not understand your request.")
	assert.Contains(t, reply.Reply, "Raw Output: I think you want some paracetamol")
}

func TestInfoReplyForNonOrderMessage(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{
		{Name: "Paracetamol", Stock: 50},
		{Name: "Amoxicillin", Stock: 30, PrescriptionRequired: true},
	}}
	agent, _ := newTestAgent(inv, &fakeLLM{out: `{}`}, nil)

	reply := send(t, agent, "s1", "amoxicillin")
	assert.Contains(t, reply.Reply, "Medicine Info:")
	assert.Contains(t, reply.Reply, "- Amoxicillin | Stock: 30 | Prescription: Yes")

	reply = send(t, agent, "s1", "do you deliver on sundays")
	assert.Contains(t, reply.Reply, "I could not find that medicine")
}

func TestPaymentHandoff(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Paracetamol", Stock: 50}}}
	payments := &fakePayments{}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Paracetamol", "quantity": 2}`}, payments)

	reply := send(t, agent, "s1", "I need 2 strips of Paracetamol")
	assert.True(t, reply.PaymentRequired)
	require.NotNil(t, reply.Payment)
	assert.Equal(t, 40.0, reply.Payment.Amount)
	assert.Contains(t, reply.Reply, "complete the payment")
	assert.Equal(t, 50, inv.stock("Paracetamol"))
	assert.Empty(t, history.orders)

	reply = send(t, agent, "s1", "paid")
	assert.Contains(t, reply.Reply, "Order Confirmed!")
	assert.Equal(t, 48, inv.stock("Paracetamol"))
	require.Len(t, history.orders, 1)
	assert.Equal(t, 1, payments.calls)
}

func TestPaymentCancelled(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{{Name: "Paracetamol", Stock: 50}}}
	agent, history := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Paracetamol", "quantity": 2}`}, &fakePayments{})

	send(t, agent, "s1", "I need 2 strips of Paracetamol")
	reply := send(t, agent, "s1", "later")
	assert.Equal(t, MsgPaymentReprompt, reply.Reply)

	reply = send(t, agent, "s1", "no")
	assert.Equal(t, MsgOrderCancelled, reply.Reply)
	assert.Equal(t, 50, inv.stock("Paracetamol"))
	assert.Empty(t, history.orders)
}

func TestSessionsAreIsolated(t *testing.T) {
	inv := &fakeInventory{meds: []pkg.Medicine{
		{Name: "Paracetamol 500mg", Stock: 40},
		{Name: "Paracetamol 650mg", Stock: 30},
	}}
	agent, _ := newTestAgent(inv, &fakeLLM{out: `{"medicine_name": "Paracetamol", "quantity": 3}`}, nil)

	reply := send(t, agent, "alice", "order 3 strips of paracetamol")
	assert.Contains(t, reply.Reply, "Multiple medicines found")

	// A different session is not stuck in alice's disambiguation.
	reply = send(t, agent, "bob", "paracetamol 650")
	assert.NotEqual(t, MsgReplyWithOption, reply.Reply)
}

func TestOrderIntentDetection(t *testing.T) {
	assert.True(t, isOrderIntent("I need 2 strips of Paracetamol"))
	assert.True(t, isOrderIntent("give me 10 dolo"))
	assert.True(t, isOrderIntent("order a strip of crocin"))
	assert.True(t, isOrderIntent("buy one bottle of cough syrup"))
	assert.False(t, isOrderIntent("what is paracetamol used for"))
	assert.False(t, isOrderIntent("do you have dolo"))
	assert.False(t, isOrderIntent("hello"))
}
