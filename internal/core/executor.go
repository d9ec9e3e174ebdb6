package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// DefaultUnitPrice is charged when the price source has no positive record
// for a medicine.
const DefaultUnitPrice = 20.0

// Executor commits a decided order against the inventory store. It
// re-validates stock at execution time because decisions can be minutes old
// after a multi-turn confirmation gap, and serializes writes per medicine so
// concurrent executions cannot corrupt stock.
//
// Stock decrement and history append are not one transaction: if the append
// fails the stock change remains and the failure is logged.
type Executor struct {
	Inv     Inventory
	Prices  PriceSource
	History OrderSink
	Notify  OrderNotifier // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewExecutor constructs an Executor. notify may be nil.
func NewExecutor(inv Inventory, prices PriceSource, history OrderSink, notify OrderNotifier) *Executor {
	return &Executor{
		Inv:     inv,
		Prices:  prices,
		History: history,
		Notify:  notify,
		locks:   map[string]*sync.Mutex{},
	}
}

// lockFor returns the mutex serializing writes for one medicine.
func (x *Executor) lockFor(name string) *sync.Mutex {
	x.mu.Lock()
	defer x.mu.Unlock()
	l, ok := x.locks[name]
	if !ok {
		l = &sync.Mutex{}
		x.locks[name] = l
	}
	return l
}

// Execute places the order for the given identity and returns a
// human-readable confirmation or refusal. The error is non-nil only for
// infrastructure failures the caller should translate into a generic reply.
func (x *Executor) Execute(ctx context.Context, order pkg.Order, id pkg.Identity) (string, error) {
	lock := x.lockFor(strings.ToLower(strings.TrimSpace(order.MedicineName)))
	lock.Lock()
	defer lock.Unlock()

	meds, err := x.Inv.Medicines(ctx)
	if err != nil {
		return "", err
	}
	med, ok := findMedicine(meds, order.MedicineName)
	if !ok {
		return fmt.Sprintf("Medicine '%s' not found in inventory.", order.MedicineName), nil
	}
	if med.Stock <= 0 {
		return fmt.Sprintf("Cannot place order. '%s' is out of stock.", med.Name), nil
	}
	if order.Quantity > med.Stock {
		return fmt.Sprintf("Only %d units are available. You requested %d. Please order %d or less.",
			med.Stock, order.Quantity, med.Stock), nil
	}

	unitPrice := x.unitPrice(ctx, med.Name)

	if err := x.Inv.DecrementStock(ctx, med.Name, order.Quantity); err != nil {
		// A concurrent order can still win the race between the read above
		// and this write; the conditional decrement refuses cleanly.
		log.Printf("executor: decrement failed for %s: %v", med.Name, err)
		return fmt.Sprintf("Cannot place order. Stock of '%s' changed, please try again.", med.Name), nil
	}

	rec := pkg.OrderRecord{
		OrderNo:         newOrderNo(),
		PatientID:       firstNonEmpty(id.PatientID, id.Username),
		Username:        firstNonEmpty(id.Username, id.PatientID),
		Phone:           normalizePhone(id.Phone),
		MedicineName:    med.Name,
		Quantity:        order.Quantity,
		Unit:            firstNonEmpty(order.Unit, "strip"),
		DosageFrequency: med.DosageInfo,
		UnitPrice:       unitPrice,
		TotalPrice:      unitPrice * float64(order.Quantity),
		Source:          "chat-confirmation",
		Status:          "Placed",
		OrderedAt:       time.Now().UTC(),
	}
	if err := x.History.AppendOrder(ctx, rec); err != nil {
		log.Printf("executor: history append failed for %s: %v", rec.OrderNo, err)
	}
	if err := x.History.UpsertContact(ctx, pkg.Contact{PatientID: rec.PatientID, Phone: rec.Phone}); err != nil {
		log.Printf("executor: contact upsert failed for %s: %v", rec.PatientID, err)
	}
	if x.Notify != nil {
		if err := x.Notify.OrderPlaced(ctx, rec.OrderNo); err != nil {
			log.Printf("executor: order notification failed for %s: %v", rec.OrderNo, err)
		}
	}

	return fmt.Sprintf("Order Confirmed!\nOrder No: %s\nMedicine: %s\nQuantity: %d %s\nTotal Price: %.2f",
		rec.OrderNo, rec.MedicineName, rec.Quantity, rec.Unit, rec.TotalPrice), nil
}

func (x *Executor) unitPrice(ctx context.Context, name string) float64 {
	if x.Prices == nil {
		return DefaultUnitPrice
	}
	price, ok, err := x.Prices.Price(ctx, name)
	if err != nil {
		log.Printf("executor: price lookup failed for %s: %v", name, err)
		return DefaultUnitPrice
	}
	if !ok || price <= 0 {
		return DefaultUnitPrice
	}
	return price
}

func newOrderNo() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizePhone reduces a phone number to +<digits>, defaulting bare
// 10-digit local numbers to the +91 country code.
func normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	hadPlus := strings.HasPrefix(raw, "+")
	var digits strings.Builder
	for _, ch := range raw {
		if ch >= '0' && ch <= '9' {
			digits.WriteRune(ch)
		}
	}
	d := digits.String()
	if d == "" {
		return ""
	}
	if !hadPlus && len(d) == 10 {
		return "+91" + d
	}
	return "+" + d
}
