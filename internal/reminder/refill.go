package reminder

import (
	"time"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// DueRefill is one patient/medicine pair whose supply should have run out.
type DueRefill struct {
	PatientID      string    `json:"patient_id"`
	Username       string    `json:"username"`
	Phone          string    `json:"phone,omitempty"`
	Email          string    `json:"email,omitempty"`
	MedicineName   string    `json:"medicine_name"`
	NextRefillDate time.Time `json:"next_refill_date"`
	DaysOverdue    int       `json:"days_overdue"`
}

// NextRefillDate predicts when a patient will run out of the ordered
// quantity. As-needed schedules are unpredictable and return false.
func NextRefillDate(orderedAt time.Time, quantity int, dosage string) (time.Time, bool) {
	if quantity <= 0 {
		return time.Time{}, false
	}
	dose := NormalizeDosage(dosage)
	if dose.Schedule == ScheduleAsNeeded || dose.UnitsPerDay <= 0 {
		return time.Time{}, false
	}
	days := int(float64(quantity) / dose.UnitsPerDay)
	if days < 1 {
		days = 1
	}
	return orderedAt.AddDate(0, 0, days), true
}

// dueFromOrders filters the latest order per patient/medicine down to those
// whose predicted refill date is on or before today.
func dueFromOrders(orders []pkg.OrderRecord, today time.Time) []DueRefill {
	var due []DueRefill
	for _, o := range orders {
		next, ok := NextRefillDate(o.OrderedAt, o.Quantity, o.DosageFrequency)
		if !ok {
			continue
		}
		overdue := int(today.Sub(next).Hours() / 24)
		if overdue < 0 {
			continue
		}
		due = append(due, DueRefill{
			PatientID:      o.PatientID,
			Username:       o.Username,
			Phone:          o.Phone,
			MedicineName:   o.MedicineName,
			NextRefillDate: next,
			DaysOverdue:    overdue,
		})
	}
	return due
}
