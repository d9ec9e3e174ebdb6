package reminder

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/notify"
	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// HistorySource supplies the order history and contact data refill
// prediction works from, plus dispatch deduplication.
type HistorySource interface {
	LatestOrders(ctx context.Context) ([]pkg.OrderRecord, error)
	Contact(ctx context.Context, patientID string) (pkg.Contact, error)
	MarkReminderSent(ctx context.Context, key, channel string) (bool, error)
}

// Service computes due refills and dispatches reminders. Either sender may be
// nil; the corresponding channel is then skipped.
type Service struct {
	History  HistorySource
	Email    *notify.EmailSender
	WhatsApp *notify.WhatsAppSender

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// NewService constructs a reminder Service.
func NewService(history HistorySource, email *notify.EmailSender, whatsapp *notify.WhatsAppSender) *Service {
	return &Service{History: history, Email: email, WhatsApp: whatsapp, Now: time.Now}
}

// SendReport summarises one dispatch run.
type SendReport struct {
	Due      int `json:"due"`
	Emailed  int `json:"emailed"`
	Messaged int `json:"messaged"`
	Skipped  int `json:"skipped"`
}

// Preview returns the refills due today without sending anything, with
// contact details merged in.
func (s *Service) Preview(ctx context.Context) ([]DueRefill, error) {
	orders, err := s.History.LatestOrders(ctx)
	if err != nil {
		return nil, err
	}
	due := dueFromOrders(orders, s.Now().UTC())
	for i := range due {
		contact, err := s.History.Contact(ctx, due[i].PatientID)
		if err != nil {
			log.Printf("reminder: contact lookup failed for %s: %v", due[i].PatientID, err)
			continue
		}
		due[i].Email = contact.Email
		if due[i].Phone == "" {
			due[i].Phone = contact.Phone
		}
	}
	return due, nil
}

// Send dispatches one reminder per due refill over every available channel,
// deduplicated per patient, medicine and day.
func (s *Service) Send(ctx context.Context) (SendReport, error) {
	due, err := s.Preview(ctx)
	if err != nil {
		return SendReport{}, err
	}

	report := SendReport{Due: len(due)}
	day := s.Now().UTC().Format("2006-01-02")
	for _, d := range due {
		key := fmt.Sprintf("%s|%s|%s", d.PatientID, strings.ToLower(d.MedicineName), day)
		fresh, err := s.History.MarkReminderSent(ctx, key, channelsFor(d))
		if err != nil {
			log.Printf("reminder: dedup check failed for %s: %v", key, err)
			continue
		}
		if !fresh {
			report.Skipped++
			continue
		}

		body := reminderMessage(d)
		if s.Email != nil && d.Email != "" {
			if err := s.Email.Send(d.Email, "Medicine Refill Reminder", body); err != nil {
				log.Printf("reminder: email to %s failed: %v", d.Email, err)
			} else {
				report.Emailed++
			}
		}
		if s.WhatsApp != nil && d.Phone != "" {
			if err := s.WhatsApp.Send(ctx, d.Phone, body); err != nil {
				log.Printf("reminder: whatsapp to %s failed: %v", d.Phone, err)
			} else {
				report.Messaged++
			}
		}
	}
	return report, nil
}

// Run is the cron entry point: it sends reminders and logs the outcome.
func (s *Service) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	report, err := s.Send(ctx)
	if err != nil {
		log.Printf("reminder: run failed: %v", err)
		return
	}
	log.Printf("reminder: run complete: due=%d emailed=%d messaged=%d skipped=%d",
		report.Due, report.Emailed, report.Messaged, report.Skipped)
}

func reminderMessage(d DueRefill) string {
	name := d.Username
	if name == "" {
		name = d.PatientID
	}
	return fmt.Sprintf("Hello %s, your %s supply should be running out (refill was due %s). Reply here or visit the pharmacy to reorder.",
		name, d.MedicineName, d.NextRefillDate.Format("2 Jan 2006"))
}

func channelsFor(d DueRefill) string {
	var ch []string
	if d.Email != "" {
		ch = append(ch, "email")
	}
	if d.Phone != "" {
		ch = append(ch, "whatsapp")
	}
	return strings.Join(ch, ",")
}
