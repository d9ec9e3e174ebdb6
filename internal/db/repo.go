package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// ErrInsufficientStock is returned by DecrementStock when the medicine is
// missing or its current stock is below the requested quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

// Repository wraps database operations for inventory, prices, order history,
// contacts and prescription submissions. A single postgres database backs all
// of them.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// Medicines returns the full inventory in insertion order. It always queries
// the database so concurrent stock edits are visible on the next call.
func (r *Repository) Medicines(ctx context.Context) ([]pkg.Medicine, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT medicine_name, stock, prescription_required,
		        COALESCE(price, 0), refill_days, description, dosage_info
		 FROM medicines
		 ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Medicine
	for rows.Next() {
		var m pkg.Medicine
		var rx string
		if err := rows.Scan(&m.Name, &m.Stock, &rx, &m.Price, &m.RefillDays, &m.Description, &m.DosageInfo); err != nil {
			return nil, err
		}
		m.PrescriptionRequired = strings.EqualFold(strings.TrimSpace(rx), "yes")
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMedicine inserts or replaces one inventory row.
func (r *Repository) UpsertMedicine(ctx context.Context, m pkg.Medicine) error {
	rx := "No"
	if m.PrescriptionRequired {
		rx = "Yes"
	}
	refill := m.RefillDays
	if refill <= 0 {
		refill = 7
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO medicines (medicine_name, stock, prescription_required, price, refill_days, description, dosage_info)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (medicine_name) DO UPDATE
		 SET stock = EXCLUDED.stock,
		     prescription_required = EXCLUDED.prescription_required,
		     price = EXCLUDED.price,
		     refill_days = EXCLUDED.refill_days,
		     description = EXCLUDED.description,
		     dosage_info = EXCLUDED.dosage_info`,
		m.Name, m.Stock, rx, m.Price, refill, m.Description, m.DosageInfo)
	return err
}

// DecrementStock atomically reduces a medicine's stock. The conditional
// UPDATE guards against lost updates even when two orders race past the
// executor's per-medicine lock.
func (r *Repository) DecrementStock(ctx context.Context, name string, qty int) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE medicines
		 SET stock = stock - $2
		 WHERE LOWER(medicine_name) = LOWER($1) AND stock >= $2`,
		name, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w for %s", ErrInsufficientStock, name)
	}
	return nil
}

// Price looks up the recommended price for a medicine in the secondary price
// table. The bool reports whether a positive price record exists.
func (r *Repository) Price(ctx context.Context, name string) (float64, bool, error) {
	var price float64
	err := r.DB.QueryRowContext(ctx,
		`SELECT COALESCE(recommended_price, 0)
		 FROM medicine_prices
		 WHERE LOWER(medicine_name) = LOWER($1)`, name).Scan(&price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return price, price > 0, nil
}

// AppendOrder stores one order-history record.
func (r *Repository) AppendOrder(ctx context.Context, rec pkg.OrderRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO order_history
		 (order_no, patient_id, username, phone, medicine_name, quantity, unit,
		  dosage_frequency, unit_price, total_price, source, status, ordered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.OrderNo, rec.PatientID, rec.Username, rec.Phone, rec.MedicineName,
		rec.Quantity, rec.Unit, rec.DosageFrequency, rec.UnitPrice, rec.TotalPrice,
		rec.Source, rec.Status, rec.OrderedAt)
	return err
}

// ListOrders returns history records, newest first, optionally filtered by
// patient ID and phone. A non-positive limit returns everything.
func (r *Repository) ListOrders(ctx context.Context, patientID, phone string, limit int) ([]pkg.OrderRecord, error) {
	query := `SELECT order_no, patient_id, username, phone, medicine_name, quantity, unit,
	                 dosage_frequency, unit_price, total_price, source, status, ordered_at
	          FROM order_history WHERE 1=1`
	args := []any{}
	if patientID != "" {
		args = append(args, patientID)
		query += fmt.Sprintf(" AND LOWER(patient_id) = LOWER($%d)", len(args))
	}
	if phone != "" {
		args = append(args, phone)
		query += fmt.Sprintf(" AND phone = $%d", len(args))
	}
	query += " ORDER BY ordered_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.OrderRecord
	for rows.Next() {
		var rec pkg.OrderRecord
		if err := rows.Scan(&rec.OrderNo, &rec.PatientID, &rec.Username, &rec.Phone,
			&rec.MedicineName, &rec.Quantity, &rec.Unit, &rec.DosageFrequency,
			&rec.UnitPrice, &rec.TotalPrice, &rec.Source, &rec.Status, &rec.OrderedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestOrders returns the most recent order per (patient, medicine) pair,
// which is what refill prediction works from.
func (r *Repository) LatestOrders(ctx context.Context) ([]pkg.OrderRecord, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT DISTINCT ON (patient_id, LOWER(medicine_name))
		        order_no, patient_id, username, phone, medicine_name, quantity, unit,
		        dosage_frequency, unit_price, total_price, source, status, ordered_at
		 FROM order_history
		 WHERE patient_id <> '' AND medicine_name <> ''
		 ORDER BY patient_id, LOWER(medicine_name), ordered_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.OrderRecord
	for rows.Next() {
		var rec pkg.OrderRecord
		if err := rows.Scan(&rec.OrderNo, &rec.PatientID, &rec.Username, &rec.Phone,
			&rec.MedicineName, &rec.Quantity, &rec.Unit, &rec.DosageFrequency,
			&rec.UnitPrice, &rec.TotalPrice, &rec.Source, &rec.Status, &rec.OrderedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertContact creates or updates the contact row for a patient. Empty
// incoming fields never overwrite stored values.
func (r *Repository) UpsertContact(ctx context.Context, c pkg.Contact) error {
	if c.PatientID == "" {
		return nil
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO contacts (patient_id, phone, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (patient_id) DO UPDATE
		 SET phone = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE contacts.phone END,
		     email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE contacts.email END`,
		c.PatientID, c.Phone, c.Email)
	return err
}

// Contact fetches one contact row; a missing patient yields an empty contact.
func (r *Repository) Contact(ctx context.Context, patientID string) (pkg.Contact, error) {
	var c pkg.Contact
	err := r.DB.QueryRowContext(ctx,
		`SELECT patient_id, phone, email FROM contacts WHERE patient_id = $1`,
		patientID).Scan(&c.PatientID, &c.Phone, &c.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pkg.Contact{PatientID: patientID}, nil
		}
		return pkg.Contact{}, err
	}
	return c, nil
}

// LogPrescription appends one prescription-submission record.
func (r *Repository) LogPrescription(ctx context.Context, rec pkg.VerificationRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO prescription_submissions
		 (id, submitted_at, medicine_name_requested, medicine_name_matched,
		  prescription_required_in_dataset, ocr_ok, ocr_error, ocr_text,
		  medicine_name_present, verified, verification_reason,
		  stored_file, mime_type, size_bytes, sha256)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.SubmittedAt, rec.MedicineNameRequested, rec.MedicineNameMatched,
		rec.PrescriptionRequiredInDataset, rec.OCROk, rec.OCRError, rec.OCRText,
		rec.MedicineNamePresent, rec.Verified, rec.VerificationReason,
		rec.StoredFile, rec.MimeType, rec.SizeBytes, rec.SHA256)
	return err
}

// MarkReminderSent records a dispatched reminder key. It reports false when
// the key was already present, so callers skip duplicate sends.
func (r *Repository) MarkReminderSent(ctx context.Context, key, channel string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO reminder_dispatch_log (sent_key, channel)
		 VALUES ($1, $2)
		 ON CONFLICT (sent_key) DO NOTHING`, key, channel)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
