package pkg

import "time"

// SafetyStatus is the verdict of a stock/prescription safety check.
type SafetyStatus string

const (
	StatusRejected SafetyStatus = "Rejected"
	StatusPartial  SafetyStatus = "Partial"
	StatusInStock  SafetyStatus = "InStock"
)

// Order is a transient order request extracted from a user message or
// reconstructed from conversational context. It is never persisted directly;
// only the executed outcome is.
type Order struct {
	MedicineName string `json:"medicine_name"`
	Quantity     int    `json:"quantity"`
	Unit         string `json:"unit"`
}

// SafetyDecision is the outcome of evaluating an Order against the current
// inventory snapshot. It is recomputed on every check because stock can
// change between conversation turns.
type SafetyDecision struct {
	Status               SafetyStatus `json:"status"`
	Reason               string       `json:"reason"`
	Stock                int          `json:"stock"`
	Requested            int          `json:"requested"`
	PrescriptionRequired bool         `json:"prescription_required"`
}

// Medicine is one inventory row. PrescriptionRequired mirrors the dataset's
// "Yes"/"No" column as a bool; Price may be zero when no price record exists.
type Medicine struct {
	Name                 string  `json:"medicine_name"`
	Stock                int     `json:"stock"`
	PrescriptionRequired bool    `json:"prescription_required"`
	Price                float64 `json:"price,omitempty"`
	RefillDays           int     `json:"refill_days,omitempty"`
	Description          string  `json:"description,omitempty"`
	DosageInfo           string  `json:"dosage_info,omitempty"`
}

// PreorderOffer is a non-binding out-of-stock offer awaiting a yes/no reply.
type PreorderOffer struct {
	MedicineName string `json:"medicine_name"`
	RefillDays   int    `json:"refill_days"`
}

// PaymentInfo describes a generated payment link handed to the user before an
// order is executed, in deployments with payment integration enabled.
type PaymentInfo struct {
	LinkID string  `json:"link_id"`
	URL    string  `json:"url"`
	Amount float64 `json:"amount"`
}

// VerificationRecord is produced once per prescription upload and consumed
// exactly once by the conversation controller's prescription branch.
type VerificationRecord struct {
	ID                            string    `json:"id"`
	SubmittedAt                   time.Time `json:"submitted_at"`
	MedicineNameRequested         string    `json:"medicine_name_requested"`
	MedicineNameMatched           string    `json:"medicine_name_matched"`
	PrescriptionRequiredInDataset bool      `json:"prescription_required_in_dataset"`
	OCROk                         bool      `json:"ocr_ok"`
	OCRError                      string    `json:"ocr_error,omitempty"`
	OCRText                       string    `json:"ocr_text,omitempty"`
	MedicineNamePresent           bool      `json:"medicine_name_present_in_prescription"`
	Verified                      bool      `json:"verified"`
	VerificationReason            string    `json:"verification_reason"`
	StoredFile                    string    `json:"stored_file,omitempty"`
	OriginalFilename              string    `json:"original_filename,omitempty"`
	MimeType                      string    `json:"mime_type,omitempty"`
	SizeBytes                     int       `json:"size_bytes"`
	SHA256                        string    `json:"sha256,omitempty"`
}

// SessionState holds the pending slots of one conversation. The controller
// checks slots in a fixed priority order; each slot is created by the branch
// that needs a follow-up and cleared by the matching confirmation branch.
// The zero value is the idle state.
type SessionState struct {
	PendingMedicineChoice []string `json:"pending_medicine_choice,omitempty"`
	PendingOrderData      *Order   `json:"pending_order_data,omitempty"`

	PendingPartialOrder      *Order `json:"pending_partial_order,omitempty"`
	PendingPartialRequiresRx bool   `json:"pending_partial_requires_rx,omitempty"`

	PendingPrescriptionOrder *Order `json:"pending_prescription_order,omitempty"`
	PendingFinalQuantity     int    `json:"pending_final_quantity,omitempty"`
	PendingRxConfirmation    bool   `json:"pending_rx_confirmation,omitempty"`

	PendingPreorderOffer *PreorderOffer `json:"pending_preorder_offer,omitempty"`

	PendingPaymentOrder *Order `json:"pending_payment_order,omitempty"`

	// PendingPrescriptionUpload is the most recent uploaded-and-verified
	// prescription for this session, consumed once.
	PendingPrescriptionUpload *VerificationRecord `json:"pending_prescription_upload,omitempty"`
}

// ClearChoice resets the medicine-disambiguation slots.
func (s *SessionState) ClearChoice() {
	s.PendingMedicineChoice = nil
	s.PendingOrderData = nil
}

// ClearPartial resets the partial-stock confirmation slots.
func (s *SessionState) ClearPartial() {
	s.PendingPartialOrder = nil
	s.PendingPartialRequiresRx = false
}

// ClearRx resets every prescription-related slot, including an unconsumed
// upload record.
func (s *SessionState) ClearRx() {
	s.PendingPrescriptionOrder = nil
	s.PendingFinalQuantity = 0
	s.PendingRxConfirmation = false
	s.PendingPrescriptionUpload = nil
}

// ClearAll returns the session to the idle state.
func (s *SessionState) ClearAll() {
	s.ClearChoice()
	s.ClearPartial()
	s.ClearRx()
	s.PendingPreorderOffer = nil
	s.PendingPaymentOrder = nil
}

// Idle reports whether no pending slot is set.
func (s *SessionState) Idle() bool {
	return s.PendingMedicineChoice == nil &&
		s.PendingOrderData == nil &&
		s.PendingPartialOrder == nil &&
		s.PendingPrescriptionOrder == nil &&
		!s.PendingRxConfirmation &&
		s.PendingPreorderOffer == nil &&
		s.PendingPaymentOrder == nil
}

// Identity names the user behind a conversation. PatientID falls back to the
// session key when the frontend does not supply one.
type Identity struct {
	PatientID string `json:"patient_id"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// OrderRecord is one appended order-history row.
type OrderRecord struct {
	OrderNo         string    `json:"order_no"`
	PatientID       string    `json:"patient_id"`
	Username        string    `json:"username"`
	Phone           string    `json:"phone"`
	MedicineName    string    `json:"medicine_name"`
	Quantity        int       `json:"quantity"`
	Unit            string    `json:"unit"`
	DosageFrequency string    `json:"dosage_frequency,omitempty"`
	UnitPrice       float64   `json:"unit_price"`
	TotalPrice      float64   `json:"total_price"`
	Source          string    `json:"source"`
	Status          string    `json:"status"`
	OrderedAt       time.Time `json:"ordered_at"`
}

// Contact is a patient contact row used by order persistence and refill
// reminders.
type Contact struct {
	PatientID string `json:"patient_id"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

/// AgentReply is what one conversation turn produces: a plain reply plus the
// structured side-channel signals the HTTP layer translates into API fields.
type AgentReply struct {
	Reply                string       `json:"reply"`
	PrescriptionRequired bool         `json:"prescription_required,omitempty"`
	PaymentRequired      bool         `json:"payment_required,omitempty"`
	Payment              *PaymentInfo `json:"payment,omitempty"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// ChatResponse is the reply returned to the frontend.
type ChatResponse struct {
	Reply                string       `json:"reply"`
	PrescriptionRequired bool         `json:"prescription_required,omitempty"`
	PaymentRequired      bool         `json:"payment_required,omitempty"`
	Payment              *PaymentInfo `json:"payment,omitempty"`
}

// PrescriptionRequest is the body of POST /api/prescriptions. ImageData is a
// base64 payload, optionally as a data URI.
type PrescriptionRequest struct {
	ImageData    string `json:"image_data"`
	MedicineName string `json:"medicine_name,omitempty"`
	Filename     string `json:"filename,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

// PrescriptionResponse pairs the verification outcome with the follow-up
// conversation reply triggered by the upload.
type PrescriptionResponse struct {
	Verified           bool         `json:"verified"`
	VerificationReason string       `json:"verification_reason"`
	Reply              string       `json:"reply"`
	PaymentRequired    bool         `json:"payment_required,omitempty"`
	Payment            *PaymentInfo `json:"payment,omitempty"`
}
