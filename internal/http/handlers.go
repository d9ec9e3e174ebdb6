package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/core"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/db"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/reminder"
	"github.com/Rutuja-07-code/pharma-agent-ai/internal/rx"
	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.ListenAndServe.
type Server struct {
	Repo      *db.Repository
	Agent     *core.Agent
	Verifier  *rx.Verifier
	Reminders *reminder.Service

	// sessionLocks serialises conversation turns per session key so two
	// concurrent messages cannot interleave state reads and writes.
	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

// NewServer constructs a Server.
func NewServer(repo *db.Repository, agent *core.Agent, verifier *rx.Verifier, reminders *reminder.Service) *Server {
	return &Server{
		Repo:         repo,
		Agent:        agent,
		Verifier:     verifier,
		Reminders:    reminders,
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// ServeHTTP dispatches incoming requests based on the URL path.  Minimal
// routing logic is implemented here to keep dependencies light.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/" && r.Method == http.MethodGet:
		s.handleStatus(w, r)
	case path == "/api/chat" && r.Method == http.MethodPost:
		s.handleChat(w, r)
	case path == "/api/prescriptions" && r.Method == http.MethodPost:
		s.handlePrescription(w, r)
	case path == "/api/inventory" && r.Method == http.MethodGet:
		s.handleInventory(w, r)
	case path == "/api/orders" && r.Method == http.MethodGet:
		s.handleOrders(w, r)
	case path == "/api/admin/reminders/preview" && r.Method == http.MethodGet:
		s.handleRemindersPreview(w, r)
	case path == "/api/admin/reminders/send" && r.Method == http.MethodPost:
		s.handleRemindersSend(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) lockSession(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.sessionLocks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.sessionLocks[key] = m
	return m
}

// sessionKey derives the conversation key for a request.  Authenticated user
// IDs take precedence, then phone numbers; everything else shares one guest
// conversation per deployment.
func sessionKey(userID, phone string) string {
	if userID != "" {
		return "user:" + userID
	}
	if phone != "" {
		return "phone:" + phone
	}
	return "guest"
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "pharma-agent-ai",
		"status":  "ok",
	})
}

// handleChat runs one conversation turn for the caller's session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pkg.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}

	key := sessionKey(req.UserID, req.Phone)
	lock := s.lockSession(key)
	lock.Lock()
	defer lock.Unlock()

	id := pkg.Identity{PatientID: identityID(req.UserID, req.Phone), Username: req.UserID, Phone: req.Phone}
	reply, err := s.Agent.HandleMessage(ctx, key, id, req.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pkg.ChatResponse{
		Reply:                reply.Reply,
		PrescriptionRequired: reply.PrescriptionRequired,
		PaymentRequired:      reply.PaymentRequired,
		Payment:              reply.Payment,
	})
}

// handlePrescription verifies an uploaded prescription image and feeds the
// outcome back into the conversation so the pending order can resume.
func (s *Server) handlePrescription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pkg.PrescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	key := sessionKey(req.UserID, req.Phone)
	lock := s.lockSession(key)
	lock.Lock()
	defer lock.Unlock()

	medicine := req.MedicineName
	if medicine == "" {
		// Fall back to the medicine awaiting prescription in this session.
		state, err := s.Agent.Sessions.Get(ctx, key)
		if err == nil && state.PendingPrescriptionOrder != nil {
			medicine = state.PendingPrescriptionOrder.MedicineName
		}
	}

	rec, err := s.Verifier.Verify(ctx, req.ImageData, medicine, req.Filename)
	if err != nil {
		if errors.Is(err, rx.ErrBadImage) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.Agent.AttachPrescription(ctx, key, &rec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Resume the conversation as if the user announced the upload.
	id := pkg.Identity{PatientID: identityID(req.UserID, req.Phone), Username: req.UserID, Phone: req.Phone}
	reply, err := s.Agent.HandleMessage(ctx, key, id, "upload")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pkg.PrescriptionResponse{
		Verified:           rec.Verified,
		VerificationReason: rec.VerificationReason,
		Reply:              reply.Reply,
		PaymentRequired:    reply.PaymentRequired,
		Payment:            reply.Payment,
	})
}

// handleInventory returns the current medicine catalogue.
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	meds, err := s.Repo.Medicines(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"medicines": meds})
}

// handleOrders lists recorded orders, optionally filtered by patient or phone.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	orders, err := s.Repo.ListOrders(r.Context(), q.Get("patient_id"), q.Get("phone"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handleRemindersPreview(w http.ResponseWriter, r *http.Request) {
	if s.Reminders == nil {
		http.Error(w, "reminders disabled", http.StatusServiceUnavailable)
		return
	}
	due, err := s.Reminders.Preview(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"due": due})
}

func (s *Server) handleRemindersSend(w http.ResponseWriter, r *http.Request) {
	if s.Reminders == nil {
		http.Error(w, "reminders disabled", http.StatusServiceUnavailable)
		return
	}
	report, err := s.Reminders.Send(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func identityID(userID, phone string) string {
	if userID != "" {
		return userID
	}
	if phone != "" {
		return phone
	}
	return "guest"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("failed to encode response:", err)
	}
}
