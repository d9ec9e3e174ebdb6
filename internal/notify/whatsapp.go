package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultWhatsAppFrom = "whatsapp:+14155238886"

// WhatsAppSender dispatches messages through the Twilio REST API.
type WhatsAppSender struct {
	http       *http.Client
	accountSID string
	authToken  string
	from       string
	baseURL    string
}

// NewWhatsAppSenderFromEnv reads TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and
// TWILIO_WHATSAPP_FROM. It returns nil when credentials are missing so
// callers can treat WhatsApp as disabled.
func NewWhatsAppSenderFromEnv() *WhatsAppSender {
	sid := os.Getenv("TWILIO_ACCOUNT_SID")
	token := os.Getenv("TWILIO_AUTH_TOKEN")
	if sid == "" || token == "" {
		return nil
	}
	from := os.Getenv("TWILIO_WHATSAPP_FROM")
	if from == "" {
		from = defaultWhatsAppFrom
	}
	return &WhatsAppSender{
		http:       &http.Client{Timeout: 30 * time.Second},
		accountSID: sid,
		authToken:  token,
		from:       from,
		baseURL:    "https://api.twilio.com",
	}
}

// Send delivers one WhatsApp message to the given phone number.
func (s *WhatsAppSender) Send(ctx context.Context, phone, message string) error {
	to := strings.TrimSpace(phone)
	if to == "" {
		return fmt.Errorf("empty phone number")
	}
	if !strings.HasPrefix(to, "whatsapp:") {
		to = "whatsapp:" + to
	}

	form := url.Values{}
	form.Set("From", s.from)
	form.Set("To", to)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
