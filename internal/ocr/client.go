package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client extracts text from a prescription image. Implementations forward the
// bytes to an external OCR engine; callers treat any error as a verification
// failure, never a crash.
type Client interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// HTTPClient talks to a small OCR microservice over HTTP. The service accepts
// a base64-encoded image and returns the extracted text.
type HTTPClient struct {
	http    *http.Client
	baseURL string
}

// NewHTTPClient creates an OCR client for the service at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type extractReq struct {
	Image string `json:"image"`
}

type extractResp struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// ExtractText posts the image to the OCR service and returns the recognised
// text. An empty result is an error: the verifier must not treat a blank
// prescription as readable.
func (c *HTTPClient) ExtractText(ctx context.Context, image []byte) (string, error) {
	body, _ := json.Marshal(extractReq{Image: base64.StdEncoding.EncodeToString(image)})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR service unavailable: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("OCR service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out extractResp
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("invalid OCR response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("OCR extraction failed: %s", out.Error)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("no text extracted from prescription image")
	}
	return text, nil
}
