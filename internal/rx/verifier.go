// Package rx verifies uploaded prescription images against a pending order's
// medicine name. Verification is a token-overlap heuristic, not an exact
// string match: OCR text is noisy and multi-word names rarely reproduce
// verbatim.
package rx

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/ocr"
	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// ErrBadImage marks an upload that is not a decodable base64 image. The HTTP
// layer maps it to a client error instead of a verification failure.
var ErrBadImage = errors.New("invalid prescription image")

// Dataset answers prescription-requirement lookups from the inventory.
type Dataset interface {
	Medicines(ctx context.Context) ([]pkg.Medicine, error)
}

// SubmissionLog records every upload outcome, verified or not.
type SubmissionLog interface {
	LogPrescription(ctx context.Context, rec pkg.VerificationRecord) error
}

// Verifier validates prescription uploads. A nil OCR client degrades to
// verification failure, never a crash.
type Verifier struct {
	Data Dataset
	OCR  ocr.Client
	Log  SubmissionLog
	Dir  string // where uploaded images are stored
}

// NewVerifier constructs a Verifier storing images under dir.
func NewVerifier(data Dataset, ocrClient ocr.Client, logStore SubmissionLog, dir string) *Verifier {
	if dir == "" {
		dir = filepath.Join("data", "prescriptions")
	}
	return &Verifier{Data: data, OCR: ocrClient, Log: logStore, Dir: dir}
}

var mimeExt = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// Verify decodes the uploaded image, checks the dataset's prescription
// requirement for the medicine, runs OCR and returns the full verification
// record. The error is non-nil only for undecodable input.
func (v *Verifier) Verify(ctx context.Context, imageData, medicineName, filename string) (pkg.VerificationRecord, error) {
	imageBytes, mimeType, err := decodeImageData(imageData)
	if err != nil {
		return pkg.VerificationRecord{}, err
	}

	rec := pkg.VerificationRecord{
		ID:                    uuid.New().String(),
		SubmittedAt:           time.Now().UTC(),
		MedicineNameRequested: medicineName,
		OriginalFilename:      filename,
		MimeType:              mimeType,
		SizeBytes:             len(imageBytes),
	}
	sum := sha256.Sum256(imageBytes)
	rec.SHA256 = hex.EncodeToString(sum[:])

	found, matched, required, lookupReason := v.lookupMedicine(ctx, medicineName)
	rec.MedicineNameMatched = matched
	rec.PrescriptionRequiredInDataset = required

	rec.StoredFile = v.storeImage(imageBytes, matched, medicineName, rec.ID, mimeType)

	ocrText, ocrErr := v.extractText(ctx, imageBytes)
	rec.OCROk = ocrErr == nil
	rec.OCRText = ocrText
	if ocrErr != nil {
		rec.OCRError = ocrErr.Error()
	}

	checkName := matched
	if checkName == "" {
		checkName = medicineName
	}
	rec.MedicineNamePresent = containsMedicineName(ocrText, checkName)

	rec.Verified = found && required && rec.OCROk && rec.MedicineNamePresent
	switch {
	case !found:
		rec.VerificationReason = lookupReason
	case !required:
		rec.VerificationReason = "This medicine does not require a prescription in the dataset."
	case !rec.OCROk:
		rec.VerificationReason = fmt.Sprintf("Prescription OCR failed: %s", rec.OCRError)
	case !rec.MedicineNamePresent:
		rec.VerificationReason = fmt.Sprintf("Uploaded prescription does not contain medicine name '%s'.", checkName)
	default:
		rec.VerificationReason = fmt.Sprintf("Prescription verified. Found medicine name '%s' in uploaded image.", checkName)
	}

	if v.Log != nil {
		if err := v.Log.LogPrescription(ctx, rec); err != nil {
			log.Printf("rx: submission log failed for %s: %v", rec.ID, err)
		}
	}
	return rec, nil
}

func (v *Verifier) lookupMedicine(ctx context.Context, name string) (found bool, matched string, required bool, reason string) {
	meds, err := v.Data.Medicines(ctx)
	if err != nil {
		return false, "", false, fmt.Sprintf("Medicine dataset unavailable: %v", err)
	}
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return false, "", false, "Medicine name is required."
	}
	for _, m := range meds {
		if strings.Contains(strings.ToLower(m.Name), query) {
			if m.PrescriptionRequired {
				return true, m.Name, true, "Prescription requirement verified against dataset."
			}
			return true, m.Name, false, "This medicine does not require a prescription in the dataset."
		}
	}
	return false, "", false, fmt.Sprintf("Medicine '%s' not found in dataset.", name)
}

func (v *Verifier) extractText(ctx context.Context, image []byte) (string, error) {
	if v.OCR == nil {
		return "", errors.New("OCR service unavailable: not configured")
	}
	text, err := v.OCR.ExtractText(ctx, image)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// storeImage writes the upload to disk and returns the stored path, or empty
// on failure. Storage failure does not fail verification.
func (v *Verifier) storeImage(image []byte, matched, requested, id, mimeType string) string {
	if err := os.MkdirAll(v.Dir, 0o755); err != nil {
		log.Printf("rx: mkdir %s failed: %v", v.Dir, err)
		return ""
	}
	ext, ok := mimeExt[mimeType]
	if !ok {
		ext = "jpg"
	}
	slugSource := matched
	if slugSource == "" {
		slugSource = requested
	}
	name := fmt.Sprintf("%s_%s_%s.%s",
		time.Now().UTC().Format("20060102T150405Z"), slugify(slugSource), id, ext)
	path := filepath.Join(v.Dir, name)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		log.Printf("rx: store image %s failed: %v", path, err)
		return ""
	}
	return path
}

var dataURIRe = regexp.MustCompile(`(?i)^data:([^;]+);base64$`)

// decodeImageData accepts raw base64 or a data URI and returns the image
// bytes with the declared mime type.
func decodeImageData(imageData string) ([]byte, string, error) {
	raw := strings.TrimSpace(imageData)
	if raw == "" {
		return nil, "", fmt.Errorf("%w: prescription photo is required", ErrBadImage)
	}

	mimeType := "application/octet-stream"
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		header, body, ok := strings.Cut(raw, ",")
		if !ok {
			return nil, "", fmt.Errorf("%w: malformed data URI", ErrBadImage)
		}
		payload = body
		if m := dataURIRe.FindStringSubmatch(header); m != nil {
			mimeType = strings.ToLower(strings.TrimSpace(m[1]))
		}
	}

	imageBytes, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if len(imageBytes) == 0 {
		return nil, "", fmt.Errorf("%w: prescription image is empty", ErrBadImage)
	}
	return imageBytes, mimeType, nil
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

func normalizeText(s string) string {
	s = nonAlnumRe.ReplaceAllString(strings.ToLower(s), " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

func slugify(s string) string {
	slug := strings.Trim(strings.ReplaceAll(normalizeText(s), " ", "-"), "-")
	if slug == "" {
		return "medicine"
	}
	return slug
}

// containsMedicineName checks whether the medicine name appears in the OCR
// text: direct normalized containment, or enough significant token hits.
// Tokens of 4+ characters count; when a name has none, 2+ character tokens
// are used. A single-token name needs its one token, longer names need
// min(2, token count) hits.
func containsMedicineName(ocrText, medicineName string) bool {
	text := normalizeText(ocrText)
	name := normalizeText(medicineName)
	if text == "" || name == "" {
		return false
	}
	if strings.Contains(text, name) {
		return true
	}

	tokens := significantTokens(name)
	if len(tokens) == 0 {
		return false
	}
	required := 1
	if len(tokens) > 1 {
		required = 2
	}
	hits := 0
	for _, t := range tokens {
		if strings.Contains(text, t) {
			hits++
		}
	}
	return hits >= required
}

func significantTokens(name string) []string {
	var long, short []string
	for _, t := range strings.Fields(name) {
		if len(t) >= 4 {
			long = append(long, t)
		} else if len(t) >= 2 {
			short = append(short, t)
		}
	}
	if len(long) > 0 {
		return long
	}
	return short
}

// NamesConsistent reports whether two medicine names refer to the same
// product, using the same token-overlap heuristic as the OCR check. The
// conversation controller uses it to match a verification record against the
// pending order.
func NamesConsistent(got, want string) bool {
	return containsMedicineName(got, want) || containsMedicineName(want, got)
}
