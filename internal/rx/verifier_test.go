package rx

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

type fakeDataset struct {
	meds []pkg.Medicine
	err  error
}

func (f *fakeDataset) Medicines(ctx context.Context) ([]pkg.Medicine, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meds, nil
}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	return f.text, f.err
}

type fakeSubmissionLog struct {
	recs []pkg.VerificationRecord
}

func (f *fakeSubmissionLog) LogPrescription(ctx context.Context, rec pkg.VerificationRecord) error {
	f.recs = append(f.recs, rec)
	return nil
}

func rxDataset() *fakeDataset {
	return &fakeDataset{meds: []pkg.Medicine{
		{Name: "Amoxicillin 500", PrescriptionRequired: true},
		{Name: "Paracetamol", PrescriptionRequired: false},
	}}
}

func testImage() string {
	return base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
}

func TestVerifySuccess(t *testing.T) {
	logStore := &fakeSubmissionLog{}
	v := NewVerifier(rxDataset(), &fakeOCR{text: "Dr. Shah\nRx: Amoxicillin 500 twice daily"}, logStore, t.TempDir())

	rec, err := v.Verify(context.Background(), testImage(), "amoxicillin", "rx.jpg")
	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.Equal(t, "Amoxicillin 500", rec.MedicineNameMatched)
	assert.True(t, rec.OCROk)
	assert.True(t, rec.MedicineNamePresent)
	assert.Contains(t, rec.VerificationReason, "Prescription verified")
	assert.NotEmpty(t, rec.SHA256)
	assert.NotEmpty(t, rec.StoredFile)
	require.Len(t, logStore.recs, 1)
}

func TestVerifyMedicineNotInDataset(t *testing.T) {
	v := NewVerifier(rxDataset(), &fakeOCR{text: "anything"}, nil, t.TempDir())
	rec, err := v.Verify(context.Background(), testImage(), "Zyrtomol", "rx.jpg")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.Equal(t, "Medicine 'Zyrtomol' not found in dataset.", rec.VerificationReason)
}

func TestVerifyNotPrescriptionMedicine(t *testing.T) {
	v := NewVerifier(rxDataset(), &fakeOCR{text: "Paracetamol"}, nil, t.TempDir())
	rec, err := v.Verify(context.Background(), testImage(), "paracetamol", "rx.jpg")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.Equal(t, "This medicine does not require a prescription in the dataset.", rec.VerificationReason)
}

func TestVerifyOCRFailure(t *testing.T) {
	v := NewVerifier(rxDataset(), &fakeOCR{err: errors.New("timeout")}, nil, t.TempDir())
	rec, err := v.Verify(context.Background(), testImage(), "amoxicillin", "rx.jpg")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.False(t, rec.OCROk)
	assert.Contains(t, rec.VerificationReason, "Prescription OCR failed")
}

func TestVerifyNoOCRClientConfigured(t *testing.T) {
	v := NewVerifier(rxDataset(), nil, nil, t.TempDir())
	rec, err := v.Verify(context.Background(), testImage(), "amoxicillin", "rx.jpg")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.Contains(t, rec.OCRError, "OCR service unavailable")
}

func TestVerifyNameAbsentFromText(t *testing.T) {
	v := NewVerifier(rxDataset(), &fakeOCR{text: "Rx: Metformin 500 once daily"}, nil, t.TempDir())
	rec, err := v.Verify(context.Background(), testImage(), "amoxicillin", "rx.jpg")
	require.NoError(t, err)
	assert.False(t, rec.Verified)
	assert.Contains(t, rec.VerificationReason, "does not contain medicine name 'Amoxicillin 500'")
}

func TestVerifyBadImage(t *testing.T) {
	v := NewVerifier(rxDataset(), &fakeOCR{}, nil, t.TempDir())
	ctx := context.Background()

	_, err := v.Verify(ctx, "", "amoxicillin", "rx.jpg")
	assert.ErrorIs(t, err, ErrBadImage)

	_, err = v.Verify(ctx, "not-base64!!!", "amoxicillin", "rx.jpg")
	assert.ErrorIs(t, err, ErrBadImage)

	_, err = v.Verify(ctx, "data:image/jpeg;base64", "amoxicillin", "rx.jpg")
	assert.ErrorIs(t, err, ErrBadImage)
}

func TestVerifyAcceptsDataURI(t *testing.T) {
	v := NewVerifier(rxDataset(), &fakeOCR{text: "Amoxicillin 500"}, nil, t.TempDir())
	uri := "data:image/png;base64," + testImage()
	rec, err := v.Verify(context.Background(), uri, "amoxicillin", "rx.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", rec.MimeType)
	assert.True(t, rec.Verified)
}

func TestContainsMedicineNameTokenOverlap(t *testing.T) {
	// OCR noise around a multi-word name still matches on token hits.
	assert.True(t, containsMedicineName("rx AMOXlCILLIN guessed as amoxicillin 500 mg", "Amoxicillin 500"))
	// One token alone is not enough for a multi-token name.
	assert.False(t, containsMedicineName("take 500 mg of something", "Amoxicillin 500"))
	// Single-token names need their one token.
	assert.True(t, containsMedicineName("paracetamol before sleep", "Paracetamol"))
	assert.False(t, containsMedicineName("metformin before sleep", "Paracetamol"))
	// Punctuation and case differences are normalized away.
	assert.True(t, containsMedicineName("DOLO-650, twice a day", "Dolo 650"))
	assert.False(t, containsMedicineName("", "Paracetamol"))
	assert.False(t, containsMedicineName("some text", ""))
}

func TestSignificantTokens(t *testing.T) {
	assert.Equal(t, []string{"amoxicillin"}, significantTokens("amoxicillin 500"))
	// Names with no 4+ character token fall back to shorter ones.
	assert.Equal(t, []string{"b12"}, significantTokens("b12"))
}

func TestNamesConsistent(t *testing.T) {
	assert.True(t, NamesConsistent("Amoxicillin 500", "Amoxicillin 500"))
	assert.True(t, NamesConsistent("Amoxicillin", "Amoxicillin 500"))
	assert.True(t, NamesConsistent("Amoxicillin 500", "amoxicillin"))
	assert.False(t, NamesConsistent("Metformin", "Amoxicillin 500"))
	assert.False(t, NamesConsistent("", "Amoxicillin"))
}
