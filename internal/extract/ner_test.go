package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/inference"
	"github.com/fennwick/ledgermail/internal/model"
)

// stubInference returns canned entities for every call and remembers the
// last text it was asked to classify.
type stubInference struct {
	entities []inference.Entity
	err      error
	lastText string
}

func (s *stubInference) TokenClassify(_ context.Context, text string) ([]inference.Entity, error) {
	s.lastText = text
	return s.entities, s.err
}

func (s *stubInference) ZeroShot(_ context.Context, _ string, _ []string) (inference.ZeroShotResult, error) {
	return inference.ZeroShotResult{}, errors.New("not used")
}

func (s *stubInference) Close() error { return nil }

func TestModelExtractorUnavailableWithoutClient(t *testing.T) {
	extractor := NewModelExtractor(nil)

	_, err := extractor.Extract(context.Background(), &model.EmailMessage{}, "text")
	assert.ErrorIs(t, err, common.ErrExtractorUnavailable)
}

func TestModelExtractorUnavailableOnClientError(t *testing.T) {
	extractor := NewModelExtractor(&stubInference{err: errors.New("boom")})

	_, err := extractor.Extract(context.Background(), &model.EmailMessage{}, "text")
	assert.ErrorIs(t, err, common.ErrExtractorUnavailable)
}

func TestModelExtractorPicksMostFrequentOrganization(t *testing.T) {
	extractor := NewModelExtractor(&stubInference{entities: []inference.Entity{
		{Text: "Visa", Label: "B-ORG"},
		{Text: "Amazon", Label: "B-ORG"},
		{Text: "Amazon", Label: "B-ORG"},
		{Text: "$42.50", Label: "I-MONEY"},
	}})

	candidate, err := extractor.Extract(context.Background(), &model.EmailMessage{
		Subject: "Receipt",
		SentAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, "Your Amazon order via Visa, Amazon total $42.50")
	require.NoError(t, err)

	assert.Equal(t, "Amazon", candidate.Merchant)
	require.NotNil(t, candidate.Amount)
	assert.True(t, candidate.Amount.Equal(decimal.RequireFromString("42.50")))
}

func TestModelExtractorDateEntityWinsOverSentDate(t *testing.T) {
	extractor := NewModelExtractor(&stubInference{entities: []inference.Entity{
		{Text: "Acme", Label: "B-ORG"},
		{Text: "March 3, 2025", Label: "B-DATE"},
	}})

	candidate, err := extractor.Extract(context.Background(), &model.EmailMessage{
		SentAt: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
	}, "receipt text")
	require.NoError(t, err)

	require.NotNil(t, candidate.Date)
	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), *candidate.Date)
}

func TestModelExtractorTruncatesOnRuneBoundary(t *testing.T) {
	stub := &stubInference{}
	extractor := NewModelExtractor(stub)

	// The byte limit lands inside the first multi-byte rune
	body := strings.Repeat("a", maxModelInput-1) + strings.Repeat("€", 40)
	_, err := extractor.Extract(context.Background(), &model.EmailMessage{
		Subject: "Receipt",
		SentAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}, body)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(stub.lastText), maxModelInput)
	assert.True(t, utf8.ValidString(stub.lastText))
}

func TestModelExtractorMerchantFallsBackToSubject(t *testing.T) {
	extractor := NewModelExtractor(&stubInference{entities: []inference.Entity{
		{Text: "$9.99", Label: "I-MONEY"},
	}})

	candidate, err := extractor.Extract(context.Background(), &model.EmailMessage{
		Subject: "Receipt from Acme Corp",
		SentAt:  time.Now(),
	}, "receipt text")
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", candidate.Merchant)
}
