package extract

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/fennwick/ledgermail/internal/common"
	"github.com/fennwick/ledgermail/internal/inference"
	"github.com/fennwick/ledgermail/internal/model"
)

// maxModelInput bounds how much text is sent to the hosted model.
const maxModelInput = 4000

// ModelExtractor recovers expense fields from named-entity spans produced by
// a hosted token-classification model. It is the first extraction tier; the
// pipeline falls back to heuristics when it is unavailable or its candidate
// fails validation.
type ModelExtractor struct {
	client inference.Client
	now    func() time.Time
}

// NewModelExtractor creates a model-backed extractor. A nil client is
// permitted and makes the extractor permanently unavailable.
func NewModelExtractor(client inference.Client) *ModelExtractor {
	return &ModelExtractor{client: client, now: time.Now}
}

// Name identifies the extractor tier in logs.
func (e *ModelExtractor) Name() string { return "model" }

// Extract produces a candidate from recognized entity spans.
func (e *ModelExtractor) Extract(ctx context.Context, msg *model.EmailMessage, body string) (model.Candidate, error) {
	if e.client == nil {
		return model.Candidate{}, common.ErrExtractorUnavailable
	}

	text := normalizeText(body)
	if len(text) > maxModelInput {
		// Back up to a rune boundary so truncation never sends invalid UTF-8
		cut := maxModelInput
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	if text == "" {
		return model.Candidate{}, common.ErrExtractionEmpty
	}

	entities, err := e.client.TokenClassify(ctx, text)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("%w: %w", common.ErrExtractorUnavailable, err)
	}

	var (
		orgCounts = make(map[string]int)
		orgOrder  []string
		dates     []string
		amounts   []decimal.Decimal
	)

	for _, entity := range entities {
		switch {
		case strings.HasSuffix(entity.Label, "ORG"):
			if orgCounts[entity.Text] == 0 {
				orgOrder = append(orgOrder, entity.Text)
			}
			orgCounts[entity.Text]++
		case strings.HasSuffix(entity.Label, "DATE"):
			dates = append(dates, entity.Text)
		case strings.HasSuffix(entity.Label, "MONEY"), strings.HasSuffix(entity.Label, "CARDINAL"):
			if m := moneyTokenPattern.FindStringSubmatch(entity.Text); m != nil {
				if amount, parseErr := parseAmount(m[1]); parseErr == nil {
					amounts = append(amounts, amount)
				}
			}
		}
	}

	candidate := model.Candidate{
		Merchant:    mostFrequentOrg(orgCounts, orgOrder),
		Description: matchFirst(descriptionPatterns, text),
	}
	if candidate.Merchant == "" {
		candidate.Merchant = MerchantFromSubject(msg.Subject)
	}

	if amount, ok := pickAmount(amounts); ok {
		candidate.Amount = &amount
	}

	date := e.entityDate(dates, msg.SentAt)
	candidate.Date = &date

	return candidate, nil
}

// entityDate parses the first date-typed span permissively, falling back to
// the message sent date, then the processing date. Date extraction never
// fails the pipeline.
func (e *ModelExtractor) entityDate(dates []string, sentAt time.Time) time.Time {
	for _, raw := range dates {
		if parsed, ok := parseLooseDate(raw); ok {
			return parsed
		}
	}
	if !sentAt.IsZero() {
		return sentAt
	}
	return e.now()
}

// mostFrequentOrg returns the most mentioned organization span, breaking ties
// by first appearance.
func mostFrequentOrg(counts map[string]int, order []string) string {
	best := ""
	bestCount := 0
	for _, org := range order {
		if counts[org] > bestCount {
			best = org
			bestCount = counts[org]
		}
	}
	return best
}

// looseDateLayouts cover the date formats that show up in receipt text.
var looseDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2 2006",
	"Jan 2 2006",
}

func parseLooseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range looseDateLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
