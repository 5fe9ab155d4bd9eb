package extract

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fennwick/ledgermail/internal/mail"
	"github.com/fennwick/ledgermail/internal/model"
)

// HeuristicExtractor recovers expense fields with regular expressions. It is
// the last extraction tier and never fails: missing fields are simply absent
// from the candidate.
type HeuristicExtractor struct {
	now func() time.Time
}

// NewHeuristicExtractor creates a regex-based extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{now: time.Now}
}

// Name identifies the extractor tier in logs.
func (e *HeuristicExtractor) Name() string { return "heuristic" }

// Extract produces a candidate from the message subject, body, and headers.
func (e *HeuristicExtractor) Extract(_ context.Context, msg *model.EmailMessage, body string) (model.Candidate, error) {
	text := normalizeText(body)

	candidate := model.Candidate{
		Merchant:    extractMerchant(msg.Subject, text, msg.From),
		Description: matchFirst(descriptionPatterns, text),
	}

	if amount, ok := extractAmount(text); ok {
		candidate.Amount = &amount
	}

	date := msg.SentAt
	if date.IsZero() {
		date = e.now()
	}
	candidate.Date = &date

	return candidate, nil
}

// normalizeText strips markup when the body is HTML and collapses whitespace.
func normalizeText(body string) string {
	if strings.Contains(strings.ToLower(body), "<html") {
		body = mail.StripHTML(body)
	}
	return strings.Join(strings.Fields(body), " ")
}

// extractAmount applies the keyword-anchored patterns in priority order and
// takes the first match. When none hit, a loose dollar-sign pass collects
// every figure and picks by range: prefer amounts in [1, 10000], else the
// maximum found. A receipt's total is usually its largest dollar figure.
func extractAmount(text string) (decimal.Decimal, bool) {
	for _, pattern := range amountPatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			if amount, err := parseAmount(m[1]); err == nil {
				return amount, true
			}
		}
	}

	var amounts []decimal.Decimal
	for _, m := range amountLoosePattern.FindAllStringSubmatch(text, -1) {
		if amount, err := parseAmount(m[1]); err == nil {
			amounts = append(amounts, amount)
		}
	}

	return pickAmount(amounts)
}

// pickAmount applies the range tie-break over loose-pass candidates.
func pickAmount(amounts []decimal.Decimal) (decimal.Decimal, bool) {
	if len(amounts) == 0 {
		return decimal.Decimal{}, false
	}

	lower := decimal.NewFromInt(1)
	upper := decimal.NewFromInt(10000)

	var inRange []decimal.Decimal
	for _, a := range amounts {
		if a.GreaterThanOrEqual(lower) && a.LessThanOrEqual(upper) {
			inRange = append(inRange, a)
		}
	}
	if len(inRange) > 0 {
		amounts = inRange
	}

	maxAmount := amounts[0]
	for _, a := range amounts[1:] {
		if a.GreaterThan(maxAmount) {
			maxAmount = a
		}
	}

	return maxAmount, true
}

func parseAmount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
}

// extractMerchant runs the fallback chain: subject patterns, body patterns,
// sender domain, first subject token.
func extractMerchant(subject, text, from string) string {
	if merchant := MerchantFromSubject(subject); merchant != "" {
		return merchant
	}

	if merchant := matchFirst(bodyMerchantPatterns, text); merchant != "" {
		return strings.TrimSpace(merchant)
	}

	if merchant := merchantFromSender(from); merchant != "" {
		return merchant
	}

	if fields := strings.Fields(subject); len(fields) > 0 {
		return fields[0]
	}

	return ""
}

// MerchantFromSubject applies the shared subject-line pattern table. Exported
// because the model-backed tier uses the same table as its own fallback.
func MerchantFromSubject(subject string) string {
	for _, pattern := range subjectMerchantPatterns {
		m := pattern.FindStringSubmatch(subject)
		if m == nil {
			continue
		}
		merchant := strings.TrimSpace(m[1])
		if _, stop := merchantStopwords[strings.ToLower(merchant)]; stop || merchant == "" {
			continue
		}
		return merchant
	}
	return ""
}

// merchantFromSender derives a merchant from the From header, capitalizing
// the sender domain's first label.
func merchantFromSender(from string) string {
	if from == "" {
		return ""
	}

	address := from
	if m := senderAddressPattern.FindStringSubmatch(from); m != nil {
		address = m[1]
	}

	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		if fields := strings.Fields(from); len(fields) > 0 {
			return fields[0]
		}
		return ""
	}

	domain := address[at+1:]
	label := strings.SplitN(domain, ".", 2)[0]
	if label == "" {
		return ""
	}

	return strings.ToUpper(label[:1]) + strings.ToLower(label[1:])
}

// matchFirst returns the first capturing group of the first pattern to match.
func matchFirst(patterns []*regexp.Regexp, text string) string {
	for _, pattern := range patterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
