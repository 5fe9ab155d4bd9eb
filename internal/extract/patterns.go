package extract

import "regexp"

// Each extraction field has exactly one ordered pattern table shared by every
// extractor tier, so tie-break order is defined in one place.

// amountPatterns match currency figures anchored to total/amount keywords, in
// priority order. The first pattern with a match wins.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:total|amount|charge|payment)(?:\s+\w+){0,3}\s+\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\s+(?:total|amount|charge|payment)`),
	regexp.MustCompile(`(?i)(?:USD|US\$)\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`),
	regexp.MustCompile(`(?i)(\d+(?:,\d{3})*\.\d{2})\s+(?:USD|US\$|dollars)`),
}

// amountLoosePattern is the last-resort pass: any dollar figure at all. All of
// its matches are collected and the range tie-break picks one.
var amountLoosePattern = regexp.MustCompile(`\$\s*(\d+(?:,\d{3})*(?:\.\d{2})?)`)

// subjectMerchantPatterns recover a merchant name from the subject line.
var subjectMerchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Your|New) (?:order|purchase) (?:from|with) ([A-Za-z0-9\s\.&]+)`),
	regexp.MustCompile(`(?i)(?:Receipt|Order|Confirmation) (?:for|from) ([A-Za-z0-9\s\.&]+)`),
	regexp.MustCompile(`(?i)Thanks for (?:ordering|shopping|your purchase) (?:from|with|at) ([A-Za-z0-9\s\.&]+)`),
	regexp.MustCompile(`(?i)Your ([A-Za-z0-9\s\.&]+?) order`),
	regexp.MustCompile(`(?i)([A-Za-z0-9\s\.&]+?) order confirmation`),
}

// merchantStopwords are filler captures that mean a subject pattern matched
// sentence structure, not a merchant name.
var merchantStopwords = map[string]struct{}{
	"your": {}, "my": {}, "the": {}, "a": {}, "an": {}, "new": {},
}

// bodyMerchantPatterns recover a merchant name from the body text.
var bodyMerchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:from|vendor|merchant|store|retailer):\s+([A-Za-z0-9\s\.&]+)`),
	regexp.MustCompile(`(?i)Thank\s+you\s+for\s+(?:your\s+purchase|ordering|shopping)\s+(?:from|with|at)\s+([A-Za-z0-9\s\.&]+)`),
}

// descriptionPatterns capture order/transaction identifiers for the
// description field.
var descriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:order|confirmation)\s+(?:number|#):?\s*([A-Za-z0-9\-]+)`),
	regexp.MustCompile(`(?i)(?:invoice|receipt|transaction)\s+(?:number|#):?\s*([A-Za-z0-9\-]+)`),
	regexp.MustCompile(`(?i)(?:purchase|bought|ordered):\s+(.+?)(?:\.|$)`),
}

// senderAddressPattern pulls the address out of a display-name From header.
var senderAddressPattern = regexp.MustCompile(`<([^>]+)>`)

// moneyTokenPattern recognizes dollar figures inside entity spans.
var moneyTokenPattern = regexp.MustCompile(`\$?(\d+(?:,\d{3})*(?:\.\d{2})?)`)
