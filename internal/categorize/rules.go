package categorize

// merchantRule maps a category to merchant substrings that imply it.
type merchantRule struct {
	category  string
	merchants []string
}

// merchantRules is the first categorization tier. Order matters: the first
// rule with a substring hit wins.
var merchantRules = []merchantRule{
	{"Grocery", []string{"kroger", "safeway", "trader joe", "aldi", "whole foods", "wegmans"}},
	{"Restaurant", []string{"doordash", "ubereats", "uber eats", "grubhub", "mcdonalds", "chipotle", "starbucks"}},
	{"Transportation", []string{"uber", "lyft", "amtrak", "delta", "southwest", "united"}},
	{"Shopping", []string{"amazon", "walmart", "target", "ebay", "etsy", "best buy"}},
	{"Entertainment", []string{"netflix", "hulu", "spotify", "disney+", "hbo", "amc"}},
	{"Utilities", []string{"comcast", "verizon", "at&t", "pge", "water bill", "electric"}},
}

// seasonalKeywords trigger the holiday tier during November and December.
var seasonalKeywords = []string{"gift", "christmas", "holiday"}

// travelKeywords route to the user's Travel category when present.
var travelKeywords = []string{"flight", "hotel", "vacation", "travel", "booking"}

// zeroShotLabels is the fixed label set for the zero-shot fallback tier.
var zeroShotLabels = []string{
	"Food & Dining", "Groceries", "Shopping", "Transportation",
	"Entertainment", "Bills & Utilities", "Health", "Travel",
	"Education", "Personal Care", "Home", "Gifts", "Business",
}
