package extract

import (
	"regexp"
	"strings"
)

// pricePattern pairs a compiled expression with the capture-group indices of
// the currency token and the amount. Patterns are ordered; the first match
// wins, so symbol-prefix forms come before suffix forms per currency.
type pricePattern struct {
	re  *regexp.Regexp
	sym int
	amt int
}

const amountExpr = `([0-9][0-9,]*(?:\.[0-9]+)?)`

var pricePatterns = []pricePattern{
	// Indian rupee, written "Rs. 450", "₹450", or "450 Rs."
	{regexp.MustCompile(`(Rs\.?|₹)\s*` + amountExpr), 1, 2},
	{regexp.MustCompile(amountExpr + `\s*(Rs\.?|₹)`), 2, 1},
	// Dollar
	{regexp.MustCompile(`(\$|USD)\s*` + amountExpr), 1, 2},
	{regexp.MustCompile(amountExpr + `\s*(\$|USD)`), 2, 1},
	// Euro
	{regexp.MustCompile(`(€|EUR)\s*` + amountExpr), 1, 2},
	{regexp.MustCompile(amountExpr + `\s*(€|EUR)`), 2, 1},
	// Pound
	{regexp.MustCompile(`(£|GBP)\s*` + amountExpr), 1, 2},
	{regexp.MustCompile(amountExpr + `\s*(£|GBP)`), 2, 1},
	// Yen / yuan share the symbol
	{regexp.MustCompile(`(¥|JPY|CNY)\s*` + amountExpr), 1, 2},
	{regexp.MustCompile(amountExpr + `\s*(¥|JPY|CNY)`), 2, 1},
	// Gulf currencies are usually spelled as codes, either side
	{regexp.MustCompile(`(AED|SAR)\s*` + amountExpr), 1, 2},
	{regexp.MustCompile(amountExpr + `\s*(AED|SAR)`), 2, 1},
}

var nonNumericRe = regexp.MustCompile(`[^0-9.,]`)

// SplitPrice separates a currency token from the amount in free-form price
// text. When no pattern matches, the currency is empty and the amount falls
// back to the digits and separators found in the text; if there are none at
// all ("Market Price"), the trimmed original text is returned so the caller
// still gets something displayable. Numeric normalization is deliberately
// left to the consumer.
func SplitPrice(text string) (currency, amount string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ""
	}

	for _, p := range pricePatterns {
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		return m[p.sym], m[p.amt]
	}

	cleaned := strings.Trim(nonNumericRe.ReplaceAllString(trimmed, ""), ".,")
	if cleaned == "" {
		return "", trimmed
	}
	return "", cleaned
}
