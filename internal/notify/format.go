// Package notify carries operator-facing notifications: chat-ops posts,
// admin low-balance notices, and anomaly reports. Delivery is best-effort;
// callers never fail on a lost notification.
package notify

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatDollarAmount renders cents as a dollar string with thousands
// separators, e.g. 150000000 -> "$1,500,000.00" and -12345 -> "-$123.45".
func FormatDollarAmount(amountCents int64) string {
	amount := decimal.New(amountCents, -2)
	fixed := amount.Abs().StringFixed(2)
	integerPart, fractionPart, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	leading := len(integerPart) % 3
	if leading > 0 {
		grouped.WriteString(integerPart[:leading])
	}
	for offset := leading; offset < len(integerPart); offset += 3 {
		if grouped.Len() > 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteString(integerPart[offset : offset+3])
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return sign + "$" + grouped.String() + "." + fractionPart
}
