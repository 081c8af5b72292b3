// Package format converts currency and date primitives into display strings.
package format

import (
	"fmt"
	"strings"
	"time"

	"msgdash/internal/domain"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// NotAvailable is shown for missing values.
const NotAvailable = "N/A"

// dateLayout matches the dashboard's "18 Oct 2026" style.
const dateLayout = "02 Jan 2006"

// inputLayouts are the timestamp shapes the backend emits: RFC 3339 and
// Python isoformat() without an offset.
var inputLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Formatter renders display strings for one locale and currency symbol.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// New creates a formatter for a BCP 47 locale such as "en-IN".
func New(locale, symbol string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: symbol}, nil
}

// Currency formats an amount with at most two fractional digits, or N/A when
// the amount is missing.
func (f *Formatter) Currency(a domain.Amount) string {
	if !a.Valid {
		return NotAvailable
	}
	return f.Decimal(a.Decimal)
}

// Decimal formats a decimal value as currency.
func (f *Formatter) Decimal(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	v := d.Round(2).InexactFloat64()
	return sign + f.symbol + f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// Count formats an integer with locale grouping.
func (f *Formatter) Count(n int) string {
	return f.printer.Sprint(number.Decimal(n))
}

// Date formats an ISO-8601 timestamp as "02 Jan 2006". Empty input yields
// N/A; input that does not parse is returned verbatim.
func Date(iso string) string {
	s := strings.TrimSpace(iso)
	if s == "" {
		return NotAvailable
	}
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout)
		}
	}
	return iso
}

// Percentage returns floor(processed/total*100), or 0 when total is 0.
func Percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}
	if processed >= total {
		return 100
	}
	if processed <= 0 {
		return 0
	}
	return processed * 100 / total
}
