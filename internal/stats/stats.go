// Package stats reduces per-message-type summary records into the fixed set
// of category totals shown on the dashboard's stat cards.
package stats

import (
	"strings"

	"msgdash/internal/domain"

	"github.com/shopspring/decimal"
)

// Category names, in display order.
const (
	Salary      = "salary"
	EMI         = "emi"
	CreditCard  = "credit_card"
	Investments = "investments"
	Insurance   = "insurance"
	Credit      = "credit"
	Debit       = "debit"
	Other       = "other"
)

// Names lists every category in display order.
var Names = []string{Salary, EMI, CreditCard, Investments, Insurance, Credit, Debit, Other}

var labels = map[string]string{
	Salary:      "Salary",
	EMI:         "EMI",
	CreditCard:  "Credit Card",
	Investments: "Investments",
	Insurance:   "Insurance",
	Credit:      "Credit",
	Debit:       "Debit",
	Other:       "Other",
}

// Label is the display title of a category name.
func Label(name string) string {
	if l, ok := labels[name]; ok {
		return l
	}
	return name
}

// Category is the total for one category. Only the secondary metric that
// belongs to the category is ever set.
type Category struct {
	Name               string          `json:"name"`
	Count              int             `json:"count"`
	Total              decimal.Decimal `json:"total"`
	UniqueLoans        int             `json:"unique_loans,omitempty"`
	UniqueFolios       int             `json:"unique_folios,omitempty"`
	UniquePolicies     int             `json:"unique_policies,omitempty"`
	HighestOutstanding decimal.Decimal `json:"highest_outstanding"`
}

// Totals maps every category name to its totals. All categories are present,
// zeroed when the input has no matching record.
type Totals map[string]Category

// knownTypes maps an upper-cased message type to its category.
var knownTypes = map[string]string{
	"SALARY_CREDIT":           Salary,
	"EMI_PAYMENT":             EMI,
	"CREDIT_CARD_TRANSACTION": CreditCard,
	"SIP_INVESTMENT":          Investments,
	"INSURANCE_PAYMENT":       Insurance,
	"CREDIT_TRANSACTION":      Credit,
	"DEBIT_TRANSACTION":       Debit,
	"OTHER_FINANCIAL":         Other,
}

// Empty returns totals with every category seeded to zero.
func Empty() Totals {
	t := make(Totals, len(Names))
	for _, name := range Names {
		t[name] = Category{Name: name}
	}
	return t
}

// Aggregate folds stats into category totals.
//
// A record whose type is one of the known message types overwrites its
// category's count and amount (the backend emits at most one record per
// known type). Any other type accumulates into the other bucket. Amounts
// that are missing or non-numeric count as zero.
func Aggregate(records []domain.MessageTypeStat) Totals {
	totals := Empty()

	for _, rec := range records {
		amount := rec.TotalAmount.Decimal
		name, known := knownTypes[strings.ToUpper(rec.MessageType)]
		if !known {
			other := totals[Other]
			other.Count += rec.Count
			other.Total = other.Total.Add(amount)
			totals[Other] = other
			continue
		}

		c := Category{Name: name, Count: rec.Count, Total: amount}
		switch name {
		case EMI:
			c.UniqueLoans = rec.UniqueLoans
		case CreditCard:
			c.HighestOutstanding = rec.MaxOutstanding.Decimal
		case Investments:
			c.UniqueFolios = rec.UniqueFolios
		case Insurance:
			c.UniquePolicies = rec.UniquePolicies
		}
		totals[name] = c
	}

	return totals
}

// Ordered returns the categories in display order.
func (t Totals) Ordered() []Category {
	out := make([]Category, 0, len(Names))
	for _, name := range Names {
		out = append(out, t[name])
	}
	return out
}

// Sum returns the transaction count and amount over all categories.
func (t Totals) Sum() (int, decimal.Decimal) {
	count := 0
	total := decimal.Zero
	for _, c := range t {
		count += c.Count
		total = total.Add(c.Total)
	}
	return count, total
}
