package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Source tells where an expense line item came from
type Source string

const (
	SourceClaimed Source = "CLAIMED" // stated in the email body
	SourceReceipt Source = "RECEIPT" // read from an attachment
)

// ExpenseLineItem is one claimed or observed expense.
// Amount is nil when the source did not state one.
type ExpenseLineItem struct {
	ToolName string           `json:"tool_name"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Date     *time.Time       `json:"date,omitempty"`
	Source   Source           `json:"source"`
	Notes    string           `json:"notes,omitempty"`
}

// HasAmount reports whether the item states an amount
func (e ExpenseLineItem) HasAmount() bool {
	return e.Amount != nil
}

// MissingCurrency reports an amount that is not backed by a currency code.
// Such items are flagged instead of matched.
func (e ExpenseLineItem) MissingCurrency() bool {
	return e.Amount != nil && e.Currency == ""
}

// Normalize trims the tool name and upper-cases the currency code
func (e ExpenseLineItem) Normalize() ExpenseLineItem {
	e.ToolName = strings.TrimSpace(e.ToolName)
	e.Currency = NormalizeCurrency(e.Currency)
	return e
}

// AmountString renders the amount with two decimals, or "-" when absent
func (e ExpenseLineItem) AmountString() string {
	if e.Amount == nil {
		return "-"
	}
	return e.Amount.StringFixed(2)
}

// DateString renders the date as YYYY-MM-DD, or "" when absent
func (e ExpenseLineItem) DateString() string {
	if e.Date == nil {
		return ""
	}
	return e.Date.Format(DateLayout)
}

// DateLayout is the calendar date format used across the service
const DateLayout = "2006-01-02"

// NormalizeCurrency maps common symbols and spellings to a 3-letter code
func NormalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	switch c {
	case "$", "US$", "USD$", "DOLLAR", "DOLLARS":
		return "USD"
	case "¥", "￥", "RMB", "CNY¥", "元", "人民币":
		return "CNY"
	case "€", "EURO", "EUROS":
		return "EUR"
	case "£":
		return "GBP"
	}
	return c
}

// Amount builds a decimal pointer from a string, panicking on bad input.
// Intended for literals and tests.
func Amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Date builds a date pointer from YYYY-MM-DD, panicking on bad input
func Date(s string) *time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}
