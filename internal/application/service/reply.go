package service

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// flexAmount accepts 20, 20.5, 1e3, "20.50", "$20", "20 USD" and "1,299.00".
// Strings with any other shape, such as "1.299,00" or "1e3", decode to no
// amount rather than a guess.
type flexAmount struct {
	Value *decimal.Decimal
}

// amountPattern is a plain decimal with optional comma thousands grouping
var amountPattern = regexp.MustCompile(`^-?(\d+|\d{1,3}(,\d{3})+)(\.\d+)?$`)

func (a *flexAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	if data[0] != '"' {
		if d, err := decimal.NewFromString(string(data)); err == nil {
			a.Value = &d
		}
		return nil
	}

	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// currency symbols and codes around the number
	raw = strings.TrimLeftFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) && r != '-' })
	raw = strings.TrimRightFunc(raw, func(r rune) bool { return !unicode.IsDigit(r) })
	if !amountPattern.MatchString(raw) {
		return nil
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return nil
	}
	a.Value = &d
	return nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006年1月2日",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// parseDate returns nil for dates it cannot read
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}
