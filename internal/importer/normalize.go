package importer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const Uncategorized = "Uncategorized"

// normalizeCategory trims every path segment and names empty segments so
// that no node ends up without a label.
func normalizeCategory(path, separator string) string {
	if separator == "" {
		return strings.TrimSpace(path)
	}
	parts := strings.Split(path, separator)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			p = Uncategorized
		}
		parts[i] = p
	}
	return strings.Join(parts, separator)
}

func normalizeCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fallback
	}
	return code
}

// parseAmount parses a decimal string and rounds it to cents.
func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Round(2).InexactFloat64(), nil
}

// parseDate accepts unix seconds, YYYY-MM-DD (local time) or RFC 3339.
func parseDate(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty date")
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		return d.IntPart(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return t.Unix(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("parse date %q", raw)
	}
	return t.Unix(), nil
}
