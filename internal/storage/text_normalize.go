package storage

import "strings"

func normalizeText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	// Collapse any repeated whitespace (spaces/tabs/newlines) to a single space.
	return strings.Join(strings.Fields(trimmed), " ")
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(normalizeText(code))
}
