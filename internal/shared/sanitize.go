package shared

import (
	"strings"
	"unicode"
)

// formulaPrefixes start a spreadsheet formula when a value is exported.
const formulaPrefixes = "=+-@\t\r"

// SanitizeText trims the value, drops control characters and neutralises
// spreadsheet formula prefixes.
func SanitizeText(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	return EscapeFormula(cleaned)
}

// EscapeFormula prefixes a quote when the value would be read as a formula.
func EscapeFormula(value string) string {
	if value != "" && strings.ContainsRune(formulaPrefixes, rune(value[0])) {
		return "'" + value
	}
	return value
}
