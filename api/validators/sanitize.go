package validators

import "strings"

// SanitizeString trims input, collapses inner whitespace runs to one space
// and cuts the result to maxLen runes. Display names are user supplied and
// often multi-byte, so the cut never splits a character.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
