package extraction

import (
	"regexp"
	"strings"
)

var (
	emailRegex = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)*\.[A-Za-z]{2,}`)
	// Optional +, then digits with spaces, dashes or parentheses; at least 9 characters
	phoneRegex = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
)

// ExtractEmail returns the first email address in text, or "" when there is none
func ExtractEmail(text string) string {
	return emailRegex.FindString(text)
}

// ExtractPhone returns the first phone or WhatsApp number in text, or "" when there is none
func ExtractPhone(text string) string {
	for _, candidate := range phoneRegex.FindAllString(text, -1) {
		candidate = strings.TrimSpace(candidate)
		if digits := countDigits(candidate); digits >= 7 && digits <= 15 {
			return candidate
		}
	}
	return ""
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
