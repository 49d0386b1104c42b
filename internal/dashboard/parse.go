package dashboard

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var numberRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

var noDataTerms = []string{"pay-as-you-go", "pay as you go", "no data", "none", "n/a"}

// ParsePrice returns the first number in a price string such as "$30.00 per month".
func ParsePrice(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseDataAmount converts a data allowance string to GB. Unparseable or data-less plans are 0.
func ParseDataAmount(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	for _, term := range noDataTerms {
		if strings.Contains(s, term) {
			return 0
		}
	}

	m := numberRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	if strings.Contains(s, "mb") && !strings.Contains(s, "gb") {
		v /= 1000
	}
	return v
}

// Truncate shortens names longer than 25 characters to 22 plus an ellipsis.
func Truncate(name string) string {
	if utf8.RuneCountInString(name) <= 25 {
		return name
	}
	runes := []rune(name)
	return string(runes[:22]) + "..."
}

// Capitalize upper-cases the first letter and lower-cases the rest.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return strings.ToUpper(string(r)) + strings.ToLower(s[size:])
}
