// Package isbn parses and validates ISBN-10 and ISBN-13 identifiers and
// converts between the two formats.
package isbn

import (
	"strings"
)

// FailureReason enumerates why Parse rejected an input.
type FailureReason string

const (
	ReasonEmpty       FailureReason = "empty"
	ReasonWrongLength FailureReason = "wrong length"
	ReasonNonNumeric  FailureReason = "non-numeric"
	ReasonBadCheck    FailureReason = "bad check digit"
)

// Result is the outcome of Parse.
type Result struct {
	OK         bool
	ISBN13     string
	ISBN10     string // empty if no ISBN-10 representation exists (979-prefixed)
	Hyphenated string
	Reason     FailureReason
}

// Parse strips whitespace and hyphens from raw, recognizes it as an ISBN-10
// or ISBN-13, verifies its check digit, and returns the canonical forms.
// Parse is pure and total: it never panics.
func Parse(raw string) Result {
	stripped := strip(raw)
	if stripped == "" {
		return Result{Reason: ReasonEmpty}
	}

	switch len(stripped) {
	case 10:
		return parse10(stripped)
	case 13:
		return parse13(stripped)
	default:
		return Result{Reason: ReasonWrongLength}
	}
}

func strip(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == ' ' || r == '-' || r == '\t' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parse10(s string) Result {
	sum := 0
	for i := 0; i < 9; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return Result{Reason: ReasonNonNumeric}
		}
		sum += (10 - i) * int(d-'0')
	}

	last := s[9]
	var checkVal int
	switch {
	case last >= '0' && last <= '9':
		checkVal = int(last - '0')
	case last == 'X' || last == 'x':
		checkVal = 10
	default:
		return Result{Reason: ReasonNonNumeric}
	}
	sum += checkVal

	if sum%11 != 0 {
		return Result{Reason: ReasonBadCheck}
	}

	isbn13, ok := isbn10To13(s)
	if !ok {
		// Unreachable: every valid ISBN-10 converts to an ISBN-13.
		return Result{Reason: ReasonBadCheck}
	}

	return Result{
		OK:         true,
		ISBN13:     isbn13,
		ISBN10:     strings.ToUpper(s),
		Hyphenated: hyphenate13(isbn13),
	}
}

func parse13(s string) Result {
	digits := make([]int, 13)
	for i := 0; i < 13; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return Result{Reason: ReasonNonNumeric}
		}
		digits[i] = int(d - '0')
	}

	sum := 0
	for i := 0; i < 12; i++ {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += weight * digits[i]
	}
	check := (10 - sum%10) % 10
	if check != digits[12] {
		return Result{Reason: ReasonBadCheck}
	}

	isbn10 := ""
	if strings.HasPrefix(s, "978") {
		isbn10, _ = isbn13To10(s)
	}

	return Result{
		OK:         true,
		ISBN13:     s,
		ISBN10:     isbn10,
		Hyphenated: hyphenate13(s),
	}
}

// isbn10To13 prepends "978" to the first 9 digits of an ISBN-10 and
// recomputes the check digit.
func isbn10To13(isbn10 string) (string, bool) {
	if len(isbn10) != 10 {
		return "", false
	}
	first9 := "978" + isbn10[:9]

	sum := 0
	for i := 0; i < 12; i++ {
		weight := 1
		if i%2 == 1 {
			weight = 3
		}
		sum += weight * int(first9[i]-'0')
	}
	check := (10 - sum%10) % 10

	return first9 + string(rune('0'+check)), true
}

// isbn13To10 converts a "978"-prefixed ISBN-13 to ISBN-10. It returns ok=false
// for any other prefix (notably "979", which has no ISBN-10 form).
func isbn13To10(isbn13 string) (string, bool) {
	if len(isbn13) != 13 || !strings.HasPrefix(isbn13, "978") {
		return "", false
	}
	first9 := isbn13[3:12]

	sum := 0
	for i := 0; i < 9; i++ {
		sum += (10 - i) * int(first9[i]-'0')
	}
	check := (11 - sum%11) % 11

	checkCh := byte('0' + check)
	if check == 10 {
		checkCh = 'X'
	}

	return first9 + string(checkCh), true
}

// hyphenate13 renders an ISBN-13 with EAN/group/publisher/title/check
// hyphens are not derivable without a range database, so this produces the
// conventional 3-1-rest-1 split used when no registrar table is available.
func hyphenate13(isbn13 string) string {
	if len(isbn13) != 13 {
		return isbn13
	}
	return isbn13[:3] + "-" + isbn13[3:4] + "-" + isbn13[4:12] + "-" + isbn13[12:]
}

// ToISBN13 converts any recognized ISBN-10 to its ISBN-13 form; a valid
// ISBN-13 is returned in canonical form. It returns ok=false if raw does not
// parse as a valid ISBN-10 or ISBN-13.
func ToISBN13(raw string) (string, bool) {
	r := Parse(raw)
	if !r.OK {
		return "", false
	}
	return r.ISBN13, true
}

// ToISBN10 converts any recognized "978"-prefixed ISBN-13 to its ISBN-10
// form. It returns ok=false for non-978 ISBN-13s or invalid input.
func ToISBN10(raw string) (string, bool) {
	r := Parse(raw)
	if !r.OK || r.ISBN10 == "" {
		return "", false
	}
	return r.ISBN10, true
}

// Hyphenate renders an ISBN-13 with conventional group separators.
func Hyphenate(isbn13 string) string {
	return hyphenate13(isbn13)
}
