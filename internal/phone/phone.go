// Package phone normalizes Ukrainian phone numbers between the formats the
// PBX, the callback API and the SMS gateway each expect.
package phone

import "strings"

// digits strips everything except decimal digits.
func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize converts a number to the local 0XXXXXXXXX form used as the
// correlation key. Provider events report the same endpoint in several
// formats (380..., 80..., 0...), so both sides of a match go through here.
func Normalize(number string) string {
	n := digits(number)
	switch {
	case strings.HasPrefix(n, "380"):
		return n[2:]
	case strings.HasPrefix(n, "80"):
		return "0" + n[2:]
	case len(n) == 9:
		return "0" + n
	}
	return n
}

// ForSMS converts a number to the international 380XXXXXXXXX form the
// SMS-Fly API requires.
func ForSMS(number string) string {
	n := digits(number)
	switch {
	case strings.HasPrefix(n, "380"):
		return n
	case strings.HasPrefix(n, "80"):
		return "3" + n
	case strings.HasPrefix(n, "0"):
		return "38" + n
	}
	return "380" + n
}
