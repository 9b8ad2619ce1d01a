package redact

import "strings"

// luhnValid checks whether a digit string passes the Luhn algorithm
// (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// validCardNumber gates credit-card matches: 13-16 digits and a passing
// Luhn checksum.
func validCardNumber(match string) bool {
	digits := stripNonDigits(match)
	if len(digits) < 13 || len(digits) > 16 {
		return false
	}
	return luhnValid(digits)
}

// validSSN rejects structurally invalid Social Security numbers per the
// SSA issuance rules: area 000/666/900+ never issued, group 00 and serial
// 0000 invalid.
func validSSN(match string) bool {
	digits := stripNonDigits(match)
	if len(digits) != 9 {
		return false
	}
	area := digits[0:3]
	group := digits[3:5]
	serial := digits[5:9]

	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" {
		return false
	}
	if serial == "0000" {
		return false
	}
	return true
}

// stripNonDigits removes all non-digit characters from s.
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
