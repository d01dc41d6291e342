package patterns

// luhnValid reports whether a string of digits passes the Luhn checksum.
// Non-digit runes must be stripped by the caller.
func luhnValid(digits string) bool {
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		d := int(c - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// stripSeparators removes spaces and dashes from a candidate number.
func stripSeparators(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '-' {
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// verifyCreditCard scores candidate numbers. Luhn-passing numbers are
// near certain. Numbers that fail the checksum but carry deliberate card
// formatting (consistent separator-delimited groups) stay blockable:
// typos and test numbers still disclose card shape. Bare digit runs that
// fail the checksum are discarded as incidental.
func verifyCreditCard(match string) (float64, bool) {
	if luhnValid(stripSeparators(match)) {
		return 0.95, true
	}
	if cardFormatted(match) {
		return 0.90, true
	}
	return 0, false
}

// cardFormatted reports whether s is digit groups in card shape (4-4-4-4
// or 4-6-5) joined by a single consistent separator.
func cardFormatted(s string) bool {
	var sep byte
	var groups []int
	run := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' {
			run++
			continue
		}
		if run == 0 {
			return false
		}
		if sep == 0 {
			sep = c
		} else if c != sep {
			return false
		}
		groups = append(groups, run)
		run = 0
	}
	if sep == 0 || run == 0 {
		return false
	}
	groups = append(groups, run)
	switch len(groups) {
	case 4:
		return groups[0] == 4 && groups[1] == 4 && groups[2] == 4 && groups[3] == 4
	case 3:
		return groups[0] == 4 && groups[1] == 6 && groups[2] == 5
	}
	return false
}
