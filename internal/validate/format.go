package validate

import "strings"

// FormatCPF renders up to 11 digits as 000.000.000-00. Partial input is
// formatted as far as it goes.
func FormatCPF(raw string) string {
	d := OnlyDigits(raw)
	if len(d) > 11 {
		d = d[:11]
	}
	var b strings.Builder
	for i := 0; i < len(d); i++ {
		switch i {
		case 3, 6:
			b.WriteByte('.')
		case 9:
			b.WriteByte('-')
		}
		b.WriteByte(d[i])
	}
	return b.String()
}

// FormatPhone renders (00) 0000-0000 for landlines and (00) 00000-0000 for
// mobiles.
func FormatPhone(raw string) string {
	d := OnlyDigits(raw)
	if len(d) > 11 {
		d = d[:11]
	}
	if len(d) <= 2 {
		return d
	}
	head := "(" + d[:2] + ") "
	rest := d[2:]
	split := 4
	if len(d) == 11 {
		split = 5
	}
	if len(rest) <= split {
		return head + rest
	}
	return head + rest[:split] + "-" + rest[split:]
}

// FormatCEP renders 00000-000.
func FormatCEP(raw string) string {
	d := OnlyDigits(raw)
	if len(d) > 8 {
		d = d[:8]
	}
	if len(d) <= 5 {
		return d
	}
	return d[:5] + "-" + d[5:]
}
