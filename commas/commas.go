// Package commas groups digits in thousands for display.
package commas

import "strconv"

func Int(v int) string {
	return String(strconv.Itoa(v))
}

func Int64(v int64) string {
	return String(strconv.FormatInt(v, 10))
}

// String inserts separators into a string of decimal digits with an optional
// leading minus sign.
func String(s string) string {
	if s == "" {
		return s
	}

	sign := ""
	if s[0] == '-' {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}

	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}

	out := make([]byte, 0, len(s)+len(s)/3+1)
	out = append(out, sign...)
	out = append(out, s[:lead]...)
	for i := lead; i < len(s); i += 3 {
		out = append(out, ',')
		out = append(out, s[i:i+3]...)
	}
	return string(out)
}
