package xtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Units beyond what time.ParseDuration understands. Months and years are
// approximations.
var longUnits = []struct {
	suffix string
	dur    time.Duration
}{
	{"Y", 365 * 24 * time.Hour},
	{"M", 30 * 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
	{"d", 24 * time.Hour},
}

// ParseDuration parses a duration string. In addition to the formats accepted
// by time.ParseDuration, it supports the units "d" (day), "w" (week), "M"
// (30 days) and "Y" (365 days), in any combination, e.g. "1w2d" or "1d12h".
// A bare number is interpreted as seconds, e.g. "600" is 10 minutes.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	var (
		total time.Duration
		rest  = s
	)
	for rest != "" {
		// Split off the next <number><unit> token.
		i := 0
		for i < len(rest) && (unicode.IsDigit(rune(rest[i])) || rest[i] == '.') {
			i++
		}
		if i == 0 {
			return 0, fmt.Errorf("invalid duration '%s'", s)
		}
		j := i
		for j < len(rest) && !unicode.IsDigit(rune(rest[j])) && rest[j] != '.' {
			j++
		}
		num, unit := rest[:i], rest[i:j]
		rest = rest[j:]

		d, err := parseToken(num, unit)
		if err != nil {
			return 0, fmt.Errorf("invalid duration '%s': %w", s, err)
		}
		total += d
	}

	if neg {
		total = -total
	}

	return total, nil
}

func parseToken(num, unit string) (time.Duration, error) {
	for _, lu := range longUnits {
		if unit == lu.suffix || (lu.suffix != "M" && strings.EqualFold(unit, lu.suffix)) {
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, err //nolint:wrapcheck // Wrapped by caller.
			}
			return time.Duration(f * float64(lu.dur)), nil
		}
	}

	if unit == "" {
		return 0, fmt.Errorf("missing unit after '%s'", num)
	}

	return time.ParseDuration(num + unit) //nolint:wrapcheck // Wrapped by caller.
}

// FormatDuration formats a duration using the same units as ParseDuration,
// e.g. "1w2d", "10m" or "1d12h". Components smaller than round are dropped.
func FormatDuration(d time.Duration, round time.Duration) string {
	if round > 0 {
		d = d.Round(round)
	}
	if d == 0 {
		return "0s"
	}

	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}

	units := []struct {
		suffix string
		dur    time.Duration
	}{
		{"Y", 365 * 24 * time.Hour},
		{"M", 30 * 24 * time.Hour},
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
		{"ms", time.Millisecond},
	}
	for _, u := range units {
		if u.dur < round {
			break
		}
		if n := d / u.dur; n > 0 {
			fmt.Fprintf(&sb, "%d%s", n, u.suffix)
			d -= n * u.dur
		}
	}

	if sb.Len() == 0 || sb.String() == "-" {
		return "0s"
	}

	return sb.String()
}
