package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var reGroupedAmount = regexp.MustCompile(`^\d{1,3}(?:,\d{2,3})+(?:\.\d+)?$`)

// ParseAmount turns a matched money token such as "4,500", "1,25,000" or
// "1,250.50" into a float. Commas are only accepted as digit-group separators.
func ParseAmount(token string) (float64, error) {
	compact := strings.NewReplacer(" ", "", "\u00a0", "").Replace(strings.TrimSpace(token))
	if compact == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.Contains(compact, ",") {
		if !reGroupedAmount.MatchString(compact) {
			return 0, fmt.Errorf("malformed amount %q", token)
		}
		compact = strings.ReplaceAll(compact, ",", "")
	}
	return strconv.ParseFloat(compact, 64)
}

// ParseDayMonthYear builds a UTC date from day-first numeric parts. Two-digit
// years are taken as 20yy. Impossible dates such as 31/02 are rejected.
func ParseDayMonthYear(day, month, year string) (time.Time, error) {
	d, err := strconv.Atoi(day)
	if err != nil {
		return time.Time{}, err
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return time.Time{}, err
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, err
	}
	switch len(year) {
	case 2:
		y += 2000
	case 4:
	default:
		return time.Time{}, fmt.Errorf("unsupported year %q", year)
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, fmt.Errorf("invalid date %s/%s/%s", day, month, year)
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, fmt.Errorf("invalid date %s/%s/%s", day, month, year)
	}
	return t, nil
}

func FloatPtr(v float64) *float64 { return &v }

func TimePtr(v time.Time) *time.Time { return &v }
