package util

import (
	"regexp"
	"strings"
)

var (
	reSpaces         = regexp.MustCompile(`\s+`)
	reLocalPartSplit = regexp.MustCompile(`[._\-]+`)
	reDigits         = regexp.MustCompile(`[0-9]+`)
)

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func NormalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DisplayNameFromAddress derives a readable name from the local part of an
// address: "john.doe42@x.com" becomes "john doe". It returns "" when nothing
// readable is left.
func DisplayNameFromAddress(address string) string {
	local := address
	if at := strings.LastIndex(address, "@"); at >= 0 {
		local = address[:at]
	}
	local = reLocalPartSplit.ReplaceAllString(local, " ")
	local = reDigits.ReplaceAllString(local, "")
	return NormalizeSpaces(local)
}

func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
