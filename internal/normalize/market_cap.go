package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var dollarAmountRegex = regexp.MustCompile(`(?i)^([\d.]+)([KMBT]?)$`)

var suffixMultipliers = map[string]float64{
	"K": 1e3,
	"M": 1e6,
	"B": 1e9,
	"T": 1e12,
}

// ParseDollarAmount converts a currency string such as "$249.67K" or
// "$142,116,149" into a number. ok is false when the string is not a
// recognisable amount.
func ParseDollarAmount(value string) (amount float64, ok bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	v = strings.ReplaceAll(v, "$", "")
	v = strings.ReplaceAll(v, ",", "")

	m := dollarAmountRegex.FindStringSubmatch(v)
	if m == nil {
		return 0, false
	}

	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if mult, found := suffixMultipliers[strings.ToUpper(m[2])]; found {
		num *= mult
	}
	return num, true
}
