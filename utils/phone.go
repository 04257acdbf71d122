package utils

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used when a stored number has no country prefix.
// Paraguay is the launch market.
const DefaultPhoneRegion = "PY"

// NormalizePhoneE164 parses a phone number and returns it in E.164 form.
// Returns the empty string when the value cannot be parsed; callers treat
// that as "no reachable phone" and skip the message.
func NormalizePhoneE164(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	num, err := libphonenumber.Parse(trimmed, DefaultPhoneRegion)
	if err != nil {
		return ""
	}
	if !libphonenumber.IsValidNumber(num) {
		return ""
	}
	return libphonenumber.Format(num, libphonenumber.E164)
}
