package domain

import (
	"regexp"
	"strings"
)

const countryCode = "254"

var mobileNumber = regexp.MustCompile(`^(0|254)?[17]\d{8}$`)

// NormalizePhone validates a Kenyan mobile number and returns it in the
// 254XXXXXXXXX form the gateway expects.
func NormalizePhone(raw string) (string, error) {
	s := strings.Join(strings.Fields(raw), "")
	s = strings.TrimPrefix(s, "+")
	if !mobileNumber.MatchString(s) {
		return "", ErrInvalidChannelIdentifier
	}
	return countryCode + s[len(s)-9:], nil
}

func ValidPhone(raw string) bool {
	_, err := NormalizePhone(raw)
	return err == nil
}
