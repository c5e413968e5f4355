package cognito

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultPhoneRegion = "US"

// IsPhoneNumber reports whether a sign-in identifier looks like a phone
// number rather than an email address.
func IsPhoneNumber(identifier string) bool {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.Contains(identifier, "@") {
		return false
	}

	digits := 0
	for i, r := range identifier {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return false
		}
	}
	if digits < 10 {
		return false
	}

	_, err := phonenumbers.Parse(identifier, defaultPhoneRegion)
	return err == nil
}

// NormalizePhone returns the E.164 form of a phone identifier, or "" when
// the input is not a phone number.
func NormalizePhone(identifier string) string {
	if !IsPhoneNumber(identifier) {
		return ""
	}
	num, err := phonenumbers.Parse(strings.TrimSpace(identifier), defaultPhoneRegion)
	if err != nil {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// normalizeUsername maps phone identifiers to E.164 and lowercases emails,
// matching how usernames were registered.
func normalizeUsername(username string) string {
	if phone := NormalizePhone(username); phone != "" {
		return phone
	}
	return strings.ToLower(strings.TrimSpace(username))
}
