package contacts

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidFormat is returned when a value is neither a phone number nor an email address
var ErrInvalidFormat = errors.New("invalid_format")

var (
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	localPhone        = regexp.MustCompile(`^[0-9]{10}$`)
	emailPattern      = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}$`)
	phoneSeparators   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
	bulkTokenSplitter = regexp.MustCompile(`[,;\r\n]+`)
)

// DefaultCountryCode is prefixed to bare 10-digit local numbers
var DefaultCountryCode = "+57"

// SetDefaultCountryCode overrides the country code used for local numbers.
// Call once at startup.
func SetDefaultCountryCode(code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		return
	}
	if !strings.HasPrefix(code, "+") {
		code = "+" + code
	}
	DefaultCountryCode = code
}

// StripPhone removes spaces, hyphens and parentheses
func StripPhone(phone string) string {
	return phoneSeparators.Replace(strings.TrimSpace(phone))
}

// IsValidPhone checks the structural phone pattern: optional + and 10-15 digits
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(StripPhone(phone))
}

// IsValidEmail checks for a conventional local@domain.tld shape
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// NormalizeLocalPhone prefixes the default country code to a bare 10-digit number
func NormalizeLocalPhone(phone string) string {
	stripped := StripPhone(phone)
	if localPhone.MatchString(stripped) {
		return DefaultCountryCode + stripped
	}
	return stripped
}

// phoneKey is the comparison key used for duplicate detection. Values that
// are not structurally valid phones have no key.
func phoneKey(phone string) string {
	stripped := StripPhone(phone)
	if !IsValidPhone(stripped) {
		return ""
	}
	return strings.TrimPrefix(NormalizeLocalPhone(stripped), "+")
}

func emailKey(email string) string {
	if !IsValidEmail(email) {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// Classify decides whether value is a phone number or an email address.
// Exactly one of the returned strings is non-empty on success.
func Classify(value string) (phone, email string, err error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "@") {
		if IsValidEmail(value) {
			return "", value, nil
		}
		return "", "", ErrInvalidFormat
	}
	if IsValidPhone(value) {
		return StripPhone(value), "", nil
	}
	return "", "", ErrInvalidFormat
}
