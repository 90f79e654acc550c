package session

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidContact is returned when a phone number or email cannot be normalized.
var ErrInvalidContact = errors.New("invalid contact")

// ContactKind says how a contact string is interpreted.
type ContactKind string

const (
	KindPhone ContactKind = "phone"
	KindEmail ContactKind = "email"
)

// DefaultDialCode is used for phone contacts when none is given.
const DefaultDialCode = "+91"

const (
	minPhoneDigits = 7
	maxPhoneDigits = 15
)

type Country struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	DialCode string `json:"dialCode"`
}

// Countries lists the dial codes accepted for phone contacts.
var Countries = []Country{
	{"India", "IN", "+91"},
	{"United States", "US", "+1"},
	{"United Kingdom", "GB", "+44"},
	{"United Arab Emirates", "AE", "+971"},
	{"Canada", "CA", "+1"},
	{"Australia", "AU", "+61"},
	{"Singapore", "SG", "+65"},
	{"Germany", "DE", "+49"},
	{"France", "FR", "+33"},
	{"Japan", "JP", "+81"},
	{"Brazil", "BR", "+55"},
	{"Russia", "RU", "+7"},
	{"South Africa", "ZA", "+27"},
	{"Mexico", "MX", "+52"},
	{"Nigeria", "NG", "+234"},
}

func knownDialCode(code string) bool {
	for _, c := range Countries {
		if c.DialCode == code {
			return true
		}
	}
	return false
}

// NormalizeContact returns the canonical form of a contact: the dial code
// followed by the local digits for phones, the trimmed lowercase address
// for emails. Two inputs that normalize equally identify the same account.
func NormalizeContact(kind ContactKind, value, dialCode string) (string, error) {
	switch kind {
	case KindPhone:
		return normalizePhone(value, dialCode)
	case KindEmail:
		return normalizeEmail(value)
	default:
		return "", fmt.Errorf("%w: unknown contact kind %q", ErrInvalidContact, kind)
	}
}

func normalizePhone(value, dialCode string) (string, error) {
	dialCode = strings.TrimSpace(dialCode)
	if dialCode == "" {
		dialCode = DefaultDialCode
	}
	if !strings.HasPrefix(dialCode, "+") {
		dialCode = "+" + dialCode
	}
	if !knownDialCode(dialCode) {
		return "", fmt.Errorf("%w: unsupported dial code %s", ErrInvalidContact, dialCode)
	}

	var digits strings.Builder
	for _, r := range value {
		switch {
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			digits.WriteRune(r)
		case unicode.IsSpace(r), r == '-', r == '(', r == ')', r == '.':
		default:
			return "", fmt.Errorf("%w: phone number contains %q", ErrInvalidContact, r)
		}
	}

	n := digits.Len()
	if n < minPhoneDigits || n > maxPhoneDigits {
		return "", fmt.Errorf("%w: phone number must have %d-%d digits, got %d", ErrInvalidContact, minPhoneDigits, maxPhoneDigits, n)
	}
	return dialCode + digits.String(), nil
}

func normalizeEmail(value string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(value))
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", fmt.Errorf("%w: %q is not an email address", ErrInvalidContact, value)
	}
	return email, nil
}
