package validator

import (
	"errors"
	"strings"
)

var (
	ErrEmptyPhone    = errors.New("phone number cannot be empty")
	ErrInvalidFormat = errors.New("phone number can only contain digits")
	ErrInvalidLength = errors.New("phone number must be between 10 and 13 digits")
	ErrInvalidPrefix = errors.New("phone number must be an Indonesian mobile number starting with 08")
)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")

// NormalizePhone accepts an Indonesian mobile number written as 0812-3456-7890,
// +62 812 3456 7890 or 6281234567890 and returns the local 08 form.
func NormalizePhone(phone string) (string, error) {
	phone = phoneSeparators.Replace(strings.TrimSpace(phone))
	if phone == "" {
		return "", ErrEmptyPhone
	}
	if strings.HasPrefix(phone, "62") && len(phone) >= 11 {
		phone = "0" + phone[2:]
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", ErrInvalidFormat
		}
	}
	if len(phone) < 10 || len(phone) > 13 {
		return "", ErrInvalidLength
	}
	// 08 then an operator digit; 080x is unassigned
	if !strings.HasPrefix(phone, "08") || phone[2] == '0' {
		return "", ErrInvalidPrefix
	}
	return phone, nil
}

// PhoneE164 returns the +62 form the payment gateway expects. Input that does
// not normalize is returned unchanged.
func PhoneE164(phone string) string {
	local, err := NormalizePhone(phone)
	if err != nil {
		return phone
	}
	return "+62" + local[1:]
}
