package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomCode returns n characters from the unambiguous alphabet
func RandomCode(n int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		b[i] = codeAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// NewBookingCode returns SB + yymmdd + 6 random characters, e.g. SB250101K7QX2M
func NewBookingCode(now time.Time) (string, error) {
	suffix, err := RandomCode(6)
	if err != nil {
		return "", err
	}
	return "SB" + now.Format("060102") + suffix, nil
}

// NewTicketCode returns TK- + 8 random characters
func NewTicketCode() (string, error) {
	suffix, err := RandomCode(8)
	if err != nil {
		return "", err
	}
	return "TK-" + suffix, nil
}

// NewOrderID returns the gateway order id for a payment attempt
func NewOrderID(bookingCode string, now time.Time) string {
	return fmt.Sprintf("%s-%d", bookingCode, now.Unix())
}
