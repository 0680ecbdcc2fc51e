package services

import (
	"fmt"
	"math/rand"
	"time"
)

const accountNumberCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateAccountNumber returns an account number of the form
// "<unix seconds>-<6 chars from A-Z0-9>". Uniqueness is best-effort: the
// timestamp prefix makes collisions unlikely but not impossible, so the
// account store retries on a unique-constraint violation.
func GenerateAccountNumber() string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = accountNumberCharset[rand.Intn(len(accountNumberCharset))]
	}
	return fmt.Sprintf("%d-%s", time.Now().Unix(), suffix)
}
