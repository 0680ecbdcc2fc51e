package audit

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func captureLog(t *testing.T, fn func()) string {
	t.Helper()
	old := log.Writer()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(old)
	fn()
	return buf.String()
}

func TestLogPosting(t *testing.T) {
	logger := NewLogger()

	out := captureLog(t, func() {
		logger.LogPosting("ref-1", 1, decimal.RequireFromString("100.00"), "DEBIT", "1.2.3.4")
	})

	assert.Contains(t, out, "AUDIT:")
	assert.Contains(t, out, `"event_type":"DEBIT"`)
	assert.Contains(t, out, `"reference":"ref-1"`)
	assert.Contains(t, out, `"status":"SUCCESS"`)
	assert.Contains(t, out, `"ip_address":"1.2.3.4"`)
}

func TestLogError(t *testing.T) {
	logger := NewLogger()

	out := captureLog(t, func() {
		logger.LogError(1, errors.New("insufficient funds"))
	})

	assert.Contains(t, out, `"event_type":"ERROR"`)
	assert.Contains(t, out, `"status":"FAILED"`)
	assert.Contains(t, out, "insufficient funds")
}
