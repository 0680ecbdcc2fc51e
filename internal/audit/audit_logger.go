package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp time.Time       `json:"timestamp"`
	EventType string          `json:"event_type"`
	Reference string          `json:"reference"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Details   any             `json:"details"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogPosting records a committed ledger posting.
func (a *Logger) LogPosting(reference string, accountID int64, amount decimal.Decimal, txType, ipAddress string) {
	event := Event{
		Timestamp: time.Now(),
		EventType: txType,
		Reference: reference,
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]string{
			"ip_address": ipAddress,
		},
	}
	a.log(event)
}

// LogError records a rejected or failed posting attempt.
func (a *Logger) LogError(accountID int64, err error) {
	event := Event{
		Timestamp: time.Now(),
		EventType: "ERROR",
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
