package config

import (
	"os"
	"strconv"
)

type TransactionConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	EventQueue      string
}

type AccountConfig struct {
	NumberMaxRetries int
}

func LoadTransactionConfig() *TransactionConfig {
	return &TransactionConfig{
		DefaultPageSize: getEnvAsInt("TX_DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:     getEnvAsInt("TX_MAX_PAGE_SIZE", 100),
		EventQueue:      getEnv("TX_EVENT_QUEUE", "transaction_events"),
	}
}

func LoadAccountConfig() *AccountConfig {
	return &AccountConfig{
		NumberMaxRetries: getEnvAsInt("ACCOUNT_NUMBER_MAX_RETRIES", 5),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
