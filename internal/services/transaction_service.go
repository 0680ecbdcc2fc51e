package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"

	"github.com/coastbank/backend/internal/audit"
	"github.com/coastbank/backend/internal/config"
)

type TransactionService struct {
	ledger    *LedgerService
	redis     *redis.Client
	audit     *audit.Logger
	validator *ValidationHelper
	cfg       *config.TransactionConfig
}

type createTransactionRequest struct {
	Amount      json.Number `json:"amount"`
	Description string      `json:"description" validate:"required,max=100"`
	Type        string      `json:"type" validate:"required"`
}

func NewTransactionService(db *sql.DB, redisClient *redis.Client) *TransactionService {
	return &TransactionService{
		ledger:    NewLedgerService(db),
		redis:     redisClient,
		audit:     audit.NewLogger(),
		validator: NewValidationHelper(),
		cfg:       config.LoadTransactionConfig(),
	}
}

// CreateTransaction posts a credit or debit against an account
// @Summary Create a transaction
// @Description Apply a CREDIT or DEBIT transaction to the given account
// @Tags transactions
// @Accept json
// @Produce json
// @Param accountId path int true "Account ID"
// @Param transaction body createTransactionRequest true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /accounts/{accountId}/transactions [post]
func (ts *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createTransactionRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ts.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := ParseAmount(req.Amount)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	ipAddress := clientIP(r)
	log.Printf("[TRANSACTION] %s of %s against account %d from IP: %s", req.Type, amount, accountID, ipAddress)

	entry, err := ts.ledger.Apply(r.Context(), accountID, amount, req.Description, req.Type, ipAddress)
	if err != nil {
		ts.audit.LogError(accountID, err)
		switch {
		case errors.Is(err, ErrAccountNotFound):
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInsufficientFunds):
			SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
		case errors.Is(err, ErrInvalidTransactionType):
			SendErrorResponse(w, "Invalid transaction type", http.StatusBadRequest, nil)
		default:
			log.Printf("[TRANSACTION] Failed to process transaction for account %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	ts.audit.LogPosting(entry.Reference, entry.AccountID, entry.Amount, entry.Type, entry.IPAddress)

	// Queue for downstream consumers (after commit)
	if err := ts.queueTransactionEvent(r.Context(), entry); err != nil {
		log.Printf("[TRANSACTION] Failed to queue transaction event %s: %v", entry.Reference, err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// ListTransactions retrieves an account's transaction history
// @Summary List transactions
// @Description Get a page of an account's transactions, newest first
// @Tags transactions
// @Produce json
// @Param accountId path int true "Account ID"
// @Param description query string false "Exact-match description filter"
// @Param page query int false "Page number (default: 1)"
// @Param page_size query int false "Page size (default: 10, max: 100)"
// @Success 200 {object} TransactionPage
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /accounts/{accountId}/transactions [get]
func (ts *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	description := r.URL.Query().Get("description")
	page := parsePositiveInt(r.URL.Query().Get("page"), 1)
	pageSize := parsePositiveInt(r.URL.Query().Get("page_size"), ts.cfg.DefaultPageSize)
	if pageSize > ts.cfg.MaxPageSize {
		pageSize = ts.cfg.MaxPageSize
	}

	result, err := ts.ledger.ListTransactions(r.Context(), accountID, description, page, pageSize)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSACTION] Failed to list transactions for account %d: %v", accountID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetTransaction retrieves a single ledger entry
// @Summary Get transaction by reference
// @Description Retrieve a transaction by its reference id
// @Tags transactions
// @Produce json
// @Param reference path string true "Transaction reference"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /transactions/{reference} [get]
func (ts *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	entry, err := ts.ledger.FetchByReference(r.Context(), reference)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TRANSACTION] Failed to fetch transaction %s: %v", reference, err)
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

func (ts *TransactionService) queueTransactionEvent(ctx context.Context, entry any) error {
	if ts.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return ts.redis.RPush(ctx, ts.cfg.EventQueue, string(data)).Err()
}

// clientIP derives the caller's IP: first hop of X-Forwarded-For when a proxy
// set it, otherwise the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
