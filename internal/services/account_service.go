package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/skip2/go-qrcode"

	"github.com/coastbank/backend/internal/config"
	"github.com/coastbank/backend/internal/models"
)

type AccountService struct {
	db        *sql.DB
	validator *ValidationHelper
	cfg       *config.AccountConfig
}

type createAccountRequest struct {
	AccountName string `json:"account_name" validate:"required,min=2,max=100"`
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{
		db:        db,
		validator: NewValidationHelper(),
		cfg:       config.LoadAccountConfig(),
	}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertAccount creates an account row with a freshly generated account
// number, regenerating and retrying when the number collides with an existing
// one. maxRetries bounds the attempts; exhausting them surfaces the last
// constraint error.
//
// Inside an enclosing transaction each attempt runs under a savepoint: a
// unique-constraint violation aborts the Postgres transaction, so without
// rolling back to the savepoint the retry's INSERT would fail with
// in_failed_sql_transaction instead of getting a fresh number.
func insertAccount(ctx context.Context, q rowQuerier, userID int64, accountName string, maxRetries int) (*models.Account, error) {
	_, inTx := q.(*sql.Tx)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		account := &models.Account{
			UserID:        userID,
			AccountName:   accountName,
			AccountNumber: GenerateAccountNumber(),
		}

		if inTx {
			if _, err := q.ExecContext(ctx, "SAVEPOINT insert_account"); err != nil {
				return nil, err
			}
		}

		err := q.QueryRowContext(ctx, `
            INSERT INTO accounts (user_id, account_name, account_number, created_at)
            VALUES ($1, $2, $3, NOW())
            RETURNING id, created_at`,
			userID, accountName, account.AccountNumber).
			Scan(&account.ID, &account.CreatedAt)
		if err == nil {
			return account, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "accounts_account_number_key" {
			if inTx {
				if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT insert_account"); rbErr != nil {
					return nil, rbErr
				}
			}
			log.Printf("[ACCOUNT] Account number collision on attempt %d, regenerating", attempt+1)
			lastErr = err
			continue
		}

		return nil, err
	}

	return nil, lastErr
}

// CreateAccount opens a new account for the authenticated user
// @Summary Create an account
// @Description Open a named account with a generated account number and no starting balance
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body createAccountRequest true "Account data"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req createAccountRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := insertAccount(r.Context(), s.db, userID, req.AccountName, s.cfg.NumberMaxRetries)
	if err != nil {
		log.Printf("[ACCOUNT] Account creation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create account", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[ACCOUNT] Account %s created for user %d", account.AccountNumber, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// ListAccounts lists the authenticated user's accounts
// @Summary List accounts
// @Description Get all accounts owned by the authenticated user
// @Tags accounts
// @Produce json
// @Success 200 {array} models.Account
// @Failure 500 {object} ErrorResponse
// @Router /accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
        SELECT id, user_id, account_name, account_number, amount, created_at
        FROM accounts
        WHERE user_id = $1
        ORDER BY id`, userID)
	if err != nil {
		log.Printf("[ACCOUNT] Failed to list accounts for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountName, &a.AccountNumber, &a.Amount, &a.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch accounts", http.StatusInternalServerError, nil)
			return
		}
		accounts = append(accounts, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// BalanceEnquiry retrieves the current balance for an account
// @Summary Get account balance
// @Description Retrieve the current balance for a given account ID
// @Tags accounts
// @Produce json
// @Param accountId query int true "Account ID"
// @Success 200 {object} object{responseCode=string,accountId=int64,availableBalance=string,status=string}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /accounts/balance-enquiry [get]
func (s *AccountService) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(r.URL.Query().Get("accountId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "accountId is required", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[ACCOUNT_ENQUIRY] Balance enquiry for account %d from IP: %s", accountID, r.RemoteAddr)

	var account models.Account
	err = s.db.QueryRowContext(r.Context(),
		"SELECT id, amount FROM accounts WHERE id = $1", accountID).
		Scan(&account.ID, &account.Amount)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[ACCOUNT_ENQUIRY] Lookup failed for account %d: %v", accountID, err)
			SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"responseCode":     "00",
		"accountId":        account.ID,
		"availableBalance": account.Balance(),
		"status":           "SUCCESS",
	})
}

// AccountQR returns a QR image of the account number
// @Summary Get account QR code
// @Description Generate a QR code image encoding the account number, for sharing the deposit destination
// @Tags accounts
// @Produce json
// @Param accountId path int true "Account ID"
// @Success 200 {object} object{accountNumber=string,qrImage=string}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /accounts/{accountId}/qr [get]
func (s *AccountService) AccountQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountId"), 10, 64)
	if err != nil {
		SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	var accountNumber string
	err = s.db.QueryRowContext(r.Context(),
		"SELECT account_number FROM accounts WHERE id = $1 AND user_id = $2",
		accountID, userID).Scan(&accountNumber)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	qr, err := qrcode.New(accountNumber, qrcode.Medium)
	if err != nil {
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"accountNumber": accountNumber,
		"qrImage":       base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}
