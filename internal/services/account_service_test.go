package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func newAccountRouter(s *AccountService) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/accounts", s.CreateAccount)
	r.Get("/accounts", s.ListAccounts)
	r.Get("/accounts/balance-enquiry", s.BalanceEnquiry)
	r.Get("/accounts/{accountId}/qr", s.AccountQR)
	return r
}

func authenticatedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(context.WithValue(req.Context(), "userID", "1"))
}

func TestInsertAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, time.Now()))

		account, err := insertAccount(ctx, db, 1, "John Doe", 5)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), account.ID)
		assert.Equal(t, "John Doe", account.AccountName)
		assert.NotEmpty(t, account.AccountNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries on account number collision", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_account_number_key"})
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(8, time.Now()))

		account, err := insertAccount(ctx, db, 1, "John Doe", 5)
		assert.NoError(t, err)
		assert.Equal(t, int64(8), account.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries under a savepoint inside a transaction", func(t *testing.T) {
		// A 23505 aborts the enclosing Postgres transaction; the retry only
		// works after rolling back to the per-attempt savepoint.
		mock.ExpectBegin()
		mock.ExpectExec("SAVEPOINT insert_account").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_account_number_key"})
		mock.ExpectExec("ROLLBACK TO SAVEPOINT insert_account").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("SAVEPOINT insert_account").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(9, time.Now()))
		mock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)

		account, err := insertAccount(ctx, tx, 1, "John Doe", 5)
		assert.NoError(t, err)
		assert.Equal(t, int64(9), account.ID)
		assert.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not retry on other errors", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "23503", Constraint: "accounts_user_id_fkey"})

		account, err := insertAccount(ctx, db, 1, "John Doe", 5)
		assert.Nil(t, account)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			mock.ExpectQuery("INSERT INTO accounts").
				WithArgs(int64(1), "John Doe", sqlmock.AnyArg()).
				WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_account_number_key"})
		}

		account, err := insertAccount(ctx, db, 1, "John Doe", 3)
		assert.Nil(t, account)
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_CreateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	router := newAccountRouter(service)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO accounts").
			WithArgs(int64(1), "Savings", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(3, time.Now()))

		req := authenticatedRequest("POST", "/accounts", `{"account_name": "Savings"}`)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), `"account_name":"Savings"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account name", func(t *testing.T) {
		req := authenticatedRequest("POST", "/accounts", `{}`)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Validation failed")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/accounts", strings.NewReader(`{"account_name": "Savings"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccountService_ListAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	router := newAccountRouter(service)

	t.Run("returns user accounts", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, user_id, account_name, account_number, amount, created_at\s+FROM accounts\s+WHERE user_id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "account_name", "account_number", "amount", "created_at"}).
				AddRow(1, 1, "John Doe", "1700000000-AB12CD", "500.00", time.Now()).
				AddRow(2, 1, "Savings", "1700000001-XY98ZW", nil, time.Now()))

		req := authenticatedRequest("GET", "/accounts", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var accounts []map[string]any
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &accounts))
		assert.Len(t, accounts, 2)
		assert.Equal(t, "1700000000-AB12CD", accounts[0]["account_number"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty list for new user", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, user_id, account_name, account_number, amount, created_at\s+FROM accounts\s+WHERE user_id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "account_name", "account_number", "amount", "created_at"}))

		req := authenticatedRequest("GET", "/accounts", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]\n", w.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountService_BalanceEnquiry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	router := newAccountRouter(service)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, amount FROM accounts WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).AddRow(1, "500.00"))

		req := authenticatedRequest("GET", "/accounts/balance-enquiry?accountId=1", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"responseCode":"00"`)
		assert.Contains(t, w.Body.String(), `"status":"SUCCESS"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("null balance reads as zero", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, amount FROM accounts WHERE id = \$1`).
			WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).AddRow(2, nil))

		req := authenticatedRequest("GET", "/accounts/balance-enquiry?accountId=2", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"availableBalance":"0"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, amount FROM accounts WHERE id = \$1`).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		req := authenticatedRequest("GET", "/accounts/balance-enquiry?accountId=99", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing account id", func(t *testing.T) {
		req := authenticatedRequest("GET", "/accounts/balance-enquiry", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAccountService_AccountQR(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAccountService(db)
	router := newAccountRouter(service)

	t.Run("returns encoded image", func(t *testing.T) {
		mock.ExpectQuery(`SELECT account_number FROM accounts WHERE id = \$1 AND user_id = \$2`).
			WithArgs(int64(1), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"account_number"}).AddRow("1700000000-AB12CD"))

		req := authenticatedRequest("GET", "/accounts/1/qr", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "1700000000-AB12CD", resp["accountNumber"])
		assert.NotEmpty(t, resp["qrImage"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hides other users' accounts", func(t *testing.T) {
		mock.ExpectQuery(`SELECT account_number FROM accounts WHERE id = \$1 AND user_id = \$2`).
			WithArgs(int64(5), int64(1)).
			WillReturnError(sql.ErrNoRows)

		req := authenticatedRequest("GET", "/accounts/5/qr", "")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
