package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coastbank/backend/internal/models"
)

// LedgerService owns the transaction engine: it is the only writer of account
// balances and ledger entries. Every posting runs as a single database
// transaction that locks the account row, so concurrent postings against the
// same account serialize while different accounts proceed independently.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// TransactionPage is one page of an account's ledger history, newest first.
type TransactionPage struct {
	Transactions []models.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
}

// Apply posts a credit or debit against an account and returns the committed
// ledger entry. The read of the current balance, the balance update and the
// ledger insert commit or roll back together; on any validation failure the
// account is left untouched.
func (s *LedgerService) Apply(ctx context.Context, accountID int64, amount decimal.Decimal, description, txType, ipAddress string) (*models.Transaction, error) {
	var entry *models.Transaction

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		account, err := s.lockAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		balance := account.Balance()

		var newBalance decimal.Decimal
		switch txType {
		case models.TypeCredit:
			newBalance = balance.Add(amount)
		case models.TypeDebit:
			if balance.LessThan(amount) {
				return ErrInsufficientFunds
			}
			newBalance = balance.Sub(amount)
		default:
			return ErrInvalidTransactionType
		}

		if err := s.updateBalance(ctx, tx, accountID, newBalance); err != nil {
			return err
		}

		entry, err = s.insertEntry(ctx, tx, accountID, amount, description, txType, ipAddress)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// ListTransactions returns one page of an account's history ordered by
// timestamp descending, ties broken by insertion order. The description
// filter, when set, is an exact match.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID int64, description string, page, pageSize int) (*TransactionPage, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", accountID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrAccountNotFound
	}

	conditions := []string{"account_id = $1"}
	args := []any{accountID}

	if description != "" {
		conditions = append(conditions, fmt.Sprintf("description = $%d", len(args)+1))
		args = append(args, description)
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions WHERE "+where, args...).Scan(&total)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
        SELECT id, account_id, reference, amount, description, type, ip_address, timestamp
        FROM transactions
        WHERE %s
        ORDER BY timestamp DESC, id DESC
        LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Reference, &t.Amount, &t.Description, &t.Type, &t.IPAddress, &t.Timestamp); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &TransactionPage{
		Transactions: transactions,
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	}, nil
}

// FetchByReference returns a single ledger entry by its reference id.
func (s *LedgerService) FetchByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.db.QueryRowContext(ctx, `
        SELECT id, account_id, reference, amount, description, type, ip_address, timestamp
        FROM transactions
        WHERE reference = $1`, reference).
		Scan(&t.ID, &t.AccountID, &t.Reference, &t.Amount, &t.Description, &t.Type, &t.IPAddress, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// withTx runs fn inside a database transaction, committing only when fn
// returns nil. The deferred rollback is a no-op after a successful commit.
func (s *LedgerService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID int64) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
        SELECT id, user_id, account_name, account_number, amount
        FROM accounts
        WHERE id = $1
        FOR UPDATE`, accountID).
		Scan(&account.ID, &account.UserID, &account.AccountName, &account.AccountNumber, &account.Amount)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	return &account, nil
}

func (s *LedgerService) updateBalance(ctx context.Context, tx *sql.Tx, accountID int64, newBalance decimal.Decimal) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE accounts SET amount = $1 WHERE id = $2",
		newBalance, accountID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("balance update touched no rows for account %d", accountID)
	}

	return nil
}

func (s *LedgerService) insertEntry(ctx context.Context, tx *sql.Tx, accountID int64, amount decimal.Decimal, description, txType, ipAddress string) (*models.Transaction, error) {
	entry := &models.Transaction{
		AccountID:   accountID,
		Reference:   uuid.NewString(),
		Amount:      amount,
		Description: description,
		Type:        txType,
		IPAddress:   ipAddress,
	}

	err := tx.QueryRowContext(ctx, `
        INSERT INTO transactions (account_id, reference, amount, description, type, ip_address, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        RETURNING id, timestamp`,
		accountID, entry.Reference, amount, description, txType, ipAddress).
		Scan(&entry.ID, &entry.Timestamp)
	if err != nil {
		return nil, err
	}

	return entry, nil
}
