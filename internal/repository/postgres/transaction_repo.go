package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kthezelais/budget-tracker/internal/domain"
)

const transactionColumns = `t.id, t.device_id, t.name, t.amount, t.type, t.occurred_at, d.username, t.created_at, t.updated_at`

const transactionFrom = ` FROM transactions t LEFT JOIN devices d ON d.device_id = t.device_id`

// TransactionRepository implements domain.TransactionRepository using PostgreSQL
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Create inserts a transaction and returns it with the owning device's username
func (r *TransactionRepository) Create(ctx context.Context, input domain.TransactionInput) (*domain.Transaction, error) {
	amount, err := decimalToPgNumeric(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	var id int32
	err = r.pool.QueryRow(ctx,
		`INSERT INTO transactions (device_id, name, amount, type, occurred_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		input.DeviceID, input.Name, amount, string(input.Type), input.Timestamp,
	).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id int32) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+transactionFrom+` WHERE t.id = $1`, id)
	return scanTransaction(row)
}

// List returns transactions within the optional [Start, End) range, newest first
func (r *TransactionRepository) List(ctx context.Context, filters domain.TransactionFilters) ([]*domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filters.Start != nil {
		args = append(args, *filters.Start)
		where = append(where, fmt.Sprintf("t.occurred_at >= $%d", len(args)))
	}
	if filters.End != nil {
		args = append(args, *filters.End)
		where = append(where, fmt.Sprintf("t.occurred_at < $%d", len(args)))
	}

	query := `SELECT ` + transactionColumns + transactionFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY t.occurred_at DESC, t.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// GetOldest returns the chronologically first transaction
func (r *TransactionRepository) GetOldest(ctx context.Context) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+transactionFrom+` ORDER BY t.occurred_at ASC, t.id ASC LIMIT 1`)
	return scanTransaction(row)
}

// GetNext returns the first transaction strictly after the given instant
func (r *TransactionRepository) GetNext(ctx context.Context, after time.Time) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+transactionFrom+
		` WHERE t.occurred_at > $1 ORDER BY t.occurred_at ASC, t.id ASC LIMIT 1`, after)
	return scanTransaction(row)
}

// GetPrevious returns the last transaction strictly before the given instant
func (r *TransactionRepository) GetPrevious(ctx context.Context, before time.Time) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+transactionFrom+
		` WHERE t.occurred_at < $1 ORDER BY t.occurred_at DESC, t.id DESC LIMIT 1`, before)
	return scanTransaction(row)
}

// Update replaces the editable fields of a transaction
func (r *TransactionRepository) Update(ctx context.Context, id int32, input domain.TransactionInput) (*domain.Transaction, error) {
	amount, err := decimalToPgNumeric(input.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions
		 SET device_id = $2, name = $3, amount = $4, type = $5, occurred_at = $6, updated_at = NOW()
		 WHERE id = $1`,
		id, input.DeviceID, input.Name, amount, string(input.Type), input.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes a transaction
func (r *TransactionRepository) Delete(ctx context.Context, id int32) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// CountInRange counts transactions in [start, end)
func (r *TransactionRepository) CountInRange(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE occurred_at >= $1 AND occurred_at < $2`,
		start, end,
	).Scan(&count)
	return count, err
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		t        domain.Transaction
		amount   pgtype.Numeric
		txType   string
		username pgtype.Text
	)
	err := row.Scan(&t.ID, &t.DeviceID, &t.Name, &amount, &txType, &t.Timestamp, &username, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	t.Amount = pgNumericToDecimal(amount)
	t.Type = domain.TransactionType(txType)
	t.Username = pgTextToStringPtr(username)
	return &t, nil
}
