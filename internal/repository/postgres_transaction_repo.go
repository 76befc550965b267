package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/kakeibo/internal/model"
)

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
type PostgresTransactionRepo struct {
	db *sql.DB
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db *sql.DB) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

// buildListQuery はCriteriaからWHERE句付きのSELECT文と引数を組み立てる。
// 指定された条件はAND結合する。年月はUTCの半開区間 [月初, 翌月初) で比較する。
func buildListQuery(criteria model.Criteria) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if criteria.Kind != nil {
		args = append(args, string(*criteria.Kind))
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if criteria.Category != nil {
		args = append(args, *criteria.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if criteria.Period != nil {
		start, end := criteria.Period.Bounds()
		args = append(args, start)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
		args = append(args, end)
		conds = append(conds, fmt.Sprintf("occurred_at < $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT id, amount, kind, category, description, occurred_at, created_at FROM transactions`)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at DESC, id DESC")

	return b.String(), args
}

// List は条件に一致する取引を occurred_at 降順、id 降順で返す。
func (r *PostgresTransactionRepo) List(ctx context.Context, criteria model.Criteria) ([]model.Transaction, error) {
	query, args := buildListQuery(criteria)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]model.Transaction, 0)
	for rows.Next() {
		var (
			t    model.Transaction
			kind string
		)
		if err := rows.Scan(&t.ID, &t.Amount, &kind, &t.Category, &t.Description, &t.OccurredAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Kind = model.Kind(kind)
		t.OccurredAt = t.OccurredAt.UTC()
		t.CreatedAt = t.CreatedAt.UTC()
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return txs, nil
}

// Create は取引を作成し、採番されたIDと作成日時を設定する。
func (r *PostgresTransactionRepo) Create(ctx context.Context, tx *model.Transaction) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO transactions (amount, kind, category, description, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		tx.Amount, string(tx.Kind), tx.Category, tx.Description, tx.OccurredAt,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return nil
}

// DeleteByID は指定IDの取引を削除する。
// 削除対象が存在しない場合は false を返す。
func (r *PostgresTransactionRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ TransactionRepository = (*PostgresTransactionRepo)(nil)
