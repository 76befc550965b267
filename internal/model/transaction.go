// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MaxCategoryLength はカテゴリの最大文字数。
	MaxCategoryLength = 50
	// MaxDescriptionLength は説明の最大文字数。
	MaxDescriptionLength = 200
)

// Kind は取引の収支区分を表す。集計時の符号を決定する。
type Kind string

const (
	// KindIncome は収入を表す。
	KindIncome Kind = "income"
	// KindExpense は支出を表す。
	KindExpense Kind = "expense"
)

// ParseKind は文字列から収支区分を解析する。大文字小文字は区別しない。
// income/expense 以外の値は検証エラーを返す。
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindIncome:
		return KindIncome, nil
	case KindExpense:
		return KindExpense, nil
	default:
		return "", NewInvalidKindError(raw)
	}
}

// Valid は収支区分が既知の値かどうかを返す。
func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

// Label は画面表示用のラベルを返す。
func (k Kind) Label() string {
	switch k {
	case KindIncome:
		return "Income"
	case KindExpense:
		return "Expense"
	default:
		return string(k)
	}
}

// Transaction は1件の収支記録を表す。
// Amountは常に正の絶対値で保持し、符号はKindから導出する。
type Transaction struct {
	ID          int64
	Amount      decimal.Decimal
	Kind        Kind
	Category    string
	Description string
	OccurredAt  time.Time
	CreatedAt   time.Time
}

// SignedAmount はKindに応じた符号付きの金額を返す。
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// NewTransactionInput は取引登録フォームの生の入力値。
// 値はServiceで検証されるまで信頼しない。
type NewTransactionInput struct {
	Amount      string
	Kind        string
	Category    string
	Description string
	OccurredOn  string // YYYY-MM-DD、空の場合は登録時刻
}
