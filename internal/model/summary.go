package model

import "github.com/shopspring/decimal"

// Summary は取引一覧の集計結果。
// 集計はフィルタ適用後の取引集合に対して行う。
type Summary struct {
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Balance      decimal.Decimal
	Count        int
}

// Summarize は取引の収入合計・支出合計・残高を計算する。
// 空の場合は全てゼロを返す。
func Summarize(txs []Transaction) Summary {
	s := Summary{
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
	}
	for _, t := range txs {
		switch t.Kind {
		case KindIncome:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case KindExpense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	s.Count = len(txs)
	return s
}

// Listing は一覧取得の結果。並べ替え済みの取引と、その集合に対する集計を持つ。
type Listing struct {
	Transactions []Transaction
	Summary      Summary
	Criteria     Criteria
}
