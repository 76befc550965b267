package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Period は暦月（UTC）を表す。
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod は YYYY-MM 形式の文字列を解析する。
func ParsePeriod(raw string) (Period, error) {
	s := strings.TrimSpace(raw)
	t, err := time.Parse("2006-01", s)
	if err != nil || len(s) != len("2006-01") {
		return Period{}, NewInvalidPeriodError(raw)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// Bounds は期間の開始時刻（含む）と終了時刻（含まない）をUTCで返す。
func (p Period) Bounds() (time.Time, time.Time) {
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Contains は時刻が期間内に含まれるかを判定する。
func (p Period) Contains(t time.Time) bool {
	start, end := p.Bounds()
	u := t.UTC()
	return !u.Before(start) && u.Before(end)
}

// String は YYYY-MM 形式の文字列を返す。
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// CriteriaInput は一覧フィルタの生の入力値。空文字列は「指定なし」を表す。
type CriteriaInput struct {
	Kind     string
	Category string
	Period   string
}

// Criteria は検証済みの一覧フィルタ。
// nilのフィールドは条件なしを表し、指定された条件はすべてAND結合される。
type Criteria struct {
	Kind     *Kind
	Category *string
	Period   *Period
}

// ParseCriteria は生の入力値を検証し、Criteriaに変換する。
func ParseCriteria(in CriteriaInput) (Criteria, error) {
	var c Criteria

	if strings.TrimSpace(in.Kind) != "" {
		k, err := ParseKind(in.Kind)
		if err != nil {
			return Criteria{}, err
		}
		c.Kind = &k
	}

	if category := strings.Join(strings.Fields(in.Category), " "); category != "" {
		c.Category = &category
	}

	if strings.TrimSpace(in.Period) != "" {
		p, err := ParsePeriod(in.Period)
		if err != nil {
			return Criteria{}, err
		}
		c.Period = &p
	}

	return c, nil
}

// IsEmpty は条件が1つも指定されていないかを返す。
func (c Criteria) IsEmpty() bool {
	return c.Kind == nil && c.Category == nil && c.Period == nil
}

// Matches は取引が全ての条件を満たすかを判定する。
func (c Criteria) Matches(t Transaction) bool {
	if c.Kind != nil && t.Kind != *c.Kind {
		return false
	}
	if c.Category != nil && t.Category != *c.Category {
		return false
	}
	if c.Period != nil && !c.Period.Contains(t.OccurredAt) {
		return false
	}
	return true
}

// Input は画面やリダイレクト先で再利用するため、Criteriaを生の入力値形式に戻す。
func (c Criteria) Input() CriteriaInput {
	var in CriteriaInput
	if c.Kind != nil {
		in.Kind = string(*c.Kind)
	}
	if c.Category != nil {
		in.Category = *c.Category
	}
	if c.Period != nil {
		in.Period = c.Period.String()
	}
	return in
}

// SortTransactions は発生日時の降順に並べ替える。同時刻の場合はIDの降順。
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].OccurredAt.Equal(txs[j].OccurredAt) {
			return txs[i].OccurredAt.After(txs[j].OccurredAt)
		}
		return txs[i].ID > txs[j].ID
	})
}

// FilterTransactions は条件に一致する取引のみを新しいスライスで返す。
func FilterTransactions(txs []Transaction, c Criteria) []Transaction {
	result := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if c.Matches(t) {
			result = append(result, t)
		}
	}
	return result
}
