// Package ledger は家計簿の取引登録・削除・一覧集計のドメインロジックを提供する。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/internal/repository"
	"github.com/hitoshi/kakeibo/internal/security"
)

// maxAmount はNUMERIC(14,2)に収まる金額の上限（この値を含まない）。
var maxAmount = decimal.New(1, 12)

// Service は取引台帳のサービス層。
type Service struct {
	repo      repository.TransactionRepository
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewService(
	repo repository.TransactionRepository,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListAndSummarize は条件に一致する取引を発生日時の降順で返し、同じ集合の集計を添える。
func (s *Service) ListAndSummarize(ctx context.Context, in model.CriteriaInput) (*model.Listing, error) {
	// 登録時と同じ正規化をしないと、保存済みのカテゴリと一致しない
	in.Category = s.sanitizer.SanitizeText(in.Category)

	criteria, err := model.ParseCriteria(in)
	if err != nil {
		s.recordValidationFailure(err)
		return nil, err
	}

	start := time.Now()
	txs, err := s.repo.List(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("取引一覧の取得に失敗しました: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordListLatency(time.Since(start))
	}

	return &model.Listing{
		Transactions: txs,
		Summary:      model.Summarize(txs),
		Criteria:     criteria,
	}, nil
}

// AddTransaction は入力を検証して取引を登録する。
// 検証エラーの場合は何も保存しない。
func (s *Service) AddTransaction(ctx context.Context, in model.NewTransactionInput) (*model.Transaction, error) {
	tx, err := s.validate(in)
	if err != nil {
		s.recordValidationFailure(err)
		return nil, err
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("取引の登録に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTransactionCreated(string(tx.Kind))
	}
	slog.Info("取引を登録しました",
		slog.Int64("transaction_id", tx.ID),
		slog.String("kind", string(tx.Kind)),
		slog.String("category", tx.Category),
		slog.String("amount", tx.Amount.StringFixed(2)),
	)

	return tx, nil
}

// DeleteTransaction は指定IDの取引を削除する。存在しない場合はNotFoundエラーを返す。
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("取引の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewTransactionNotFoundError(strconv.FormatInt(id, 10))
	}

	if s.metrics != nil {
		s.metrics.RecordTransactionDeleted()
	}
	slog.Info("取引を削除しました", slog.Int64("transaction_id", id))
	return nil
}

// validate は生の入力値を検証し、保存前の取引を組み立てる。
func (s *Service) validate(in model.NewTransactionInput) (*model.Transaction, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}

	kind, err := model.ParseKind(in.Kind)
	if err != nil {
		return nil, err
	}

	category := s.sanitizer.SanitizeText(in.Category)
	if category == "" {
		return nil, model.NewInvalidCategoryError("カテゴリが空です")
	}
	if utf8.RuneCountInString(category) > model.MaxCategoryLength {
		return nil, model.NewInvalidCategoryError(fmt.Sprintf("%d文字を超えています", model.MaxCategoryLength))
	}

	description := s.sanitizer.SanitizeText(in.Description)
	if utf8.RuneCountInString(description) > model.MaxDescriptionLength {
		return nil, model.NewInvalidDescriptionError()
	}

	occurredAt, err := s.parseOccurredOn(in.OccurredOn)
	if err != nil {
		return nil, err
	}

	return &model.Transaction{
		Amount:      amount,
		Kind:        kind,
		Category:    category,
		Description: description,
		OccurredAt:  occurredAt,
	}, nil
}

// parseOccurredOn は YYYY-MM-DD をUTCの0時として解釈する。空の場合は現在時刻を返す。
func (s *Service) parseOccurredOn(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return s.now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return time.Time{}, model.NewInvalidDateError(raw)
	}
	return t.UTC(), nil
}

func (s *Service) recordValidationFailure(err error) {
	var apiErr *model.APIError
	if s.metrics != nil && errors.As(err, &apiErr) {
		s.metrics.RecordValidationFailure(apiErr.Code)
	}
}

// decimalCommaPattern は小数点としてのカンマ（"12,5" や "12,34"）に一致する。
// "1,000" のような桁区切りは小数点とみなさない。
var decimalCommaPattern = regexp.MustCompile(`^\d+,\d{1,2}$`)

// ParseAmount は金額文字列を解析する。
// 小数点には小数部1〜2桁のカンマも使用できる。それ以外のカンマ、0以下、
// 小数点以下3桁以上、上限以上の値は検証エラーとする。
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if decimalCommaPattern.MatchString(s) {
		s = strings.Replace(s, ",", ".", 1)
	}
	if s == "" || strings.ContainsAny(s, "eE,") {
		return decimal.Zero, model.NewInvalidAmountError(raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, model.NewInvalidAmountError(raw)
	}
	if !d.IsPositive() || !d.Equal(d.Round(2)) || d.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, model.NewInvalidAmountError(raw)
	}

	return d.Round(2), nil
}
