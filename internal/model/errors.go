// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, ledger, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryLedger     = "ledger"
	CategoryAuth       = "auth"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeInvalidKind         = "INVALID_KIND"
	ErrCodeInvalidCategory     = "INVALID_CATEGORY"
	ErrCodeInvalidDescription  = "INVALID_DESCRIPTION"
	ErrCodeInvalidPeriod       = "INVALID_PERIOD"
	ErrCodeInvalidDate         = "INVALID_DATE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeAuthProvider        = "AUTH_PROVIDER_ERROR"
	ErrCodeEmailConflict       = "EMAIL_CONFLICT"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeCSRFInvalid         = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewInvalidAmountError は金額が不正な場合のエラーを生成する。
func NewInvalidAmountError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効な金額です: %q", raw),
		Category: CategoryValidation,
		Action:   "0より大きい数値を小数点以下2桁までで入力してください。",
	}
}

// NewInvalidKindError は収支区分が不正な場合のエラーを生成する。
func NewInvalidKindError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("無効な収支区分です: %q", raw),
		Category: CategoryValidation,
		Action:   "収支区分には income または expense を指定してください。",
	}
}

// NewInvalidCategoryError はカテゴリが不正な場合のエラーを生成する。
func NewInvalidCategoryError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", reason),
		Category: CategoryValidation,
		Action:   fmt.Sprintf("カテゴリは1〜%d文字で入力してください。", MaxCategoryLength),
	}
}

// NewInvalidDescriptionError は説明文が長すぎる場合のエラーを生成する。
func NewInvalidDescriptionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDescription,
		Message:  "説明が長すぎます。",
		Category: CategoryValidation,
		Action:   fmt.Sprintf("説明は%d文字以内で入力してください。", MaxDescriptionLength),
	}
}

// NewInvalidPeriodError は年月指定が不正な場合のエラーを生成する。
func NewInvalidPeriodError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPeriod,
		Message:  fmt.Sprintf("無効な年月です: %q", raw),
		Category: CategoryValidation,
		Action:   "年月は YYYY-MM 形式（例: 2024-03）で指定してください。",
	}
}

// NewInvalidDateError は日付指定が不正な場合のエラーを生成する。
func NewInvalidDateError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %q", raw),
		Category: CategoryValidation,
		Action:   "日付は YYYY-MM-DD 形式で指定するか、空欄にしてください。",
	}
}

// NewTransactionNotFoundError は取引が見つからない場合のエラーを生成する。
func NewTransactionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTransactionNotFound,
		Message:  fmt.Sprintf("指定された取引が見つかりません: %s", id),
		Category: CategoryLedger,
		Action:   "一覧を再読み込みして取引IDを確認してください。",
	}
}

// NewAuthProviderError はIdPとの通信に失敗した場合のエラーを生成する。
// detailにはプロバイダーから返された失敗内容を含める。
func NewAuthProviderError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthProvider,
		Message:  fmt.Sprintf("認証プロバイダーとの通信に失敗しました: %s", detail),
		Category: CategoryAuth,
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewEmailConflictError は別のアカウントが同じメールアドレスを使用している場合のエラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "このメールアドレスは別のアカウントで登録済みです。",
		Category: CategoryAuth,
		Action:   "管理者に連絡してください。",
	}
}

// IsValidationError はエラーが入力検証エラーかどうかを判定する。
func IsValidationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == CategoryValidation
}

// IsNotFoundError はエラーが取引未検出エラーかどうかを判定する。
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeTransactionNotFound
}

// IsAuthProviderError はエラーがIdP通信エラーかどうかを判定する。
func IsAuthProviderError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeAuthProvider
}

// NewInvalidRequestError はリクエスト本文やパラメータの形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", detail),
		Category: CategoryValidation,
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUnauthorizedError は未ログインの場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: CategoryAuth,
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンが無効です。",
		Category: CategoryAuth,
		Action:   "画面を再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: CategorySystem,
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}
