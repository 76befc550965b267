// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/kakeibo/internal/model"
)

// ErrDuplicate は一意制約違反で作成できなかったことを表す。
// 同時ログインによるユーザー作成の競合検出に使用する。
var ErrDuplicate = errors.New("duplicate key")

// TransactionRepository は取引データの永続化インターフェース。
type TransactionRepository interface {
	// List は条件に一致する取引を occurred_at 降順、id 降順で返す。
	List(ctx context.Context, criteria model.Criteria) ([]model.Transaction, error)

	// Create は取引を作成し、採番されたIDと作成日時を設定して返す。
	Create(ctx context.Context, tx *model.Transaction) error

	// DeleteByID は指定IDの取引を削除する。
	// 削除対象が存在しない場合は false を返す。
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindBySubjectID はIdPのsubject IDでユーザーを検索する。見つからない場合はnilを返す。
	FindBySubjectID(ctx context.Context, subjectID string) (*model.User, error)

	// Create はユーザーを作成する。
	// subject IDまたはemailが既に存在する場合は ErrDuplicate をラップしたエラーを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
