package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/kakeibo/internal/model"
)

// MemoryTransactionRepo はプロセス内メモリに取引を保持するリポジトリ。
// ローカル開発（STORE_BACKEND=memory）とテストで使用する。
type MemoryTransactionRepo struct {
	mu     sync.RWMutex
	nextID int64
	txs    map[int64]model.Transaction
	now    func() time.Time
}

// NewMemoryTransactionRepo はMemoryTransactionRepoを生成する。
func NewMemoryTransactionRepo() *MemoryTransactionRepo {
	return &MemoryTransactionRepo{
		txs: make(map[int64]model.Transaction),
		now: time.Now,
	}
}

// List は条件に一致する取引を occurred_at 降順、id 降順で返す。
func (r *MemoryTransactionRepo) List(_ context.Context, criteria model.Criteria) ([]model.Transaction, error) {
	r.mu.RLock()
	all := make([]model.Transaction, 0, len(r.txs))
	for _, t := range r.txs {
		all = append(all, t)
	}
	r.mu.RUnlock()

	result := model.FilterTransactions(all, criteria)
	model.SortTransactions(result)
	return result, nil
}

// Create は取引を保存し、採番されたIDと作成日時を設定する。
func (r *MemoryTransactionRepo) Create(_ context.Context, tx *model.Transaction) error {
	if !tx.Kind.Valid() {
		return fmt.Errorf("failed to insert transaction: unknown kind %q", tx.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	tx.ID = r.nextID
	tx.CreatedAt = r.now().UTC()
	r.txs[tx.ID] = *tx
	return nil
}

// DeleteByID は指定IDの取引を削除する。存在しない場合は false を返す。
func (r *MemoryTransactionRepo) DeleteByID(_ context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.txs[id]; !ok {
		return false, nil
	}
	delete(r.txs, id)
	return true, nil
}

// Len は保持している取引数を返す。テスト用。
func (r *MemoryTransactionRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.txs)
}

// MemoryUserRepo はプロセス内メモリにユーザーを保持するリポジトリ。
// subject IDとemailの一意性はミューテックス下で検査し、PostgreSQLの一意制約と同じく
// 違反時は ErrDuplicate を返す。
type MemoryUserRepo struct {
	mu        sync.RWMutex
	byID      map[string]model.User
	bySubject map[string]string
	byEmail   map[string]string
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		byID:      make(map[string]model.User),
		bySubject: make(map[string]string),
		byEmail:   make(map[string]string),
	}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// FindBySubjectID はIdPのsubject IDでユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindBySubjectID(_ context.Context, subjectID string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySubject[subjectID]
	if !ok {
		return nil, nil
	}
	u := r.byID[id]
	return &u, nil
}

// Create はユーザーを作成する。一意性に違反する場合は ErrDuplicate をラップして返す。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[user.ID]; ok {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
	}
	if _, ok := r.bySubject[user.ExternalSubjectID]; ok {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
	}

	r.byID[user.ID] = *user
	r.bySubject[user.ExternalSubjectID] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

// CountBySubjectID は指定subject IDを持つユーザー数を返す。テスト用。
func (r *MemoryUserRepo) CountBySubjectID(subjectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, u := range r.byID {
		if u.ExternalSubjectID == subjectID {
			n++
		}
	}
	return n
}

// MemorySessionRepo はプロセス内メモリにセッションを保持するリポジトリ。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string]model.Session),
		now:      time.Now,
	}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return fmt.Errorf("failed to create session: %w", ErrDuplicate)
	}
	r.sessions[session.ID] = *session
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok || !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface checks
var _ TransactionRepository = (*MemoryTransactionRepo)(nil)
var _ UserRepository = (*MemoryUserRepo)(nil)
var _ SessionRepository = (*MemorySessionRepo)(nil)
