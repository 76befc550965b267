// Package auth はOAuth認証フロー、ユーザーの解決、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"github.com/google/uuid"

	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	SubjectID     string
	Email         string
	EmailVerified bool
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int           // セッション有効期間（秒）
	CallbackTimeout time.Duration // IdPとの通信を含むコールバック処理全体のタイムアウト
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// IdPとの通信に失敗した場合はAuthProviderErrorを返す。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if s.config.CallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CallbackTimeout)
		defer cancel()
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.recordLogin(metrics.LoginProviderError)
		slog.Warn("oauth code exchange failed", slog.String("error", err.Error()))
		return nil, model.NewAuthProviderError(err.Error())
	}

	user, err := s.ResolveOrCreateUser(ctx, userInfo)
	if err != nil {
		switch {
		case model.IsAuthProviderError(err):
			s.recordLogin(metrics.LoginProviderError)
		case isEmailConflict(err):
			s.recordLogin(metrics.LoginConflict)
		default:
			s.recordLogin(metrics.LoginError)
		}
		return nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		s.recordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.recordLogin(metrics.LoginSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, nil
}

// ResolveOrCreateUser はsubject IDで既存ユーザーを検索し、存在しなければ作成する。
// 同時ログインで作成が一意制約に違反した場合は1回だけ再検索し、
// それでも見つからなければ別アカウントとのメールアドレス競合としてEmailConflictErrorを返す。
func (s *Service) ResolveOrCreateUser(ctx context.Context, info *OAuthUserInfo) (*model.User, error) {
	if info == nil || strings.TrimSpace(info.SubjectID) == "" {
		return nil, model.NewAuthProviderError("subject ID is missing")
	}
	email := strings.TrimSpace(info.Email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, model.NewAuthProviderError(fmt.Sprintf("invalid email %q: %v", email, err))
	}

	existing, err := s.userRepo.FindBySubjectID(ctx, info.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	newUser := &model.User{
		ID:                uuid.New().String(),
		ExternalSubjectID: info.SubjectID,
		Email:             email,
		CreatedAt:         s.now().UTC(),
	}

	err = s.userRepo.Create(ctx, newUser)
	if err == nil {
		slog.Info("new user created",
			slog.String("user_id", newUser.ID),
			slog.String("email", newUser.Email),
		)
		return newUser, nil
	}
	if !errors.Is(err, repository.ErrDuplicate) {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 並行したログインが先に作成した可能性があるため再検索する
	if s.metrics != nil {
		s.metrics.RecordIdentityRaceRetry()
	}
	winner, err := s.userRepo.FindBySubjectID(ctx, info.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user after conflict: %w", err)
	}
	if winner == nil {
		slog.Warn("email already used by another account",
			slog.String("subject_id", info.SubjectID),
			slog.String("email", email),
		)
		return nil, model.NewEmailConflictError()
	}
	return winner, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが存在しないか期限切れの場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(result)
	}
}

func isEmailConflict(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeEmailConflict
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
