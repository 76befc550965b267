// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/kakeibo/internal/model"
)

// SessionCookieName はセッションCookieの名前。値は署名付きセッションID。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey = contextKey("user_id")
	userContextKey   = contextKey("user")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// CookieVerifier は署名付きCookie値を検証し、セッションIDを取り出す。
type CookieVerifier interface {
	Verify(value string) (string, bool)
}

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	Sessions SessionFinder
	Users    UserFinder
	Verifier CookieVerifier

	// RequireLogin がtrueの場合、未ログインのリクエストを拒否する。
	// 画面遷移（GET/HEAD かつ /api/ 以外）はLoginPathへリダイレクトし、それ以外は401を返す。
	RequireLogin bool
	LoginPath    string
}

// NewSessionMiddleware はCookieからセッションを読み取り、
// 有効な場合はユーザーをリクエストコンテキストに注入するミドルウェアを返す。
func NewSessionMiddleware(config SessionConfig) func(next http.Handler) http.Handler {
	loginPath := config.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := resolveUser(r, config)
			if user != nil {
				ctx := ContextWithUser(r.Context(), user)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if !config.RequireLogin {
				next.ServeHTTP(w, r)
				return
			}

			if isPageRequest(r) {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}
			WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewUnauthorizedError())
		})
	}
}

// resolveUser はCookieの署名検証、セッション検索、ユーザー検索を順に行う。
// いずれかに失敗した場合はnilを返す。
func resolveUser(r *http.Request, config SessionConfig) *model.User {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	sessionID, ok := config.Verifier.Verify(cookie.Value)
	if !ok {
		slog.Warn("session cookie signature mismatch", slog.String("path", r.URL.Path))
		return nil
	}

	session, err := config.Sessions.FindByID(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return nil
	}
	if session == nil {
		return nil
	}

	user, err := config.Users.FindByID(r.Context(), session.UserID)
	if err != nil {
		slog.Error("failed to find session user", slog.String("error", err.Error()))
		return nil
	}
	return user
}

// isPageRequest はブラウザの画面遷移とみなすリクエストかを判定する。
func isPageRequest(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return !strings.HasPrefix(r.URL.Path, "/api/")
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアでユーザーが解決されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// UserFromContext はリクエストコンテキストからログインユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ContextWithUser はコンテキストにユーザーとユーザーIDを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, userIDContextKey, user.ID)
}
