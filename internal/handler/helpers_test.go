package handler

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kakeibo/internal/model"
	"github.com/hitoshi/kakeibo/web"
)

// --- モック定義 ---

type mockLedgerService struct {
	listFn   func(ctx context.Context, in model.CriteriaInput) (*model.Listing, error)
	addFn    func(ctx context.Context, in model.NewTransactionInput) (*model.Transaction, error)
	deleteFn func(ctx context.Context, id int64) error
}

func (m *mockLedgerService) ListAndSummarize(ctx context.Context, in model.CriteriaInput) (*model.Listing, error) {
	if m.listFn != nil {
		return m.listFn(ctx, in)
	}
	return &model.Listing{Summary: model.Summarize(nil)}, nil
}

func (m *mockLedgerService) AddTransaction(ctx context.Context, in model.NewTransactionInput) (*model.Transaction, error) {
	if m.addFn != nil {
		return m.addFn(ctx, in)
	}
	return &model.Transaction{}, nil
}

func (m *mockLedgerService) DeleteTransaction(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

// plainSigner は "s:" 接頭辞を署名とみなすテスト用の署名器。
type plainSigner struct{}

func (plainSigner) Sign(sessionID string) string { return "s:" + sessionID }

func (plainSigner) Verify(value string) (string, bool) {
	if !strings.HasPrefix(value, "s:") || len(value) == 2 {
		return "", false
	}
	return strings.TrimPrefix(value, "s:"), true
}

// --- ヘルパー ---

func testTemplates(t *testing.T) *template.Template {
	t.Helper()
	tmpl, err := web.ParseTemplates()
	if err != nil {
		t.Fatalf("failed to parse templates: %v", err)
	}
	return tmpl
}

// withChiURLParam はchiのURLパラメータをリクエストに設定する。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}
