package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/kakeibo/internal/auth"
	"github.com/hitoshi/kakeibo/internal/ledger"
	"github.com/hitoshi/kakeibo/internal/metrics"
	"github.com/hitoshi/kakeibo/internal/middleware"
	"github.com/hitoshi/kakeibo/internal/repository"
	"github.com/hitoshi/kakeibo/internal/security"
)

// --- 統合テスト用のIdPスタブ ---

type stubOAuthProvider struct{}

func (stubOAuthProvider) GetLoginURL(state string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (stubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*auth.OAuthUserInfo, error) {
	if code != "good-code" {
		return nil, fmt.Errorf("token endpoint returned 400: invalid_grant")
	}
	return &auth.OAuthUserInfo{SubjectID: "sub-1", Email: "owner@example.com", EmailVerified: true}, nil
}

// browser はCookieを保持してリクエストを送るテスト用クライアント。
type browser struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	return &browser{t: t, handler: h, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	b.handler.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return w
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (b *browser) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	if c, ok := b.cookies["csrf_token"]; ok {
		form.Set("csrf_token", c.Value)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) api(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c, ok := b.cookies["csrf_token"]; ok {
		req.Header.Set("X-CSRF-Token", c.Value)
	}
	return b.do(req)
}

func (b *browser) login() {
	b.t.Helper()
	w := b.get("/login")
	if w.Code != http.StatusTemporaryRedirect {
		b.t.Fatalf("GET /login status = %d", w.Code)
	}
	loc, _ := url.Parse(w.Header().Get("Location"))
	state := loc.Query().Get("state")

	w = b.get("/auth/callback?code=good-code&state=" + state)
	if w.Code != http.StatusTemporaryRedirect {
		b.t.Fatalf("GET /auth/callback status = %d, body = %s", w.Code, w.Body.String())
	}
	if _, ok := b.cookies[middleware.SessionCookieName]; !ok {
		b.t.Fatal("session cookie was not set")
	}
}

func createIntegrationRouter(t *testing.T, requireLogin bool) (http.Handler, *repository.MemoryUserRepo) {
	t.Helper()

	txRepo := repository.NewMemoryTransactionRepo()
	userRepo := repository.NewMemoryUserRepo()
	sessionRepo := repository.NewMemorySessionRepo()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	signer := auth.NewSessionSigner("integration-secret")

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	router := NewRouter(&RouterDeps{
		Sessions:       sessionRepo,
		Users:          userRepo,
		Signer:         signer,
		RequireLogin:   requireLogin,
		RateLimiter:    rl,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		Templates:      testTemplates(t),
		AuthService: auth.NewService(stubOAuthProvider{}, userRepo, sessionRepo, collector, auth.ServiceConfig{
			SessionMaxAge:   3600,
			CallbackTimeout: 5 * time.Second,
		}),
		AuthConfig: AuthHandlerConfig{
			BaseURL:       "/",
			SessionMaxAge: 3600,
		},
		LedgerService: ledger.NewService(txRepo, security.NewTextSanitizer(), collector),
	})
	return router, userRepo
}

func TestIntegration_LoginAddListDeleteLogout(t *testing.T) {
	router, userRepo := createIntegrationRouter(t, true)
	b := newBrowser(t, router)

	// 未ログインの画面アクセスはログインへ誘導される
	if w := b.get("/"); w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Fatalf("GET / before login: status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
	if w := b.get("/api/transactions"); w.Code != http.StatusUnauthorized {
		t.Fatalf("GET /api/transactions before login: status = %d", w.Code)
	}

	b.login()
	if n := userRepo.CountBySubjectID("sub-1"); n != 1 {
		t.Fatalf("users with subject = %d, want 1", n)
	}

	// 一覧画面でCSRFトークンCookieを受け取る
	if w := b.get("/?month=2024-03"); w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}

	// フォームから登録すると絞り込みを保ったまま一覧へ戻る
	w := b.postForm("/transactions", url.Values{
		"amount": {"100"}, "type": {"income"}, "category": {"給与"}, "date": {"2024-03-25"},
		"return_to": {"/?month=2024-03"},
	})
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/?month=2024-03" {
		t.Fatalf("POST /transactions: status = %d, Location = %q, body = %s", w.Code, w.Header().Get("Location"), w.Body.String())
	}

	// JSON APIからも登録できる
	w = b.api(http.MethodPost, "/api/transactions", `{"amount": "30.5", "type": "expense", "category": "食費", "date": "2024-03-26"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /api/transactions: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = b.get("/api/transactions?month=2024-03")
	var list listTransactionsResponse
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(list.Transactions) != 2 || list.Transactions[0].Category != "食費" {
		t.Fatalf("transactions = %+v", list.Transactions)
	}
	if list.Summary.TotalIncome != "100.00" || list.Summary.TotalExpense != "30.50" || list.Summary.Balance != "69.50" {
		t.Errorf("summary = %+v", list.Summary)
	}

	// 画面にも集計が表示される
	page := b.get("/?month=2024-03").Body.String()
	if !strings.Contains(page, "69.50") || !strings.Contains(page, "owner@example.com") {
		t.Error("一覧画面に集計またはユーザーが表示されていません")
	}

	// 削除と存在しないIDの削除
	id := list.Transactions[0].ID
	if w := b.api(http.MethodDelete, fmt.Sprintf("/api/transactions/%d", id), ""); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if w := b.postForm(fmt.Sprintf("/transactions/%d/delete", id), url.Values{}); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}

	// ログアウト後は再びログインが必要になる
	if w := b.postForm("/logout", url.Values{}); w.Code != http.StatusSeeOther {
		t.Fatalf("POST /logout status = %d", w.Code)
	}
	if w := b.get("/"); w.Code != http.StatusSeeOther {
		t.Errorf("GET / after logout: status = %d, want 303", w.Code)
	}
}

func TestIntegration_FormPostWithoutCSRF_IsRejected(t *testing.T) {
	router, _ := createIntegrationRouter(t, false)
	b := newBrowser(t, router)

	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("amount=1&type=income&category=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := b.do(req); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestIntegration_LoginOptional_AllowsAnonymousLedger(t *testing.T) {
	router, _ := createIntegrationRouter(t, false)
	b := newBrowser(t, router)

	if w := b.get("/"); w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	if w := b.postForm("/transactions", url.Values{"amount": {"5"}, "type": {"expense"}, "category": {"雑費"}}); w.Code != http.StatusSeeOther {
		t.Fatalf("POST /transactions status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := b.get("/?type=bogus"); w.Code != http.StatusBadRequest {
		t.Errorf("invalid filter status = %d, want 400", w.Code)
	}
	if w := b.postForm("/transactions", url.Values{"amount": {"abc"}, "type": {"expense"}, "category": {"雑費"}}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid amount status = %d, want 400", w.Code)
	}
}

func TestIntegration_CallbackProviderFailure(t *testing.T) {
	router, userRepo := createIntegrationRouter(t, true)
	b := newBrowser(t, router)

	w := b.get("/login")
	loc, _ := url.Parse(w.Header().Get("Location"))

	w = b.get("/auth/callback?code=bad-code&state=" + loc.Query().Get("state"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_grant") {
		t.Error("IdPの失敗内容が表示されていません")
	}
	if _, ok := b.cookies[middleware.SessionCookieName]; ok {
		t.Error("失敗時にセッションCookieが設定されました")
	}
	if n := userRepo.CountBySubjectID("sub-1"); n != 0 {
		t.Errorf("users = %d, want 0", n)
	}
}

func TestIntegration_HealthAndMetrics(t *testing.T) {
	router, _ := createIntegrationRouter(t, true)
	b := newBrowser(t, router)

	if w := b.get("/health"); w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d", w.Code)
	}
	b.get("/")

	w := b.get("/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "kakeibo_http_status_total") {
		t.Errorf("metrics body does not contain status counter")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}
