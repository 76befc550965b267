package handler

import (
	"context"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kakeibo/internal/model"
)

// LedgerServiceInterface は家計簿ハンドラーが必要とするサービスインターフェース。
type LedgerServiceInterface interface {
	// ListAndSummarize は条件に一致する取引一覧と集計を返す。
	ListAndSummarize(ctx context.Context, in model.CriteriaInput) (*model.Listing, error)
	// AddTransaction は入力を検証して取引を登録する。
	AddTransaction(ctx context.Context, in model.NewTransactionInput) (*model.Transaction, error)
	// DeleteTransaction は指定IDの取引を削除する。
	DeleteTransaction(ctx context.Context, id int64) error
}

// indexPage は一覧画面のテンプレートデータ。
type indexPage struct {
	pageData
	Filter       model.CriteriaInput
	ReturnTo     string
	Kinds        []model.Kind
	Transactions []model.Transaction
	Summary      model.Summary
}

// PageHandler は一覧画面と登録・削除フォームのHTTPハンドラー。
type PageHandler struct {
	service LedgerServiceInterface
	*renderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(service LedgerServiceInterface, templates *template.Template) *PageHandler {
	return &PageHandler{service: service, renderer: &renderer{templates: templates}}
}

// Index は絞り込み済みの取引一覧と集計を表示する。
// GET /?type=&category=&month=
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	in := criteriaFromQuery(r.URL.Query())

	listing, err := h.service.ListAndSummarize(r.Context(), in)
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	filter := listing.Criteria.Input()
	h.render(w, http.StatusOK, "index.html", indexPage{
		pageData:     newPageData(r, "取引一覧"),
		Filter:       filter,
		ReturnTo:     listPath(filter),
		Kinds:        []model.Kind{model.KindExpense, model.KindIncome},
		Transactions: listing.Transactions,
		Summary:      listing.Summary,
	})
}

// Create はフォームから取引を登録し、一覧画面へリダイレクトする。
// POST /transactions
func (h *PageHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, model.NewInvalidRequestError("フォームを解析できません"))
		return
	}

	_, err := h.service.AddTransaction(r.Context(), model.NewTransactionInput{
		Amount:      r.PostForm.Get("amount"),
		Kind:        r.PostForm.Get("type"),
		Category:    r.PostForm.Get("category"),
		Description: r.PostForm.Get("description"),
		OccurredOn:  r.PostForm.Get("date"),
	})
	if err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, safeReturnTo(r.PostForm.Get("return_to")), http.StatusSeeOther)
}

// Delete は取引を削除し、一覧画面へリダイレクトする。
// POST /transactions/{id}/delete
func (h *PageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, ok := parseTransactionID(rawID)
	if !ok {
		h.renderError(w, r, http.StatusNotFound, model.NewTransactionNotFoundError(rawID))
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		h.renderServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, safeReturnTo(r.PostFormValue("return_to")), http.StatusSeeOther)
}

// criteriaFromQuery はクエリパラメータから絞り込み条件を取り出す。
func criteriaFromQuery(q url.Values) model.CriteriaInput {
	return model.CriteriaInput{
		Kind:     q.Get("type"),
		Category: q.Get("category"),
		Period:   q.Get("month"),
	}
}

// listPath は絞り込み条件を保持した一覧画面のパスを返す。
func listPath(in model.CriteriaInput) string {
	q := url.Values{}
	if in.Kind != "" {
		q.Set("type", in.Kind)
	}
	if in.Category != "" {
		q.Set("category", in.Category)
	}
	if in.Period != "" {
		q.Set("month", in.Period)
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

// safeReturnTo はリダイレクト先を一覧画面の相対パスに限定する。
// 外部URLやスキーム相対URLは "/" に置き換える。
func safeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsRune(raw, '\\') {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path != "/" {
		return "/"
	}
	return listPath(criteriaFromQuery(u.Query()))
}
