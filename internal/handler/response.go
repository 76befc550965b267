// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hitoshi/kakeibo/internal/middleware"
	"github.com/hitoshi/kakeibo/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// toAPIError はサービス層のエラーをAPIErrorとHTTPステータスに変換する。
// APIError以外のエラーは内部エラーとして扱い、詳細はログにのみ記録する。
func toAPIError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	return http.StatusInternalServerError, model.NewInternalError()
}

// handleServiceError はサービス層から返されたエラーをJSONエラーレスポンスとして書き込む。
func handleServiceError(w http.ResponseWriter, err error) {
	status, apiErr := toAPIError(err)
	writeAPIErrorResponse(w, status, apiErr)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTransactionNotFound:
		return http.StatusNotFound
	case model.ErrCodeEmailConflict:
		return http.StatusConflict
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeAuthProvider, model.ErrCodeInternal:
		return http.StatusInternalServerError
	}
	if apiErr.Category == model.CategoryValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// parseTransactionID はパスパラメータの取引IDを解析する。
// 数字のみからなる正のint64以外は存在しないIDとして false を返す。
func parseTransactionID(raw string) (int64, bool) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pageData は全画面に共通するテンプレートデータ。
type pageData struct {
	Title     string
	User      *model.User
	CSRFToken string
}

// errorPage はエラー画面のテンプレートデータ。
type errorPage struct {
	pageData
	Message string
	Action  string
}

// renderer は埋め込みテンプレートでHTMLを描画する。
type renderer struct {
	templates *template.Template
}

func newPageData(r *http.Request, title string) pageData {
	user, _ := middleware.UserFromContext(r.Context())
	return pageData{
		Title:     title,
		User:      user,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
}

// render はテンプレートをバッファに描画してからレスポンスに書き込む。
// 描画に失敗した場合は途中までのHTMLを返さない。
func (rd *renderer) render(w http.ResponseWriter, statusCode int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := rd.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write(buf.Bytes())
}

// renderError はエラー画面を描画する。
func (rd *renderer) renderError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *model.APIError) {
	rd.render(w, statusCode, "error.html", errorPage{
		pageData: newPageData(r, "エラー"),
		Message:  apiErr.Message,
		Action:   apiErr.Action,
	})
}

// renderServiceError はサービス層のエラーをエラー画面として描画する。
func (rd *renderer) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := toAPIError(err)
	rd.renderError(w, r, status, apiErr)
}
