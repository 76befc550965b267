package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/kakeibo/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限サイズ。
const maxRequestBodySize = 64 << 10

// TransactionHandler は取引のJSON APIハンドラー。
type TransactionHandler struct {
	service LedgerServiceInterface
}

// NewTransactionHandler はTransactionHandlerを生成する。
func NewTransactionHandler(service LedgerServiceInterface) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// amountField は数値と文字列のどちらのJSON表現も受け付ける金額フィールド。
// 数値はパース前の表記のまま保持し、浮動小数点を経由しない。
type amountField string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (a *amountField) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(b, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amountField(n.String())
	return nil
}

// createTransactionRequest は取引登録リクエストのボディ。
type createTransactionRequest struct {
	Amount      amountField `json:"amount"`
	Type        string      `json:"type"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Date        string      `json:"date"`
}

// transactionResponse は取引のAPIレスポンス。
type transactionResponse struct {
	ID          int64     `json:"id"`
	Amount      string    `json:"amount"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// summaryResponse は集計のAPIレスポンス。
type summaryResponse struct {
	TotalIncome  string `json:"total_income"`
	TotalExpense string `json:"total_expense"`
	Balance      string `json:"balance"`
	Count        int    `json:"count"`
}

// listTransactionsResponse は取引一覧のAPIレスポンス。
type listTransactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Summary      summaryResponse       `json:"summary"`
}

// ListTransactions は絞り込み済みの取引一覧と集計を返す。
// GET /api/transactions?type=&category=&month=
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	listing, err := h.service.ListAndSummarize(r.Context(), criteriaFromQuery(r.URL.Query()))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listTransactionsResponse{
		Transactions: make([]transactionResponse, len(listing.Transactions)),
		Summary: summaryResponse{
			TotalIncome:  listing.Summary.TotalIncome.StringFixed(2),
			TotalExpense: listing.Summary.TotalExpense.StringFixed(2),
			Balance:      listing.Summary.Balance.StringFixed(2),
			Count:        listing.Summary.Count,
		},
	}
	for i, tx := range listing.Transactions {
		resp.Transactions[i] = toTransactionResponse(tx)
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateTransaction は取引を登録する。
// POST /api/transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONを解析できません"))
		return
	}

	tx, err := h.service.AddTransaction(r.Context(), model.NewTransactionInput{
		Amount:      string(req.Amount),
		Kind:        req.Type,
		Category:    req.Category,
		Description: req.Description,
		OccurredOn:  req.Date,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(*tx))
}

// DeleteTransaction は取引を削除する。
// DELETE /api/transactions/{id}
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	rawID := chi.URLParam(r, "id")
	id, ok := parseTransactionID(rawID)
	if !ok {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewTransactionNotFoundError(rawID))
		return
	}

	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toTransactionResponse はmodel.TransactionからAPIレスポンスに変換する。
func toTransactionResponse(tx model.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Amount:      tx.Amount.StringFixed(2),
		Type:        string(tx.Kind),
		Category:    tx.Category,
		Description: tx.Description,
		OccurredAt:  tx.OccurredAt.UTC(),
		CreatedAt:   tx.CreatedAt.UTC(),
	}
}
