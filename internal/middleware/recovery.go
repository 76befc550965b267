package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/kakeibo/internal/model"
)

// NewRecoveryMiddleware はハンドラーのpanicを回収してINTERNAL_ERRORの500を返すミドルウェアを生成する。
// http.ErrAbortHandlerは接続中断の合図なので再panicする。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("stack", string(debug.Stack())),
				)
				WriteErrorResponse(w, r, http.StatusInternalServerError, model.NewInternalError())
			}()
			next.ServeHTTP(w, r)
		})
	}
}
