package middleware

import "net/http"

// contentSecurityPolicy は画面が読み込めるリソースを自オリジンに限定する。
// テンプレートは<style>要素のみを使用し、スクリプトを含まない。
const contentSecurityPolicy = "default-src 'self'; script-src 'none'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; form-action 'self'; frame-ancestors 'none'; base-uri 'none'"

// hstsValue はHTTPS配信時に付与するStrict-Transport-Securityの値（1年）。
const hstsValue = "max-age=31536000; includeSubDomains"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// httpsがtrueの場合はHSTSも付与する。
func NewSecurityHeadersMiddleware(https bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			if https {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			if isPageRequest(r) {
				// 収支を含む画面はキャッシュさせない
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}
