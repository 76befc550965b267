// Package web は画面テンプレートを埋め込みで提供する。
package web

import (
	"embed"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

// TemplatesFS はサーバーサイドレンダリング用のHTMLテンプレート。
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// Funcs はテンプレートから利用する関数。
var Funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string {
		return d.StringFixed(2)
	},
	"date": func(t time.Time) string {
		return t.UTC().Format("2006-01-02")
	},
}

// ParseTemplates は埋め込みテンプレートをすべて解析する。
func ParseTemplates() (*template.Template, error) {
	return template.New("").Funcs(Funcs).ParseFS(TemplatesFS, "templates/*.html")
}
