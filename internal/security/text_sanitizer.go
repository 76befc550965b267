// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はカテゴリや説明などの利用者入力からHTMLを取り除き、
// 1行のプレーンテキストに正規化する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト入力の正規化機能のインターフェースを定義する。
type TextSanitizer interface {
	// SanitizeText はタグを除去し、制御文字と連続する空白を1つの空白にまとめ、前後の空白を取り除く。
	// script, styleタグは内容ごと除去される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はタグを除去したプレーンテキストを返す。
// bluemondayはエンティティをエスケープして出力するため、テンプレート側での二重エスケープを避けるために元に戻す。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}

	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	stripped = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)

	return strings.Join(strings.Fields(stripped), " ")
}
