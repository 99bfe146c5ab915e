// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はユーザー入力のタスクタイトル・説明文をサニタイズし、
// 保存値にマークアップが混入することを防ぐ。APIのレスポンスは
// フロントエンドでそのまま描画される前提のため、許可リスト方式で
// タグを全て除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize は入力からHTMLタグを全て除去し、前後の空白を切り詰めて返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストノードのみを残す。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを全て除去し、前後の空白を切り詰めて返す。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
