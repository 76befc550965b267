// Package model はドメインモデルを定義する。
package model

import "time"

// User は認証済みの利用者を表す。
// ExternalSubjectIDはIdPが割り当てる不変の識別子で、1人のUserに一意に対応する。
type User struct {
	ID                string
	ExternalSubjectID string
	Email             string
	CreatedAt         time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
