package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SessionSigner はセッションIDにHMAC-SHA256署名を付与し、Cookie値を検証する。
// Cookie値の形式は "<session_id>.<hex(hmac)>"。
type SessionSigner struct {
	secret []byte
}

// NewSessionSigner はSessionSignerを生成する。
func NewSessionSigner(secret string) *SessionSigner {
	return &SessionSigner{secret: []byte(secret)}
}

// Sign はセッションIDに署名を付与したCookie値を返す。
func (s *SessionSigner) Sign(sessionID string) string {
	return sessionID + "." + hex.EncodeToString(s.mac(sessionID))
}

// Verify はCookie値の署名を検証し、セッションIDを返す。
// 形式不正または署名不一致の場合はfalseを返す。
func (s *SessionSigner) Verify(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}

	sessionID, sig := value[:i], value[i+1:]
	got, err := hex.DecodeString(sig)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(got, s.mac(sessionID)) {
		return "", false
	}
	return sessionID, true
}

func (s *SessionSigner) mac(sessionID string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(sessionID))
	return h.Sum(nil)
}
