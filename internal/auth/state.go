package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// NewState returns a fresh OAuth state value.
func NewState() string {
	return uuid.NewString()
}

// SignState binds state to secret so it can round-trip through a cookie.
func SignState(secret []byte, state string) string {
	return state + "." + stateMAC(secret, state)
}

// VerifyState checks a value produced by SignState and returns the state it carries.
func VerifyState(secret []byte, signed string) (string, bool) {
	state, sig, ok := strings.Cut(signed, ".")
	if !ok || state == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(stateMAC(secret, state))) {
		return "", false
	}
	return state, true
}

func stateMAC(secret []byte, state string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(state))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
