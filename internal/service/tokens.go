package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	shareIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	shareIDLength   = 12
	shareIDMask     = 63 // smallest 2^n-1 covering the alphabet

	sessionTokenBytes = 32
)

// newShareID returns a random alphanumeric id. Bytes that fall outside the
// alphabet after masking are discarded so every symbol is equally likely.
func newShareID() (string, error) {
	id := make([]byte, 0, shareIDLength)
	buf := make([]byte, shareIDLength*2)
	for len(id) < shareIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if idx := int(b & shareIDMask); idx < len(shareIDAlphabet) {
				id = append(id, shareIDAlphabet[idx])
				if len(id) == shareIDLength {
					break
				}
			}
		}
	}
	return string(id), nil
}

// newSessionToken returns an opaque bearer token and the hash stored for it.
func newSessionToken() (token, hash string, err error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
