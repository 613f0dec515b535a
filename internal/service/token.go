package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/gorilla/securecookie"
)

// resetTokenBytes is the entropy of a reset token: 128 bits.
const resetTokenBytes = 16

// newResetToken returns a hex encoded random token and the hash under which
// it is stored.
func newResetToken() (token, tokenHash string, err error) {
	b := securecookie.GenerateRandomKey(resetTokenBytes)
	if b == nil {
		return "", "", errors.New("failed to generate reset token")
	}
	token = hex.EncodeToString(b)
	return token, hashResetToken(token), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
