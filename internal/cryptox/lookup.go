package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// MinLookupKeyBytes is the shortest HMAC key accepted for the lookup index.
const MinLookupKeyBytes = 32

var ErrLookupKeyTooShort = errors.New("lookup key too short")

// LookupHasher derives a deterministic, keyed index value from a refresh
// token. The value narrows candidate records; it is never accepted as proof
// of possession on its own.
type LookupHasher struct {
	key []byte
}

func NewLookupHasher(key []byte) (*LookupHasher, error) {
	if len(key) < MinLookupKeyBytes {
		return nil, ErrLookupKeyTooShort
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &LookupHasher{key: k}, nil
}

// Sum returns HMAC-SHA256(key, token) as 64 hex characters.
func (l *LookupHasher) Sum(token string) string {
	m := hmac.New(sha256.New, l.key)
	_, _ = m.Write([]byte(token))
	return hex.EncodeToString(m.Sum(nil))
}
