// Package cryptox holds the hashing primitives of the auth core: salted
// argon2id hashes in PHC string form for passwords and refresh tokens, and a
// keyed HMAC used as a deterministic lookup index for refresh tokens.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

const (
	minMemoryKB    uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

var (
	ErrInvalidHash         = errors.New("invalid PHC hash")
	ErrUnsupportedHash     = errors.New("unsupported hash algorithm")
	ErrInvalidArgon2Params = errors.New("invalid argon2 parameters")
)

// Params are the argon2id cost settings used for new hashes. Verification
// always uses the parameters encoded in the stored hash.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follow the argon2 RFC recommendation for interactive use.
func DefaultParams() Params {
	return Params{Memory: 64 * 1024, Time: 1, Parallelism: 4, SaltLength: 16, KeyLength: 32}
}

// Argon2 hashes and verifies secrets with argon2id.
// It is safe for concurrent use.
type Argon2 struct {
	params Params
	rand   io.Reader
}

func NewArgon2(p Params) (*Argon2, error) {
	if p.Memory < minMemoryKB || p.Time < minTime || p.Parallelism < minParallelism ||
		p.SaltLength < minSaltLength || p.KeyLength < minKeyLength {
		return nil, ErrInvalidArgon2Params
	}
	return &Argon2{params: p, rand: rand.Reader}, nil
}

// Hash returns a fresh salted hash of secret. Two calls with the same secret
// produce different strings.
func (a *Argon2) Hash(secret string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(a.rand, salt); err != nil {
		return "", fmt.Errorf("reading salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. A malformed hash yields an
// error; a well-formed hash that does not match yields false, nil.
func (a *Argon2) Verify(secret, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(secret), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrInvalidHash
	}
	if parts[1] != algorithmID {
		return nil, ErrUnsupportedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, ErrUnsupportedHash
	}

	h := &phc{}
	var memory, time, parallelism uint64
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return nil, ErrInvalidHash
	}
	if memory < uint64(minMemoryKB) || memory > 1<<32-1 || time < uint64(minTime) || time > 1<<32-1 ||
		parallelism < uint64(minParallelism) || parallelism > 255 {
		return nil, ErrInvalidHash
	}
	h.memory, h.time, h.parallelism = uint32(memory), uint32(time), uint8(parallelism)

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) < int(minSaltLength) {
		return nil, ErrInvalidHash
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(h.key) < int(minKeyLength) {
		return nil, ErrInvalidHash
	}

	return h, nil
}
