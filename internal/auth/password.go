package auth

import (
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// Hasher hashes and verifies credential secrets with argon2id. Hashes are
// self-describing strings ($argon2id$v=19$m=...,t=...,p=...$salt$key) with a
// random per-hash salt.
type Hasher struct {
	params *argon2id.Params
}

func NewDefault() *Hasher {
	return &Hasher{params: argon2id.DefaultParams}
}

func New(p *argon2id.Params) *Hasher { return &Hasher{params: p} }

func (h *Hasher) Hash(plain string) (string, error) {
	if h == nil || h.params == nil {
		return "", errors.New("argon2id params not set")
	}
	return argon2id.CreateHash(plain, h.params)
}

// Verify compares plain against an encoded hash in constant time.
func (h *Hasher) Verify(plain, encodedHash string) (bool, error) {
	ok, err := argon2id.ComparePasswordAndHash(plain, encodedHash)
	if err != nil {
		return false, fmt.Errorf("verify hash: %w", err)
	}
	return ok, nil
}
