package account

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher defines the hashing contract (abstract so stored hashes can migrate algorithms).
// Verify accepts any hash format this package produces, whatever the configured algorithm.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

const (
	AlgoSHA256 = "sha256"
	AlgoBcrypt = "bcrypt"
)

// NewHasher returns the hasher for algo ("sha256" or "bcrypt").
func NewHasher(algo string, bcryptCost int) (PasswordHasher, error) {
	switch algo {
	case "", AlgoSHA256:
		return SHA256Hasher{}, nil
	case AlgoBcrypt:
		return BcryptHasher{Cost: bcryptCost}, nil
	default:
		return nil, fmt.Errorf("unknown password hash algorithm %q", algo)
	}
}

// SHA256Hasher produces the unsalted hex sha256 digests found in existing rows.
// It is weak against offline guessing; prefer BcryptHasher for new deployments.
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(pw string) (string, error) { return sha256Hex(pw), nil }

func (SHA256Hasher) Verify(hash, pw string) bool { return verifyAny(hash, pw) }

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool { return verifyAny(hash, pw) }

func isBcrypt(hash string) bool { return strings.HasPrefix(hash, "$2") }

func verifyAny(hash, pw string) bool {
	if hash == "" {
		return false
	}
	if isBcrypt(hash) {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
	}
	return ConstantTimeCompare(sha256Hex(pw), hash)
}

func sha256Hex(pw string) string {
	sum := sha256.Sum256([]byte(pw))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeCompare compares two digests without leaking the mismatch position.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
