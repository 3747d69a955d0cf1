package identity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownAlgorithm is returned by NewHasher for unsupported names.
var ErrUnknownAlgorithm = errors.New("identity: unknown hash algorithm")

// Hasher produces a one-way hex digest of an identifier. Implementations
// normalize text first; empty input yields an empty digest.
type Hasher interface {
	Name() string
	Hash(value string) string
}

// SHA256Hasher is the default digest every platform accepts.
type SHA256Hasher struct{}

func (SHA256Hasher) Name() string { return "sha256" }

func (SHA256Hasher) Hash(value string) string {
	n := NormalizeText(value)
	if n == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(n))
	return hex.EncodeToString(sum[:])
}

// MD5Hasher exists for partners that still match on MD5.
type MD5Hasher struct{}

func (MD5Hasher) Name() string { return "md5" }

func (MD5Hasher) Hash(value string) string {
	n := NormalizeText(value)
	if n == "" {
		return ""
	}
	sum := md5.Sum([]byte(n))
	return hex.EncodeToString(sum[:])
}

// NewHasher selects a Hasher by name; "" selects SHA-256.
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sha256", "sha-256":
		return SHA256Hasher{}, nil
	case "md5":
		return MD5Hasher{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}
