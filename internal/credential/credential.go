// Package credential hashes and verifies secrets with argon2id.
//
// Hashes are PHC strings ($argon2id$v=19$m=...,t=...,p=...$salt$key), so the
// cost parameters travel with every stored hash and can be raised without
// migrating existing rows.
package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/appauth/internal/config"
	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidHash         = errors.New("invalid argon2id hash")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

// Params are the argon2id cost parameters used for new hashes.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ParamsFromConfig builds Params from the ARGON2_* settings, keeping the
// default salt and key lengths.
func ParamsFromConfig(cfg config.Argon2Config) Params {
	p := DefaultParams()
	p.Memory = uint32(cfg.MemoryKiB)
	p.Iterations = uint32(cfg.Iterations)
	p.Parallelism = uint8(cfg.Parallelism)
	return p
}

// Verifier is what authenticators need from a Hasher.
type Verifier interface {
	Verify(encoded, secret string) bool
	VerifyDecoy(secret string)
}

// Hasher hashes secrets and verifies them in constant time.
// It is safe for concurrent use; nothing is mutated after New returns.
type Hasher struct {
	params Params
	decoy  string
}

// New creates a Hasher and computes its decoy hash from random material.
// The decoy is never persisted and matches no real secret.
func New(p Params) (*Hasher, error) {
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return nil, fmt.Errorf("argon2 params must be non-zero: %+v", p)
	}
	if p.SaltLength < 8 || p.KeyLength < 16 {
		return nil, fmt.Errorf("argon2 salt/key too short: salt=%d key=%d", p.SaltLength, p.KeyLength)
	}

	h := &Hasher{params: p}

	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, fmt.Errorf("generate decoy material: %w", err)
	}
	decoy, err := h.Hash(base64.RawStdEncoding.EncodeToString(material))
	if err != nil {
		return nil, fmt.Errorf("compute decoy hash: %w", err)
	}
	h.decoy = decoy

	return h, nil
}

// Params returns the parameters used for new hashes.
func (h *Hasher) Params() Params {
	return h.params
}

// Hash returns the PHC-encoded argon2id hash of secret with a fresh salt.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. The key comparison runs in
// constant time. A malformed or unsupported hash verifies as false after
// spending the decoy's work.
func (h *Hasher) Verify(encoded, secret string) bool {
	p, salt, key, err := decode(encoded)
	if err != nil {
		h.VerifyDecoy(secret)
		return false
	}

	other := argon2.IDKey([]byte(secret), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1
}

// VerifyDecoy spends the same work as a real verification and discards the
// result. Call it wherever a lookup found nothing to verify against.
func (h *Hasher) VerifyDecoy(secret string) {
	_ = h.Verify(h.decoy, secret)
}

// NeedsRehash reports whether encoded was produced with other parameters
// than the ones this Hasher uses for new hashes.
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, _, _, err := decode(encoded)
	if err != nil {
		return true
	}
	return p.Memory != h.params.Memory ||
		p.Iterations != h.params.Iterations ||
		p.Parallelism != h.params.Parallelism ||
		p.SaltLength != h.params.SaltLength ||
		p.KeyLength != h.params.KeyLength
}

func decode(encoded string) (Params, []byte, []byte, error) {
	var p Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleVersion
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrInvalidHash
	}
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(key))

	return p, salt, key, nil
}
