// Package password hashes and verifies user passwords with Argon2id.
//
// Encoded hashes use the PHC-like format
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// so parameters travel with the hash and can be raised later without
// invalidating stored credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Version = argon2.Version

type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

type Hasher struct {
	params Params
}

func New(params Params) *Hasher {
	return &Hasher{params: params}
}

// Hash returns an encoded Argon2id hash with a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	const op = "password.Hash"

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%s: salt: %w", op, err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.MemoryKiB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	b64 := base64.RawStdEncoding

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Malformed or
// out-of-bounds hashes never match.
func (h *Hasher) Verify(password, encoded string) bool {
	params, salt, expected, ok := decode(encoded)
	if !ok || !withinBounds(params, h.params) {
		return false
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.MemoryKiB,
		params.Parallelism,
		uint32(len(expected)), // #nosec G115 -- length bounded by withinBounds
	)

	return subtle.ConstantTimeCompare(key, expected) == 1
}

// withinBounds rejects hashes whose cost parameters would let a stored
// value force far more work than the configured ones.
func withinBounds(got, limits Params) bool {
	if got.MemoryKiB > limits.MemoryKiB*2 {
		return false
	}
	if got.Iterations > limits.Iterations*2 {
		return false
	}
	if uint32(got.Parallelism) > uint32(limits.Parallelism)*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}

	return true
}

func decode(encoded string) (Params, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, false
	}

	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Params{}, nil, nil, false
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Params{}, nil, nil, false
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Params{}, nil, nil, false
	}

	b64 := base64.RawStdEncoding

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, false
	}

	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, false
	}

	return Params{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),
		SaltLength:  uint32(len(salt)), // #nosec G115
		KeyLength:   uint32(len(key)),  // #nosec G115
	}, salt, key, true
}
