// Package security hashes shopper passwords with Argon2id.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/angelmondragon/storefront-cart/pkg/config"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// ErrInvalidHash is returned for stored hashes that are not Argon2id PHC strings.
var ErrInvalidHash = errors.New("invalid argon2id hash")

var b64 = base64.RawStdEncoding

// Params are the Argon2id costs recorded in every hash.
type Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// ParamsFrom clamps configured costs into a range argon2 accepts and a
// login can afford.
func ParamsFrom(cfg config.PasswordConfig) Params {
	return Params{
		Memory:  clamp(cfg.ArgonMemoryKB, 8, 512*1024),
		Time:    clamp(cfg.ArgonTime, 1, 10),
		Threads: uint8(clamp(cfg.ArgonParallelism, 1, 255)),
		SaltLen: clamp(cfg.ArgonSaltLen, 8, 64),
		KeyLen:  clamp(cfg.ArgonKeyLen, 16, 64),
	}
}

func clamp(v, lo, hi int) uint32 {
	return uint32(max(lo, min(v, hi)))
}

type stored struct {
	params Params
	salt   []byte
	key    []byte
}

// encode renders the PHC string: $argon2id$v=19$m=..,t=..,p=..$salt$key
func (s stored) encode() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, s.params.Memory, s.params.Time, s.params.Threads,
		b64.EncodeToString(s.salt), b64.EncodeToString(s.key))
}

func decode(encoded string) (stored, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return stored{}, ErrInvalidHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return stored{}, ErrInvalidHash
	}
	var s stored
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &s.params.Memory, &s.params.Time, &s.params.Threads); err != nil {
		return stored{}, ErrInvalidHash
	}
	var err error
	if s.salt, err = b64.DecodeString(parts[4]); err != nil || len(s.salt) == 0 {
		return stored{}, ErrInvalidHash
	}
	if s.key, err = b64.DecodeString(parts[5]); err != nil || len(s.key) == 0 {
		return stored{}, ErrInvalidHash
	}
	if s.params.Memory == 0 || s.params.Time == 0 || s.params.Threads == 0 {
		return stored{}, ErrInvalidHash
	}
	s.params.SaltLen = uint32(len(s.salt))
	s.params.KeyLen = uint32(len(s.key))
	return s, nil
}

func derive(password string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, p.KeyLen)
}

// Hasher hashes with the configured costs. It also keeps a hash of a
// throwaway password so unknown-email logins cost the same as wrong passwords.
type Hasher struct {
	params Params
	dummy  string
}

func NewHasher(cfg config.PasswordConfig) (*Hasher, error) {
	h := &Hasher{params: ParamsFrom(cfg)}
	dummy, err := h.Hash("storefront-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	h.dummy = dummy
	return h, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return stored{params: h.params, salt: salt, key: derive(password, salt, h.params)}.encode(), nil
}

// Verify checks password against encoded using the costs stored in the
// hash, not the current configuration.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	s, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(s.key, derive(password, s.salt, s.params)) == 1, nil
}

// NeedsRehash reports whether encoded was made with other costs than the
// hasher's, so a successful login should store a fresh hash.
func (h *Hasher) NeedsRehash(encoded string) bool {
	s, err := decode(encoded)
	return err != nil || s.params != h.params
}

// VerifyDummy burns one verification against the throwaway hash.
func (h *Hasher) VerifyDummy(password string) {
	_, _ = h.Verify(password, h.dummy)
}
