package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
)

// phcPrefix starts every hash this package writes:
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
const phcPrefix = "$argon2id$v=19$"

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("argon2: malformed hash")
	errWeakParams    = errors.New("argon2: parameters below minimum")
)

var b64 = base64.RawStdEncoding

// Argon2Config defines tunable parameters for Argon2id password hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config is the production cost.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) check() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("%w: memory %d KiB < 8192", errWeakParams, c.Memory)
	case c.Iterations == 0:
		return fmt.Errorf("%w: zero iterations", errWeakParams)
	case c.Parallelism == 0:
		return fmt.Errorf("%w: zero parallelism", errWeakParams)
	case c.SaltLength < 8:
		return fmt.Errorf("%w: salt %d bytes < 8", errWeakParams, c.SaltLength)
	case c.KeyLength < 16:
		return fmt.Errorf("%w: key %d bytes < 16", errWeakParams, c.KeyLength)
	}
	return nil
}

// Argon2Hasher turns a pending password into the hash kept on the session
// and later on the farmer account. The plaintext is never stored.
type Argon2Hasher struct {
	cfg Argon2Config
}

// NewArgon2Hasher rejects configurations below the minimum cost.
func NewArgon2Hasher(cfg Argon2Config) (*Argon2Hasher, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &Argon2Hasher{cfg: cfg}, nil
}

// Hash returns a PHC-formatted Argon2id hash with a fresh salt.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.cfg.Iterations, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	var b strings.Builder
	b.WriteString(phcPrefix)
	fmt.Fprintf(&b, "m=%d,t=%d,p=%d$", h.cfg.Memory, h.cfg.Iterations, h.cfg.Parallelism)
	b.WriteString(b64.EncodeToString(salt))
	b.WriteByte('$')
	b.WriteString(b64.EncodeToString(key))
	return b.String(), nil
}

// Verify reports whether password matches encoded. The cost parameters come
// from the hash, so raising the configured cost does not break sessions
// that were hashed earlier.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}
	cfg, salt, want, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func parsePHC(encoded string) (Argon2Config, []byte, []byte, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: expected %q prefix", ErrMalformedHash, phcPrefix)
	}
	params, rest, ok := strings.Cut(rest, "$")
	if !ok {
		return Argon2Config{}, nil, nil, ErrMalformedHash
	}
	saltPart, keyPart, ok := strings.Cut(rest, "$")
	if !ok || strings.Contains(keyPart, "$") {
		return Argon2Config{}, nil, nil, ErrMalformedHash
	}

	var cfg Argon2Config
	var n int
	if _, err := fmt.Sscanf(params, "m=%d,t=%d,p=%d", &cfg.Memory, &cfg.Iterations, &n); err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: params %q: %w", ErrMalformedHash, params, err)
	}
	if n <= 0 || n > 255 {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: parallelism %d", ErrMalformedHash, n)
	}
	cfg.Parallelism = uint8(n)

	salt, err := b64.DecodeString(saltPart)
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: salt: %w", ErrMalformedHash, err)
	}
	key, err := b64.DecodeString(keyPart)
	if err != nil {
		return Argon2Config{}, nil, nil, fmt.Errorf("%w: key: %w", ErrMalformedHash, err)
	}
	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(key))
	if err := cfg.check(); err != nil {
		return Argon2Config{}, nil, nil, err
	}
	return cfg, salt, key, nil
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)
