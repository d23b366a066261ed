package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordHasher turns plaintext passwords into salted one-way hashes.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	// Verify reports whether password matches hash. Malformed hashes yield
	// false.
	Verify(password string, hash []byte) bool
	// NeedsUpgrade reports whether hash should be recomputed with the
	// current algorithm and parameters.
	NeedsUpgrade(hash []byte) bool
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follow the OWASP baseline for argon2id.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Upper bounds accepted when reading a stored hash.
const (
	maxMemory = 1024 * 1024
	maxTime   = 16
	maxKeyLen = 1024
)

// Argon2idHasher hashes with argon2id and also verifies legacy bcrypt
// hashes so that older accounts can still log in and be upgraded.
type Argon2idHasher struct {
	params Argon2Params
}

var _ PasswordHasher = (*Argon2idHasher)(nil)

func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

// normalize maps visually identical Unicode input to one byte sequence.
func normalize(password string) []byte {
	return []byte(norm.NFKC.String(password))
}

// Hash returns a PHC string: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}

	p := h.params
	salt := common.GenerateRandByteArray(int(p.SaltLen))
	pw := normalize(password)
	defer common.WipeByteArray(pw)

	key := argon2.IDKey(pw, salt, p.Time, p.Memory, p.Threads, p.KeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return []byte(encoded), nil
}

func (h *Argon2idHasher) Verify(password string, hash []byte) bool {
	if isBcrypt(hash) {
		return bcrypt.CompareHashAndPassword(hash, normalize(password)) == nil
	}

	p, salt, expected, err := decodeArgon2id(hash)
	if err != nil {
		return false
	}

	pw := normalize(password)
	defer common.WipeByteArray(pw)

	computed := argon2.IDKey(pw, salt, p.Time, p.Memory, p.Threads, p.KeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func (h *Argon2idHasher) NeedsUpgrade(hash []byte) bool {
	p, _, _, err := decodeArgon2id(hash)
	if err != nil {
		return true
	}
	return p.Time != h.params.Time || p.Memory != h.params.Memory || p.Threads != h.params.Threads
}

func isBcrypt(hash []byte) bool {
	s := string(hash)
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

var errInvalidHash = errors.New("invalid hash format")

func decodeArgon2id(hash []byte) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(string(hash), "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, errInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errInvalidHash
	}

	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &threads); err != nil {
		return p, nil, nil, errInvalidHash
	}
	if threads == 0 || threads > 255 || p.Time == 0 || p.Time > maxTime || p.Memory == 0 || p.Memory > maxMemory {
		return p, nil, nil, errInvalidHash
	}
	p.Threads = uint8(threads)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, errInvalidHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxKeyLen {
		return p, nil, nil, errInvalidHash
	}
	p.SaltLen = uint32(len(salt))
	p.KeyLen = uint32(len(key))

	return p, salt, key, nil
}
