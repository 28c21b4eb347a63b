// Package password hashes and verifies user passwords.
//
// New hashes are argon2id encoded in the PHC string format, so a stored hash
// carries its own salt and cost parameters. bcrypt hashes written by earlier
// deployments still verify.
package password

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"identity-service/internal/model"
)

const argon2idPrefix = "$argon2id$"

// Upper bounds accepted when parsing a stored hash. A tampered row must not
// be able to make a single verification allocate unbounded memory.
const (
	maxMemoryKiB   = 1 << 20
	maxIterations  = 64
	maxKeyLength   = 1 << 10
	maxSaltLength  = 1 << 10
	minParsedBytes = 8
)

// Params are the argon2id cost parameters used for new hashes.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams follows the OWASP argon2id baseline.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Hasher hashes and verifies passwords. Hash and Verify are CPU and memory
// heavy, so at most `workers` of them run at the same time; callers beyond
// that wait on their context.
type Hasher struct {
	params Params
	sem    *semaphore.Weighted
}

func NewHasher(params Params, workers int) *Hasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if params.SaltLength == 0 {
		params.SaltLength = DefaultParams.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultParams.KeyLength
	}

	return &Hasher{
		params: params,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
}

// Hash returns the encoded argon2id hash of password with a fresh salt.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", model.ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").Wrap(err)
	}

	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	started := time.Now()
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	h.sem.Release(1)
	hashDuration.WithLabelValues("hash").Observe(time.Since(started).Seconds())

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. It returns an error
// wrapping model.ErrInvalidHashFormat when encoded cannot be parsed.
func (h *Hasher) Verify(ctx context.Context, password string, encoded string) (bool, error) {
	if isBcrypt(encoded) {
		return h.verifyBcrypt(ctx, password, encoded)
	}

	decoded, err := decodeArgon2id(encoded)
	if err != nil {
		return false, err
	}

	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	started := time.Now()
	computed := argon2.IDKey([]byte(password), decoded.salt, decoded.params.Iterations, decoded.params.Memory, decoded.params.Parallelism, uint32(len(decoded.key)))
	h.sem.Release(1)
	hashDuration.WithLabelValues("verify").Observe(time.Since(started).Seconds())

	return subtle.ConstantTimeCompare(computed, decoded.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced by another algorithm or
// with weaker parameters than the hasher's own.
func (h *Hasher) NeedsRehash(encoded string) bool {
	decoded, err := decodeArgon2id(encoded)
	if err != nil {
		return true
	}

	p := decoded.params
	return p.Memory < h.params.Memory ||
		p.Iterations < h.params.Iterations ||
		p.Parallelism < h.params.Parallelism ||
		uint32(len(decoded.key)) < h.params.KeyLength
}

func (h *Hasher) verifyBcrypt(ctx context.Context, password string, encoded string) (bool, error) {
	if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").
			With("algorithm", "bcrypt").
			Wrapf(model.ErrInvalidHashFormat, "%v", err)
	}

	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	started := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	h.sem.Release(1)
	hashDuration.WithLabelValues("verify_bcrypt").Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("PASSWORD_INVALID_HASH").
			With("algorithm", "bcrypt").
			Wrapf(model.ErrInvalidHashFormat, "%v", err)
	}
}

func (h *Hasher) acquire(ctx context.Context) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return oops.Code("PASSWORD_POOL_WAIT").Wrap(err)
	}
	return nil
}

type decodedHash struct {
	params Params
	salt   []byte
	key    []byte
}

// decodeArgon2id parses $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>.
func decodeArgon2id(encoded string) (decodedHash, error) {
	invalid := func(reason string) (decodedHash, error) {
		return decodedHash{}, oops.Code("PASSWORD_INVALID_HASH").
			With("algorithm", "argon2id").
			Wrapf(model.ErrInvalidHashFormat, "%s", reason)
	}

	if !strings.HasPrefix(encoded, argon2idPrefix) {
		return invalid("unsupported hash algorithm")
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return invalid("unexpected number of segments")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return invalid("unreadable version")
	}
	if version != argon2.Version {
		return invalid("unsupported argon2 version")
	}

	var memory, iterations, parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return invalid("unreadable parameters")
	}
	if memory == 0 || memory > maxMemoryKiB || iterations == 0 || iterations > maxIterations || parallelism == 0 || parallelism > 255 {
		return invalid("parameters out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < minParsedBytes || len(salt) > maxSaltLength {
		return invalid("bad salt encoding")
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < minParsedBytes || len(key) > maxKeyLength {
		return invalid("bad key encoding")
	}

	return decodedHash{
		params: Params{
			Memory:      memory,
			Iterations:  iterations,
			Parallelism: uint8(parallelism),
			SaltLength:  uint32(len(salt)),
			KeyLength:   uint32(len(key)),
		},
		salt: salt,
		key:  key,
	}, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
