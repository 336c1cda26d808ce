package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Parametros argon2id recomendados por OWASP.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32

	// Un digest almacenado no puede pedir mas de este multiplo del costo configurado.
	argon2CostCeiling = 4
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrInvalidHash   = errors.New("invalid password hash")
)

// PasswordHasher genera y verifica digests de contraseñas.
type PasswordHasher interface {
	// Hash produce un digest argon2id con salt aleatorio.
	Hash(password string) (string, error)
	// Verify devuelve (false, nil) ante una contraseña incorrecta y error si el digest es invalido.
	Verify(password, digest string) (bool, error)
	// NeedsUpgrade indica digests heredados que deben regenerarse.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implementa PasswordHasher. Acepta digests bcrypt y sha256
// hexadecimales de la version anterior del servicio solo para verificacion.
type Argon2idHasher struct {
	time    uint32
	memory  uint32
	threads uint8
}

func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{time: argon2Time, memory: argon2Memory, threads: argon2Threads}
}

// NewArgon2idHasherWithParams permite parametros mas baratos, por ejemplo en tests.
func NewArgon2idHasherWithParams(time, memoryKiB uint32, threads uint8) *Argon2idHasher {
	return &Argon2idHasher{time: time, memory: memoryKiB, threads: threads}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return h.verifyArgon2id(password, digest)
	case isBcryptDigest(digest):
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("%w: %w", ErrInvalidHash, err)
		}
		return true, nil
	case isLegacySHA256Digest(digest):
		sum := sha256.Sum256([]byte(password))
		computed := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(digest))) == 1, nil
	default:
		return false, ErrInvalidHash
	}
}

func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	if !strings.HasPrefix(digest, "$argon2id$") {
		return true
	}
	var memory, time uint32
	var threads uint8
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return true
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return true
	}
	return memory < h.memory || time < h.time
}

func (h *Argon2idHasher) verifyArgon2id(password, digest string) (bool, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrInvalidHash
	}

	var memory, time uint32
	var threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, ErrInvalidHash
	}
	if threads == 0 || threads > 255 || memory == 0 || time == 0 {
		return false, ErrInvalidHash
	}
	maxMemory, maxTime := h.costLimits()
	if memory > maxMemory || time > maxTime {
		return false, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrInvalidHash
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 || len(expected) > 1024 {
		return false, ErrInvalidHash
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// costLimits parte del mayor entre el costo configurado y el recomendado, asi un
// hasher barato sigue leyendo digests de produccion.
func (h *Argon2idHasher) costLimits() (memory, time uint32) {
	memory, time = max(h.memory, argon2Memory), max(h.time, argon2Time)
	return memory * argon2CostCeiling, time * argon2CostCeiling
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

func isLegacySHA256Digest(digest string) bool {
	if len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
