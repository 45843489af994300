package cryptox

import (
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// Argon2 parameters for the password verifier: 1 pass, 64 MiB, 4 lanes,
// 32-byte output — chosen to be memory-hard without making login
// latency noticeable on a single request.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	SaltSize     = 32
)

// DerivePasswordVerifier hashes password with salt using Argon2id. The
// result is stored as the user's password_verifier; it is never
// reversible and never transmitted back to the client.
func DerivePasswordVerifier(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword reports whether password derives to the same verifier
// as storedVerifier, using a constant-time comparison so timing cannot
// leak how many bytes matched.
func VerifyPassword(password, salt, storedVerifier []byte) bool {
	candidate := DerivePasswordVerifier(password, salt)
	return subtle.ConstantTimeCompare(candidate, storedVerifier) == 1
}
