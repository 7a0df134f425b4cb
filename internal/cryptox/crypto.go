// Package cryptox derives the password verifier shared between the client
// and the server. The password itself never leaves the client: it is
// stretched with Argon2id over a per-account salt and only a SHA-256 of the
// result is sent or stored.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of freshly generated account salts.
const SaltSize = 32

func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// VerifierFor runs DeriveMasterKey and MakeVerifier in one step.
func VerifierFor(password []byte, salt []byte) []byte {
	key := DeriveMasterKey(password, salt)
	defer wipe(key)
	return MakeVerifier(key)
}

// VerifiersEqual compares two verifiers in constant time.
func VerifiersEqual(a, b []byte) bool {
	return len(a) > 0 && subtle.ConstantTimeCompare(a, b) == 1
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
