// Package cryptox derives and checks the salted password digests stored in
// the users table.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// DeriveKey stretches password with salt using argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// HashPassword returns the hex-encoded digest of password under salt.
func HashPassword(password, salt string) string {
	return hex.EncodeToString(DeriveKey([]byte(password), []byte(salt)))
}

// CheckPassword reports whether candidate hashes to digest under salt. The
// comparison is constant time.
func CheckPassword(digest, candidate, salt string) bool {
	return subtle.ConstantTimeCompare([]byte(digest), []byte(HashPassword(candidate, salt))) == 1
}
