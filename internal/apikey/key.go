package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix marks every issued key so scanners can recognise leaked secrets.
	KeyPrefix = "lk"

	prefixBytes = 4
	secretBytes = 32
)

// Generate returns a fresh lookup prefix and secret, both hex encoded.
func Generate() (prefix, secret string, err error) {
	buf := make([]byte, prefixBytes+secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	return hex.EncodeToString(buf[:prefixBytes]), hex.EncodeToString(buf[prefixBytes:]), nil
}

// Format assembles the plaintext key handed to the caller.
func Format(prefix, secret string) string {
	return KeyPrefix + "_" + prefix + "_" + secret
}

// Parse splits a presented key into its lookup prefix and secret.
func Parse(raw string) (prefix, secret string, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) != 3 || parts[0] != KeyPrefix {
		return "", "", false
	}
	prefix, secret = parts[1], parts[2]
	if len(prefix) != prefixBytes*2 || len(secret) != secretBytes*2 {
		return "", "", false
	}
	if !isHex(prefix) || !isHex(secret) {
		return "", "", false
	}
	return strings.ToLower(prefix), strings.ToLower(secret), true
}

// HashSecret returns the stored form of secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SecretMatches compares secret with a stored hash in constant time.
func SecretMatches(secret, storedHash string) bool {
	computed := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// Mask renders the displayable form of a key given only its prefix.
func Mask(prefix string) string {
	return KeyPrefix + "_" + prefix + "_" + strings.Repeat("*", 8)
}

func isHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
