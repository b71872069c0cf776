package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateAdminAPIKey returns a new operator key and the bcrypt hash to
// configure as ADMIN_API_KEY_HASH
func GenerateAdminAPIKey() (key, hash string, err error) {
	secret, err := GenerateSecret(24)
	if err != nil {
		return "", "", err
	}
	key = "sbk_admin_" + secret

	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return key, string(hashed), nil
}

// CheckAdminAPIKey compares key with a bcrypt hash
func CheckAdminAPIKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
