package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Errors map onto gRPC codes in UnaryInterceptor: revoked keys are
// PermissionDenied, database failures Unavailable, everything else
// Unauthenticated so a probe cannot tell which keys exist.
var (
	ErrMissingKey       = errors.New("API key required in " + MetadataKey + " metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("API key signed by unknown secret")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")
	ErrDatabase         = errors.New("api key store unavailable")
)

// Keys look like dk-v1-<secret id>-<random>, both parts lowercase hex.
const (
	keyPrefix    = "dk-v1-"
	secretIDLen  = 32
	randomLen    = 64
	randomOctets = randomLen / 2
)

// ParseAPIKey splits a key into the id of the secret that signed it and its
// random part.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return "", "", ErrInvalidKeyFormat
	}
	secretID, randomData, ok = strings.Cut(rest, "-")
	if !ok || len(secretID) != secretIDLen || len(randomData) != randomLen {
		return "", "", ErrInvalidKeyFormat
	}
	if !lowerHex(secretID) || !lowerHex(randomData) {
		return "", "", ErrInvalidKeyFormat
	}
	return secretID, randomData, nil
}

// FormatAPIKey is the inverse of ParseAPIKey.
func FormatAPIKey(secretID, randomData string) string {
	return keyPrefix + secretID + "-" + randomData
}

// ComputeHMAC is the digest stored for a key; the key itself is never saved.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(apiKey))
	return mac.Sum(nil)
}

func newRandomData() (string, error) {
	buf := make([]byte, randomOctets)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func lowerHex(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
