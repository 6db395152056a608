// Package fairness implements the commit-reveal scheme behind every round.
//
// A round publishes Commit(seed) before betting opens and reveals the seed once
// the result is fixed. Anyone can then recompute the commitment with Verify and
// re-derive every draw with Derive.
package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// fractionBuckets is the resolution used by Fraction
const fractionBuckets = 1_000_000

// GenerateSeed returns a fresh high-entropy server seed
func GenerateSeed() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate seed uuid: %w", err)
	}

	extra := make([]byte, 16)
	if _, err := rand.Read(extra); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return hex.EncodeToString(id[:]) + hex.EncodeToString(extra), nil
}

// Commit returns the lowercase SHA-256 hex digest of seed
func Commit(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether hash is the commitment of seed
func Verify(seed, hash string) bool {
	if seed == "" || hash == "" {
		return false
	}
	return strings.EqualFold(Commit(seed), hash)
}

// Derive returns a value in [0, modulus) from sha256(seed:label:nonce).
//
// Only the first 32 bits of the digest are used, reduced with a plain modulo.
// That leaves a bias of at most modulus/2^32, which is negligible for the small
// moduli used by the games (2 and 6).
func Derive(seed, label string, nonce int64, modulus int) (int, error) {
	if modulus <= 0 {
		return 0, fmt.Errorf("modulus must be positive, got %d", modulus)
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", seed, label, nonce)))
	value := binary.BigEndian.Uint32(sum[:4])
	return int(uint64(value) % uint64(modulus)), nil
}

// RollDie returns a die face in [1, 6]
func RollDie(seed, label string, nonce int64) int {
	value, _ := Derive(seed, label, nonce, 6)
	return value + 1
}

// Fraction returns a value in [0, 1) with one-in-a-million resolution
func Fraction(seed, label string, nonce int64) float64 {
	value, _ := Derive(seed, label, nonce, fractionBuckets)
	return float64(value) / fractionBuckets
}
