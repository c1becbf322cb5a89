// Package envelope seals snapshot payloads for transit over untrusted relays.
//
// A sealed blob is base64url(salt[16] || nonce[12] || ciphertext||tag). The
// key is derived from a short human-entered passcode with a deliberately slow
// KDF, so brute-forcing a 4-digit PIN against a captured blob is expensive.
// The PIN's low entropy is an accepted trade-off: the blob is short-lived on
// the relay and discoverable only through an out-of-band opaque handle.
// Keep the PIN format as-is; changing it changes the pairing UX contract.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"github.com/leafmarkapp/leafmark-sync/internal/errors"
)

const (
	saltLength  = 16
	nonceLength = chacha20poly1305.NonceSize // 12
	keyLength   = chacha20poly1305.KeySize   // 32

	// PBKDF2-SHA256 iteration count. High enough that trying all 10,000
	// PINs takes real time on commodity hardware.
	kdfIterations = 150_000

	pinDigits = 4
)

// Seal encrypts payload under a key derived from passcode.
// Each call generates a fresh random salt and nonce.
func Seal(payload []byte, passcode string) (string, error) {
	if passcode == "" {
		return "", fmt.Errorf("passcode cannot be empty")
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.New(deriveKey(passcode, salt))
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	blob := make([]byte, 0, saltLength+nonceLength+len(payload)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, payload, nil)

	return base64.URLEncoding.EncodeToString(blob), nil
}

// Open decrypts a sealed blob with the supplied passcode.
//
// Every failure mode (undecodable blob, truncated blob, authentication tag
// mismatch) surfaces as the single WrongPasscode kind. Distinguishing a bad
// PIN from a corrupted blob would hand an attacker probing the relay a free
// oracle, so we do not.
func Open(sealed, passcode string) ([]byte, error) {
	blob, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, errors.WrongPasscode("could not open snapshot")
	}
	if len(blob) < saltLength+nonceLength+chacha20poly1305.Overhead {
		return nil, errors.WrongPasscode("could not open snapshot")
	}

	salt := blob[:saltLength]
	nonce := blob[saltLength : saltLength+nonceLength]
	ciphertext := blob[saltLength+nonceLength:]

	aead, err := chacha20poly1305.New(deriveKey(passcode, salt))
	if err != nil {
		return nil, errors.WrongPasscode("could not open snapshot")
	}

	payload, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.WrongPasscode("could not open snapshot")
	}
	return payload, nil
}

// NewPIN generates a random 4-digit numeric passcode.
func NewPIN() (string, error) {
	const digits = "0123456789"
	buf := make([]byte, pinDigits)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	pin := make([]byte, pinDigits)
	for i, b := range buf {
		pin[i] = digits[int(b)%len(digits)]
	}
	return string(pin), nil
}

// deriveKey stretches the passcode into a 256-bit key.
func deriveKey(passcode string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passcode), salt, kdfIterations, keyLength, sha256.New)
}
