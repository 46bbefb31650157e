// Package cryptox implements the password-based encryption envelope used to
// protect certificate material at rest, plus key/CSR generation and PKCS#12
// packaging for the provisioning workflow.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
)

var (
	// ErrMalformedEnvelope indicates the input is too short to contain the
	// salt/nonce/ciphertext layout, i.e. it was truncated or is not an
	// envelope at all.
	ErrMalformedEnvelope = errors.New("malformed encrypted envelope")

	// ErrDecryptFailed indicates authentication of the ciphertext failed,
	// typically because of a wrong password or tampered data.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrEmptyPassword rejects encryption or decryption with no password.
	ErrEmptyPassword = errors.New("password must not be empty")
)

// DeriveKey derives a 32-byte AES key from a password and salt using
// argon2id. The same parameters must be used for encryption and decryption.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// Encrypt seals data with a key derived from password. The result is a
// self-describing envelope: salt ‖ nonce ‖ ciphertext (the AES-GCM tag is
// appended to the ciphertext by Seal). A fresh random salt and nonce are
// generated on every call.
func Encrypt(data, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(DeriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. It returns
// ErrMalformedEnvelope for truncated input and ErrDecryptFailed when the
// password is wrong or the ciphertext was modified.
func Decrypt(data, password []byte) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}

	// salt + nonce + at least the GCM tag
	if len(data) < saltSize+nonceSize+16 {
		return nil, ErrMalformedEnvelope
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	block, err := aes.NewCipher(DeriveKey(password, salt))
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return plaintext, nil
}
