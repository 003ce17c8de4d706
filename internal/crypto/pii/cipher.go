// Package pii provides authenticated encryption for sensitive personal
// fields (email, phone, postal address, social security number, birth date,
// IBAN). Values are sealed with AES-256-GCM under a key derived from the
// master secret via scrypt.
package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/scrypt"

	dErrors "batisecure/pkg/domain-errors"
)

// kdfSalt is fixed so the same master secret always derives the same key;
// rotating the secret requires re-encrypting stored fields.
var kdfSalt = []byte("batisecure-pii-v1")

const (
	keyLen   = 32
	nonceLen = 16

	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

// Envelope carries one encrypted value. The three parts are always stored
// together; decryption is impossible without all of them.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"auth_tag"`
}

// Cipher seals and opens PII values.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the data key from the master secret and prepares the
// AEAD. The master secret must be non-empty; there is no fallback key.
func NewCipher(masterSecret string) (*Cipher, error) {
	if masterSecret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "PII master secret is required")
	}
	key, err := scrypt.Key([]byte(masterSecret), kdfSalt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not derive PII key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize AEAD")
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals a plaintext value under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (Envelope, error) {
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()

	return Envelope{
		Ciphertext: hex.EncodeToString(sealed[:tagStart]),
		IV:         hex.EncodeToString(nonce),
		AuthTag:    hex.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt opens an envelope. It fails closed: any tampering with the
// ciphertext, nonce, or tag yields an error, never corrupted plaintext.
func (c *Cipher) Decrypt(env Envelope) (string, error) {
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return "", dErrors.New(dErrors.CodeDecryptionFailed, "malformed ciphertext")
	}
	nonce, err := hex.DecodeString(env.IV)
	if err != nil || len(nonce) != nonceLen {
		return "", dErrors.New(dErrors.CodeDecryptionFailed, "malformed nonce")
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != c.aead.Overhead() {
		return "", dErrors.New(dErrors.CodeDecryptionFailed, "malformed auth tag")
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", dErrors.New(dErrors.CodeDecryptionFailed, "authentication failed")
	}
	return string(plaintext), nil
}
