package pii

import (
	"strings"

	dErrors "batisecure/pkg/domain-errors"
)

// SensitiveFields are the record keys treated as PII across the platform.
var SensitiveFields = []string{
	"email",
	"telephone",
	"adresse",
	"numeroSecu",
	"dateNaissance",
	"iban",
}

// EncryptedSuffix marks a field holding an Envelope instead of plaintext.
const EncryptedSuffix = "_encrypted"

// EncryptFields replaces every sensitive plaintext field present on the
// record with a "<field>_encrypted" envelope and removes the plaintext key.
// Non-sensitive fields pass through untouched. Non-string sensitive values
// are rejected rather than silently skipped.
func (c *Cipher) EncryptFields(record map[string]any) error {
	for _, field := range SensitiveFields {
		value, ok := record[field]
		if !ok {
			continue
		}
		plaintext, ok := value.(string)
		if !ok {
			return dErrors.New(dErrors.CodeInvalidInput, "sensitive field "+field+" must be a string")
		}
		env, err := c.Encrypt(plaintext)
		if err != nil {
			return err
		}
		record[field+EncryptedSuffix] = env
		delete(record, field)
	}
	return nil
}

// DecryptFields is the inverse of EncryptFields: every "<field>_encrypted"
// envelope is opened and restored under its plaintext key. A tag mismatch on
// any field aborts the whole operation.
func (c *Cipher) DecryptFields(record map[string]any) error {
	for key, value := range record {
		field, found := strings.CutSuffix(key, EncryptedSuffix)
		if !found {
			continue
		}
		env, err := asEnvelope(value)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "field "+field)
		}
		plaintext, err := c.Decrypt(env)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "field "+field)
		}
		record[field] = plaintext
		delete(record, key)
	}
	return nil
}

// asEnvelope accepts either a typed Envelope or the map shape produced by
// JSON round-trips through schemaless stores.
func asEnvelope(value any) (Envelope, error) {
	switch v := value.(type) {
	case Envelope:
		return v, nil
	case map[string]any:
		env := Envelope{}
		env.Ciphertext, _ = v["ciphertext"].(string)
		env.IV, _ = v["iv"].(string)
		env.AuthTag, _ = v["auth_tag"].(string)
		if env.Ciphertext == "" && env.IV == "" && env.AuthTag == "" {
			return Envelope{}, dErrors.New(dErrors.CodeDecryptionFailed, "empty envelope")
		}
		return env, nil
	default:
		return Envelope{}, dErrors.New(dErrors.CodeDecryptionFailed, "unsupported envelope shape")
	}
}
