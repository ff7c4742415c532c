// Package secrets implements an in-memory UserSecretsManager intended for
// development and tests. Secrets are stored encrypted under a one-time key
// that travels in the caller's reference payload, so the store alone can
// never recover a secret.
package secrets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"icemeta/internal/db/crypto"
	"icemeta/internal/domain"
)

const urnScheme = "in-memory"

// Reference payload keys.
const (
	payloadKeyEncryptionKey  = "encryption-key"
	payloadKeyCiphertextHash = "secret-hash"
)

// Manager keeps encrypted secrets in process memory. It satisfies
// domain.UserSecretsManager.
type Manager struct {
	mu      sync.Mutex
	byURN   map[string]string
	ordinal map[int64]int
}

var _ domain.UserSecretsManager = (*Manager)(nil)

// NewManager builds an empty in-memory secrets manager.
func NewManager() *Manager {
	return &Manager{
		byURN:   map[string]string{},
		ordinal: map[int64]int{},
	}
}

// WriteSecret encrypts the secret under a freshly generated one-time key and
// stores only the ciphertext. The returned reference carries the key and the
// ciphertext hash; losing the reference loses the secret.
func (m *Manager) WriteSecret(secret string, forEntity *domain.Entity) (domain.UserSecretReference, error) {
	key := crypto.NewRandomKey()
	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		return domain.UserSecretReference{}, fmt.Errorf("build encryptor: %w", err)
	}
	ciphertext, err := enc.Encrypt(secret)
	if err != nil {
		return domain.UserSecretReference{}, fmt.Errorf("encrypt secret: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Ordinals make successive writes for the same entity distinct without
	// overwriting secrets still referenced elsewhere.
	var urn string
	for {
		ord := m.ordinal[forEntity.ID]
		m.ordinal[forEntity.ID] = ord + 1
		urn = secretURN(forEntity.ID, ord)
		if _, taken := m.byURN[urn]; !taken {
			break
		}
	}
	m.byURN[urn] = ciphertext

	return domain.UserSecretReference{
		URN: urn,
		ReferencePayload: map[string]string{
			payloadKeyEncryptionKey:  key,
			payloadKeyCiphertextHash: hashCiphertext(ciphertext),
		},
	}, nil
}

// ReadSecret recovers the original secret from its reference.
func (m *Manager) ReadSecret(ref domain.UserSecretReference) (string, error) {
	if err := validateURN(ref.URN); err != nil {
		return "", err
	}
	m.mu.Lock()
	ciphertext, ok := m.byURN[ref.URN]
	m.mu.Unlock()
	if !ok {
		return "", domain.ErrNotFound("secret %s not found", ref.URN)
	}
	if want := ref.ReferencePayload[payloadKeyCiphertextHash]; want != "" && want != hashCiphertext(ciphertext) {
		return "", fmt.Errorf("secret %s failed integrity check", ref.URN)
	}
	enc, err := crypto.NewEncryptor(ref.ReferencePayload[payloadKeyEncryptionKey])
	if err != nil {
		return "", fmt.Errorf("build encryptor: %w", err)
	}
	secret, err := enc.Decrypt(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s: %w", ref.URN, err)
	}
	return secret, nil
}

// DeleteSecret removes the secret. Deleting a missing secret is a no-op.
func (m *Manager) DeleteSecret(ref domain.UserSecretReference) error {
	if err := validateURN(ref.URN); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.byURN, ref.URN)
	m.mu.Unlock()
	return nil
}

func secretURN(entityID int64, ordinal int) string {
	return fmt.Sprintf("urn:icemeta-secret:%s:%d:%d", urnScheme, entityID, ordinal)
}

func validateURN(urn string) error {
	if !strings.HasPrefix(urn, "urn:icemeta-secret:"+urnScheme+":") {
		return domain.ErrValidation("unsupported secret urn %q", urn)
	}
	return nil
}

func hashCiphertext(ciphertext string) string {
	sum := sha256.Sum256([]byte(ciphertext))
	return hex.EncodeToString(sum[:])
}
