package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icemeta/internal/domain"
)

func catalogEntity(id int64) *domain.Entity {
	e := domain.NewEntity(domain.NullID, id, domain.RootEntityID,
		domain.EntityTypeCatalog, domain.SubTypeNull, "federated")
	return &e
}

func TestWriteAndReadSecret(t *testing.T) {
	m := NewManager()
	entity := catalogEntity(1001)

	ref, err := m.WriteSecret("hunter2", entity)
	require.NoError(t, err)
	assert.Contains(t, ref.URN, "urn:icemeta-secret:in-memory:1001:")
	assert.NotEmpty(t, ref.ReferencePayload)

	secret, err := m.ReadSecret(ref)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
}

func TestWriteSecretDistinctReferences(t *testing.T) {
	m := NewManager()
	entity := catalogEntity(1001)

	first, err := m.WriteSecret("one", entity)
	require.NoError(t, err)
	second, err := m.WriteSecret("two", entity)
	require.NoError(t, err)

	assert.NotEqual(t, first.URN, second.URN)
	got, err := m.ReadSecret(first)
	require.NoError(t, err)
	assert.Equal(t, "one", got)
	got, err = m.ReadSecret(second)
	require.NoError(t, err)
	assert.Equal(t, "two", got)
}

func TestReadSecretMissing(t *testing.T) {
	m := NewManager()
	entity := catalogEntity(1001)

	ref, err := m.WriteSecret("hunter2", entity)
	require.NoError(t, err)
	require.NoError(t, m.DeleteSecret(ref))

	_, err = m.ReadSecret(ref)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)

	// Deleting again is a no-op.
	assert.NoError(t, m.DeleteSecret(ref))
}

func TestReadSecretIntegrityCheck(t *testing.T) {
	m := NewManager()
	entity := catalogEntity(1001)

	ref, err := m.WriteSecret("hunter2", entity)
	require.NoError(t, err)
	ref.ReferencePayload["secret-hash"] = "tampered"

	_, err = m.ReadSecret(ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity")
}

func TestReadSecretWrongKey(t *testing.T) {
	m := NewManager()
	entity := catalogEntity(1001)

	ref, err := m.WriteSecret("hunter2", entity)
	require.NoError(t, err)
	other, err := m.WriteSecret("other", entity)
	require.NoError(t, err)
	ref.ReferencePayload["encryption-key"] = other.ReferencePayload["encryption-key"]
	delete(ref.ReferencePayload, "secret-hash")

	_, err = m.ReadSecret(ref)
	require.Error(t, err)
}

func TestUnsupportedURN(t *testing.T) {
	m := NewManager()
	ref := domain.UserSecretReference{URN: "urn:other-scheme:1:0"}

	_, err := m.ReadSecret(ref)
	assert.Error(t, err)
	assert.Error(t, m.DeleteSecret(ref))
}

func TestStoreAloneCannotRecoverSecret(t *testing.T) {
	m := NewManager()
	entity := catalogEntity(1001)

	ref, err := m.WriteSecret("hunter2", entity)
	require.NoError(t, err)

	// The stored ciphertext never contains the plaintext.
	m.mu.Lock()
	for _, ciphertext := range m.byURN {
		assert.NotContains(t, ciphertext, "hunter2")
	}
	m.mu.Unlock()

	// Without the key from the reference, the secret is unreadable.
	stripped := domain.UserSecretReference{URN: ref.URN, ReferencePayload: map[string]string{}}
	_, err = m.ReadSecret(stripped)
	require.Error(t, err)
}
