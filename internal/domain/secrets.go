package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// PrincipalSecrets holds the API credentials of a PRINCIPAL entity. The
// secondary secret stays valid through one rotation so in-flight clients
// keep working while they pick up the new main secret.
type PrincipalSecrets struct {
	PrincipalID         int64  `json:"principalId"`
	PrincipalClientID   string `json:"principalClientId"`
	MainSecret          string `json:"mainSecret"`
	SecondarySecret     string `json:"secondarySecret"`
	MainSecretHash      string `json:"mainSecretHash"`
	SecondarySecretHash string `json:"secondarySecretHash"`
}

// NewPrincipalSecrets generates fresh credentials for a principal: a unique
// client id and two independent secrets.
func NewPrincipalSecrets(principalID int64) *PrincipalSecrets {
	main := newSecret()
	secondary := newSecret()
	return &PrincipalSecrets{
		PrincipalID:         principalID,
		PrincipalClientID:   newClientID(),
		MainSecret:          main,
		SecondarySecret:     secondary,
		MainSecretHash:      HashSecret(main),
		SecondarySecretHash: HashSecret(secondary),
	}
}

// Rotate moves the main secret to the secondary slot and installs a freshly
// generated main secret.
func (s *PrincipalSecrets) Rotate() {
	s.SecondarySecret = s.MainSecret
	s.SecondarySecretHash = s.MainSecretHash
	s.MainSecret = newSecret()
	s.MainSecretHash = HashSecret(s.MainSecret)
}

// Reset regenerates both secrets, invalidating all outstanding credentials.
func (s *PrincipalSecrets) Reset() {
	s.MainSecret = newSecret()
	s.MainSecretHash = HashSecret(s.MainSecret)
	s.SecondarySecret = newSecret()
	s.SecondarySecretHash = HashSecret(s.SecondarySecret)
}

// MatchesSecret reports whether the candidate matches either the main or
// the secondary secret.
func (s *PrincipalSecrets) MatchesSecret(candidate string) bool {
	h := HashSecret(candidate)
	return h == s.MainSecretHash || h == s.SecondarySecretHash
}

// HashSecret returns the hex SHA-256 digest under which secrets are compared
// and stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func newClientID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func newSecret() string {
	buf := make([]byte, 32)
	// rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// UserSecretReference points at a secret stored in a secrets manager. The
// URN identifies the remote secret; ReferencePayload carries whatever extra
// material the manager needs to recover and verify it.
type UserSecretReference struct {
	URN              string            `json:"urn"`
	ReferencePayload map[string]string `json:"referencePayload"`
}

// UserSecretsManager stores user-supplied secrets outside the metastore,
// leaving only references in entity properties.
type UserSecretsManager interface {
	// WriteSecret stores a secret on behalf of forEntity and returns the
	// reference needed to read it back.
	WriteSecret(secret string, forEntity *Entity) (UserSecretReference, error)

	// ReadSecret recovers the original secret, or returns a NotFoundError
	// when it no longer exists.
	ReadSecret(ref UserSecretReference) (string, error)

	// DeleteSecret removes the secret; deleting a missing secret is a no-op.
	DeleteSecret(ref UserSecretReference) error
}
