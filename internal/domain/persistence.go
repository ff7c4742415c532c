package domain

import "context"

// Store is the persistence contract every metastore backend implements. Each
// method is individually atomic; backends that can group methods into larger
// transactions additionally implement TxStore.
//
// Lookup methods return (nil, nil) when the requested record does not exist;
// errors are reserved for backend failures.
type Store interface {
	// GenerateNewID allocates a new unique entity id.
	GenerateNewID(ctx context.Context) (int64, error)

	// WriteEntity persists an entity under compare-and-swap semantics.
	// original is the caller's witness of the persisted state: nil means the
	// entity is being created. A live-name or id collision returns
	// *EntityAlreadyExistsError carrying the winning entity; a witness
	// mismatch returns *ConcurrentModificationError. nameOrParentChanged
	// tells backends with a separate name index to maintain it.
	WriteEntity(ctx context.Context, entity Entity, nameOrParentChanged bool, original *Entity) error

	// WriteEntities persists a batch of entities atomically with the same
	// per-entity semantics as WriteEntity. Backends without multi-entity
	// atomicity reject batches they cannot apply as a unit.
	WriteEntities(ctx context.Context, entities []Entity) error

	// DeleteEntity removes an entity and its name-index record.
	DeleteEntity(ctx context.Context, catalogID, id int64) error

	// LookupEntity finds an entity by id.
	LookupEntity(ctx context.Context, catalogID, id int64) (*Entity, error)

	// LookupEntities finds a batch of entities; the result is aligned with
	// ids, with nil for entities that do not exist.
	LookupEntities(ctx context.Context, ids []EntityID) ([]*Entity, error)

	// LookupEntityVersions returns change-tracking versions aligned with
	// ids, with nil for entities that do not exist.
	LookupEntityVersions(ctx context.Context, ids []EntityID) ([]*ChangeTrackingVersions, error)

	// LookupEntityByName finds a live entity by its active-name key.
	LookupEntityByName(ctx context.Context, key ActiveKey) (*Entity, error)

	// ListEntities returns live entities under (catalogID, parentID) of the
	// given type. filter may be nil; limit <= 0 means no limit.
	ListEntities(ctx context.Context, catalogID, parentID int64, typ EntityType, limit int, filter func(*Entity) bool) ([]Entity, error)

	// HasChildren reports whether any live child of the given type exists
	// under (catalogID, parentID). EntityTypeNull matches any type.
	HasChildren(ctx context.Context, typ EntityType, catalogID, parentID int64) (bool, error)

	// WriteGrant persists a grant record; writing an existing record is a
	// no-op.
	WriteGrant(ctx context.Context, grant GrantRecord) error

	// DeleteGrant removes a grant record; the record must exist.
	DeleteGrant(ctx context.Context, grant GrantRecord) error

	// LookupGrant finds the exact grant record, or (nil, nil).
	LookupGrant(ctx context.Context, grant GrantRecord) (*GrantRecord, error)

	// LoadAllGrantsOnSecurable returns all grants where the entity is the
	// securable.
	LoadAllGrantsOnSecurable(ctx context.Context, catalogID, id int64) ([]GrantRecord, error)

	// LoadAllGrantsToGrantee returns all grants where the entity is the
	// grantee.
	LoadAllGrantsToGrantee(ctx context.Context, catalogID, id int64) ([]GrantRecord, error)

	// DeleteAllEntityGrants removes every grant attached to the entity on
	// either side. The caller passes the records it already loaded so
	// backends can avoid re-reading.
	DeleteAllEntityGrants(ctx context.Context, entity Entity, grantsOnSecurable, grantsToGrantee []GrantRecord) error

	// GenerateNewPrincipalSecrets creates and persists secrets for a new
	// principal.
	GenerateNewPrincipalSecrets(ctx context.Context, principalName string, principalID int64) (*PrincipalSecrets, error)

	// LoadPrincipalSecrets finds secrets by client id, or (nil, nil).
	LoadPrincipalSecrets(ctx context.Context, clientID string) (*PrincipalSecrets, error)

	// RotatePrincipalSecrets rotates (or, when reset is true, regenerates)
	// the secrets identified by clientID, guarded by the hash of the current
	// main secret.
	RotatePrincipalSecrets(ctx context.Context, clientID string, principalID int64, reset bool, oldMainSecretHash string) (*PrincipalSecrets, error)

	// DeletePrincipalSecrets removes the secrets of a dropped principal.
	DeletePrincipalSecrets(ctx context.Context, clientID string, principalID int64) error

	// PersistStorageIntegration records the storage configuration attached
	// to an entity (typically a catalog).
	PersistStorageIntegration(ctx context.Context, catalogID, entityID int64, config StorageConfigurationInfo) error

	// LoadStorageIntegration returns the storage configuration attached to
	// an entity, or (nil, nil).
	LoadStorageIntegration(ctx context.Context, catalogID, entityID int64) (*StorageConfigurationInfo, error)

	// DeleteAll wipes every slice of the store. Used by realm purge and
	// tests only.
	DeleteAll(ctx context.Context) error
}

// TxStore is a Store whose operations can be grouped into serializable
// transactions. The Store passed to fn is only valid for the duration of fn.
type TxStore interface {
	Store

	// RunInTransaction runs fn inside a write transaction, committing when
	// fn returns nil and rolling back otherwise.
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// RunInReadTransaction runs fn inside a read-only transaction.
	RunInReadTransaction(ctx context.Context, fn func(tx Store) error) error
}
