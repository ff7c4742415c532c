package domain

import "context"

// MetastoreManager is the transactional authority over the entity model:
// every catalog, namespace, table, principal, role, grant, and task mutation
// goes through one of its operations.
//
// Expected failures are reported through result statuses; Go errors never
// escape an operation. catalogPath arguments are caller-resolved entity
// chains rooted at a catalog; a nil path addresses top-level entities.
type MetastoreManager interface {
	// Bootstrap creates the root container, the root principal, and the
	// service admin role, with their bootstrap grants. Safe to retry.
	Bootstrap(ctx context.Context) BaseResult

	// Purge irreversibly deletes everything in the store.
	Purge(ctx context.Context) BaseResult

	// GenerateNewEntityID allocates an id for an entity the caller is about
	// to create.
	GenerateNewEntityID(ctx context.Context) GenerateEntityIDResult

	// CreatePrincipal creates a principal with freshly generated secrets.
	CreatePrincipal(ctx context.Context, principal Entity) CreatePrincipalResult

	// LoadPrincipalSecrets returns the secrets registered under clientID.
	LoadPrincipalSecrets(ctx context.Context, clientID string) PrincipalSecretsResult

	// RotatePrincipalSecrets rotates the principal's credentials. reset
	// additionally invalidates the secondary secret and flags the principal
	// for mandatory rotation on next use.
	RotatePrincipalSecrets(ctx context.Context, clientID string, principalID int64, reset bool, oldSecretHash string) PrincipalSecretsResult

	// CreateCatalog creates a catalog, persists its storage integration,
	// creates its admin catalog role, and grants usage on that role to the
	// given principal roles (or to the service admin role when none are
	// given). Re-issuing for an existing id is idempotent.
	CreateCatalog(ctx context.Context, catalog Entity, principalRoles []Entity) CreateCatalogResult

	// ReadEntityByName resolves an entity by name under a catalog path.
	ReadEntityByName(ctx context.Context, catalogPath []Entity, typ EntityType, subType EntitySubType, name string) EntityResult

	// ListEntities lists live entities of a type under a catalog path,
	// optionally narrowed to a subtype.
	ListEntities(ctx context.Context, catalogPath []Entity, typ EntityType, subType EntitySubType) EntitiesResult

	// LoadEntity fetches an entity by id.
	LoadEntity(ctx context.Context, catalogID, id int64) EntityResult

	// LoadEntitiesChangeTracking returns current versions for a batch of
	// entity ids.
	LoadEntitiesChangeTracking(ctx context.Context, ids []EntityID) ChangeTrackingResult

	// CreateEntityIfNotExists creates the entity unless a live entity with
	// the same name key exists. Retrying a create of the same id succeeds
	// idempotently.
	CreateEntityIfNotExists(ctx context.Context, catalogPath []Entity, entity Entity) EntityResult

	// CreateEntitiesIfNotExist creates a batch; the batch fails as a unit on
	// the first conflict.
	CreateEntitiesIfNotExist(ctx context.Context, catalogPath []Entity, entities []Entity) EntitiesResult

	// UpdateEntityPropertiesIfNotChanged persists property changes only if
	// the entity is still at the version the caller read.
	UpdateEntityPropertiesIfNotChanged(ctx context.Context, catalogPath []Entity, entity Entity) EntityResult

	// UpdateEntitiesPropertiesIfNotChanged applies a batch of conditional
	// property updates as a unit.
	UpdateEntitiesPropertiesIfNotChanged(ctx context.Context, entities []EntityWithPath) EntitiesResult

	// RenameEntity renames and/or moves an entity. Tasks cannot be renamed;
	// the target name must be free.
	RenameEntity(ctx context.Context, catalogPath []Entity, entityToRename Entity, newCatalogPath []Entity, renamedEntity Entity) EntityResult

	// DropEntityIfExists drops an entity, cleans up its grants and secrets,
	// and optionally schedules a cleanup task carrying the dropped entity.
	DropEntityIfExists(ctx context.Context, catalogPath []Entity, entityToDrop Entity, cleanupProperties map[string]string, cleanup bool) DropEntityResult

	// GrantUsageOnRoleToGrantee grants role usage: principal-role usage when
	// the grantee is a principal, catalog-role usage when the grantee is a
	// principal role.
	GrantUsageOnRoleToGrantee(ctx context.Context, catalog *Entity, role Entity, grantee Entity) PrivilegeResult

	// RevokeUsageOnRoleFromGrantee revokes what GrantUsageOnRoleToGrantee
	// granted.
	RevokeUsageOnRoleFromGrantee(ctx context.Context, catalog *Entity, role Entity, grantee Entity) PrivilegeResult

	// GrantPrivilegeOnSecurableToRole grants priv on a securable under the
	// catalog path to a catalog role.
	GrantPrivilegeOnSecurableToRole(ctx context.Context, grantee Entity, catalogPath []Entity, securable Entity, priv Privilege) PrivilegeResult

	// RevokePrivilegeOnSecurableFromRole revokes a previously granted
	// privilege.
	RevokePrivilegeOnSecurableFromRole(ctx context.Context, grantee Entity, catalogPath []Entity, securable Entity, priv Privilege) PrivilegeResult

	// LoadGrantsOnSecurable returns all grants where the entity is the
	// securable, with the grantee entities.
	LoadGrantsOnSecurable(ctx context.Context, securableCatalogID, securableID int64) LoadGrantsResult

	// LoadGrantsToGrantee returns all grants where the entity is the
	// grantee, with the securable entities.
	LoadGrantsToGrantee(ctx context.Context, granteeCatalogID, granteeID int64) LoadGrantsResult

	// LoadTasks leases up to limit overdue or unleased tasks to executorID.
	LoadTasks(ctx context.Context, executorID string, limit int) EntitiesResult

	// GetSubscopedCredsForEntity vends storage credentials scoped down to
	// the requested locations for a catalog or table entity.
	GetSubscopedCredsForEntity(ctx context.Context, catalogID, id int64, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) ScopedCredentialsResult

	// ValidateAccessToLocations checks the entity's storage integration
	// against the requested actions and locations.
	ValidateAccessToLocations(ctx context.Context, catalogID, id int64, actions []StorageAction, locations []string) ValidateAccessResult

	// LoadResolvedEntityByID loads an entity with all grants it participates
	// in, for authorization caches.
	LoadResolvedEntityByID(ctx context.Context, catalogID, id int64) ResolvedEntityResult

	// LoadResolvedEntityByName is LoadResolvedEntityByID keyed by name. A
	// miss on the root container triggers a bootstrap backfill.
	LoadResolvedEntityByName(ctx context.Context, catalogID, parentID int64, typ EntityType, name string) ResolvedEntityResult

	// RefreshResolvedEntity re-validates a cached entry, returning only the
	// parts whose versions moved.
	RefreshResolvedEntity(ctx context.Context, versions ChangeTrackingVersions, catalogID int64, typ EntityType, id int64) ResolvedEntityResult
}
