package metastore

import (
	"context"

	"icemeta/internal/domain"
)

// AtomicManager implements the manager over a store without multi-statement
// transactions. Each write relies on the store's compare-and-swap guarantees;
// an operation that loses a race mid-way reports it through its result
// status, and a retried operation converges because every create and update
// is idempotent against its own earlier effects.
type AtomicManager struct {
	core
	store domain.Store
}

var _ domain.MetastoreManager = (*AtomicManager)(nil)

// NewAtomicManager builds a manager over a plain store.
func NewAtomicManager(store domain.Store, opts Options) *AtomicManager {
	return &AtomicManager{core: opts.core(), store: store}
}

func (m *AtomicManager) Bootstrap(ctx context.Context) domain.BaseResult {
	return m.bootstrap(ctx, m.store)
}

func (m *AtomicManager) Purge(ctx context.Context) domain.BaseResult {
	return m.purge(ctx, m.store)
}

func (m *AtomicManager) GenerateNewEntityID(ctx context.Context) domain.GenerateEntityIDResult {
	return m.generateNewEntityID(ctx, m.store)
}

func (m *AtomicManager) CreatePrincipal(ctx context.Context, principal domain.Entity) domain.CreatePrincipalResult {
	return m.createPrincipal(ctx, m.store, principal)
}

func (m *AtomicManager) LoadPrincipalSecrets(ctx context.Context, clientID string) domain.PrincipalSecretsResult {
	return m.loadPrincipalSecrets(ctx, m.store, clientID)
}

func (m *AtomicManager) RotatePrincipalSecrets(ctx context.Context, clientID string, principalID int64, reset bool, oldSecretHash string) domain.PrincipalSecretsResult {
	return m.rotatePrincipalSecrets(ctx, m.store, clientID, principalID, reset, oldSecretHash)
}

func (m *AtomicManager) CreateCatalog(ctx context.Context, catalog domain.Entity, principalRoles []domain.Entity) domain.CreateCatalogResult {
	return m.createCatalog(ctx, m.store, catalog, principalRoles)
}

func (m *AtomicManager) ReadEntityByName(ctx context.Context, catalogPath []domain.Entity, typ domain.EntityType, subType domain.EntitySubType, name string) domain.EntityResult {
	return m.readEntityByName(ctx, m.store, catalogPath, typ, subType, name)
}

func (m *AtomicManager) ListEntities(ctx context.Context, catalogPath []domain.Entity, typ domain.EntityType, subType domain.EntitySubType) domain.EntitiesResult {
	return m.listEntities(ctx, m.store, catalogPath, typ, subType)
}

func (m *AtomicManager) LoadEntity(ctx context.Context, catalogID, id int64) domain.EntityResult {
	return m.loadEntity(ctx, m.store, catalogID, id)
}

func (m *AtomicManager) LoadEntitiesChangeTracking(ctx context.Context, ids []domain.EntityID) domain.ChangeTrackingResult {
	return m.loadEntitiesChangeTracking(ctx, m.store, ids)
}

func (m *AtomicManager) CreateEntityIfNotExists(ctx context.Context, catalogPath []domain.Entity, entity domain.Entity) domain.EntityResult {
	return m.createEntityIfNotExists(ctx, m.store, catalogPath, entity)
}

func (m *AtomicManager) CreateEntitiesIfNotExist(ctx context.Context, catalogPath []domain.Entity, entities []domain.Entity) domain.EntitiesResult {
	return m.createEntitiesIfNotExist(ctx, m.store, catalogPath, entities)
}

func (m *AtomicManager) UpdateEntityPropertiesIfNotChanged(ctx context.Context, catalogPath []domain.Entity, entity domain.Entity) domain.EntityResult {
	return m.updateEntityPropertiesIfNotChanged(ctx, m.store, catalogPath, entity)
}

func (m *AtomicManager) UpdateEntitiesPropertiesIfNotChanged(ctx context.Context, entities []domain.EntityWithPath) domain.EntitiesResult {
	return m.updateEntitiesPropertiesIfNotChanged(ctx, m.store, entities)
}

func (m *AtomicManager) RenameEntity(ctx context.Context, catalogPath []domain.Entity, entityToRename domain.Entity, newCatalogPath []domain.Entity, renamedEntity domain.Entity) domain.EntityResult {
	return m.renameEntity(ctx, m.store, catalogPath, entityToRename, newCatalogPath, renamedEntity)
}

func (m *AtomicManager) DropEntityIfExists(ctx context.Context, catalogPath []domain.Entity, entityToDrop domain.Entity, cleanupProperties map[string]string, cleanup bool) domain.DropEntityResult {
	return m.dropEntityIfExists(ctx, m.store, catalogPath, entityToDrop, cleanupProperties, cleanup)
}

func (m *AtomicManager) GrantUsageOnRoleToGrantee(ctx context.Context, catalog *domain.Entity, role, grantee domain.Entity) domain.PrivilegeResult {
	return m.grantUsageOnRoleToGrantee(ctx, m.store, catalog, role, grantee)
}

func (m *AtomicManager) RevokeUsageOnRoleFromGrantee(ctx context.Context, catalog *domain.Entity, role, grantee domain.Entity) domain.PrivilegeResult {
	return m.revokeUsageOnRoleFromGrantee(ctx, m.store, catalog, role, grantee)
}

func (m *AtomicManager) GrantPrivilegeOnSecurableToRole(ctx context.Context, grantee domain.Entity, catalogPath []domain.Entity, securable domain.Entity, priv domain.Privilege) domain.PrivilegeResult {
	return m.grantPrivilegeOnSecurableToRole(ctx, m.store, grantee, catalogPath, securable, priv)
}

func (m *AtomicManager) RevokePrivilegeOnSecurableFromRole(ctx context.Context, grantee domain.Entity, catalogPath []domain.Entity, securable domain.Entity, priv domain.Privilege) domain.PrivilegeResult {
	return m.revokePrivilegeOnSecurableFromRole(ctx, m.store, grantee, catalogPath, securable, priv)
}

func (m *AtomicManager) LoadGrantsOnSecurable(ctx context.Context, securableCatalogID, securableID int64) domain.LoadGrantsResult {
	return m.loadGrants(ctx, m.store, securableCatalogID, securableID, true)
}

func (m *AtomicManager) LoadGrantsToGrantee(ctx context.Context, granteeCatalogID, granteeID int64) domain.LoadGrantsResult {
	return m.loadGrants(ctx, m.store, granteeCatalogID, granteeID, false)
}

// LoadTasks leases tasks one by one; a task lost to a concurrent executor is
// skipped rather than failing the batch.
func (m *AtomicManager) LoadTasks(ctx context.Context, executorID string, limit int) domain.EntitiesResult {
	return m.loadTasks(ctx, m.store, executorID, limit, true)
}

func (m *AtomicManager) GetSubscopedCredsForEntity(ctx context.Context, catalogID, id int64, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) domain.ScopedCredentialsResult {
	return m.getSubscopedCreds(ctx, m.store, catalogID, id, allowListOperation, allowedReadLocations, allowedWriteLocations)
}

func (m *AtomicManager) ValidateAccessToLocations(ctx context.Context, catalogID, id int64, actions []domain.StorageAction, locations []string) domain.ValidateAccessResult {
	return m.validateAccessToLocations(ctx, m.store, catalogID, id, actions, locations)
}

func (m *AtomicManager) LoadResolvedEntityByID(ctx context.Context, catalogID, id int64) domain.ResolvedEntityResult {
	return m.loadResolvedEntityByID(ctx, m.store, catalogID, id)
}

func (m *AtomicManager) LoadResolvedEntityByName(ctx context.Context, catalogID, parentID int64, typ domain.EntityType, name string) domain.ResolvedEntityResult {
	res := m.loadResolvedEntityByName(ctx, m.store, catalogID, parentID, typ, name)
	// A missing root container means the store was never bootstrapped;
	// backfill it so authorization can proceed.
	if res.Status == domain.StatusEntityNotFound && isRootContainerKey(catalogID, parentID, typ, name) {
		if boot := m.Bootstrap(ctx); !boot.IsSuccess() {
			return domain.ResolvedEntityResult{BaseResult: boot}
		}
		res = m.loadResolvedEntityByName(ctx, m.store, catalogID, parentID, typ, name)
	}
	return res
}

func (m *AtomicManager) RefreshResolvedEntity(ctx context.Context, versions domain.ChangeTrackingVersions, catalogID int64, typ domain.EntityType, id int64) domain.ResolvedEntityResult {
	return m.refreshResolvedEntity(ctx, m.store, versions, catalogID, typ, id)
}
