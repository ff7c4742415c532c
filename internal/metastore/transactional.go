package metastore

import (
	"context"
	"errors"

	"icemeta/internal/domain"
)

// TransactionalManager runs every operation inside a single serializable
// transaction, re-resolving caller-supplied paths and entities against the
// transaction's snapshot before writing.
type TransactionalManager struct {
	core
	store domain.TxStore
}

var _ domain.MetastoreManager = (*TransactionalManager)(nil)

// NewTransactionalManager builds a manager over a transactional store.
func NewTransactionalManager(store domain.TxStore, opts Options) *TransactionalManager {
	return &TransactionalManager{core: opts.core(), store: store}
}

// errRollback aborts the surrounding transaction when an operation failed
// after partial writes, without masking the captured result.
var errRollback = errors.New("rollback")

func (m *TransactionalManager) read(ctx context.Context, fn func(tx domain.Store)) error {
	return m.store.RunInReadTransaction(ctx, func(tx domain.Store) error {
		fn(tx)
		return nil
	})
}

func (m *TransactionalManager) write(ctx context.Context, fn func(tx domain.Store) bool) error {
	err := m.store.RunInTransaction(ctx, func(tx domain.Store) error {
		if !fn(tx) {
			return errRollback
		}
		return nil
	})
	if errors.Is(err, errRollback) {
		return nil
	}
	return err
}

func (m *TransactionalManager) Bootstrap(ctx context.Context) domain.BaseResult {
	var res domain.BaseResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.bootstrap(ctx, tx)
		return res.IsSuccess()
	}); err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) Purge(ctx context.Context) domain.BaseResult {
	var res domain.BaseResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.purge(ctx, tx)
		return res.IsSuccess()
	}); err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) GenerateNewEntityID(ctx context.Context) domain.GenerateEntityIDResult {
	var res domain.GenerateEntityIDResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.generateNewEntityID(ctx, tx)
		return res.IsSuccess()
	}); err != nil {
		return domain.GenerateEntityIDResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) CreatePrincipal(ctx context.Context, principal domain.Entity) domain.CreatePrincipalResult {
	var res domain.CreatePrincipalResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.createPrincipal(ctx, tx, principal)
		return res.IsSuccess()
	}); err != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadPrincipalSecrets(ctx context.Context, clientID string) domain.PrincipalSecretsResult {
	var res domain.PrincipalSecretsResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadPrincipalSecrets(ctx, tx, clientID)
	}); err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) RotatePrincipalSecrets(ctx context.Context, clientID string, principalID int64, reset bool, oldSecretHash string) domain.PrincipalSecretsResult {
	var res domain.PrincipalSecretsResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.rotatePrincipalSecrets(ctx, tx, clientID, principalID, reset, oldSecretHash)
		return res.IsSuccess()
	}); err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) CreateCatalog(ctx context.Context, catalog domain.Entity, principalRoles []domain.Entity) domain.CreateCatalogResult {
	var res domain.CreateCatalogResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.createCatalog(ctx, tx, catalog, principalRoles)
		return res.IsSuccess()
	}); err != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) ReadEntityByName(ctx context.Context, catalogPath []domain.Entity, typ domain.EntityType, subType domain.EntitySubType, name string) domain.EntityResult {
	var res domain.EntityResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.readEntityByName(ctx, tx, catalogPath, typ, subType, name)
	}); err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) ListEntities(ctx context.Context, catalogPath []domain.Entity, typ domain.EntityType, subType domain.EntitySubType) domain.EntitiesResult {
	var res domain.EntitiesResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.listEntities(ctx, tx, catalogPath, typ, subType)
	}); err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadEntity(ctx context.Context, catalogID, id int64) domain.EntityResult {
	var res domain.EntityResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadEntity(ctx, tx, catalogID, id)
	}); err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) LoadEntitiesChangeTracking(ctx context.Context, ids []domain.EntityID) domain.ChangeTrackingResult {
	var res domain.ChangeTrackingResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadEntitiesChangeTracking(ctx, tx, ids)
	}); err != nil {
		return domain.ChangeTrackingResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) CreateEntityIfNotExists(ctx context.Context, catalogPath []domain.Entity, entity domain.Entity) domain.EntityResult {
	var res domain.EntityResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.createEntityIfNotExists(ctx, tx, catalogPath, entity)
		return res.IsSuccess()
	}); err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) CreateEntitiesIfNotExist(ctx context.Context, catalogPath []domain.Entity, entities []domain.Entity) domain.EntitiesResult {
	var res domain.EntitiesResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.createEntitiesIfNotExist(ctx, tx, catalogPath, entities)
		return res.IsSuccess()
	}); err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) UpdateEntityPropertiesIfNotChanged(ctx context.Context, catalogPath []domain.Entity, entity domain.Entity) domain.EntityResult {
	var res domain.EntityResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.updateEntityPropertiesIfNotChanged(ctx, tx, catalogPath, entity)
		return res.IsSuccess()
	}); err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) UpdateEntitiesPropertiesIfNotChanged(ctx context.Context, entities []domain.EntityWithPath) domain.EntitiesResult {
	var res domain.EntitiesResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.updateEntitiesPropertiesIfNotChanged(ctx, tx, entities)
		return res.IsSuccess()
	}); err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) RenameEntity(ctx context.Context, catalogPath []domain.Entity, entityToRename domain.Entity, newCatalogPath []domain.Entity, renamedEntity domain.Entity) domain.EntityResult {
	var res domain.EntityResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.renameEntity(ctx, tx, catalogPath, entityToRename, newCatalogPath, renamedEntity)
		return res.IsSuccess()
	}); err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return res
}

func (m *TransactionalManager) DropEntityIfExists(ctx context.Context, catalogPath []domain.Entity, entityToDrop domain.Entity, cleanupProperties map[string]string, cleanup bool) domain.DropEntityResult {
	var res domain.DropEntityResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.dropEntityIfExists(ctx, tx, catalogPath, entityToDrop, cleanupProperties, cleanup)
		return res.IsSuccess()
	}); err != nil {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) GrantUsageOnRoleToGrantee(ctx context.Context, catalog *domain.Entity, role, grantee domain.Entity) domain.PrivilegeResult {
	var res domain.PrivilegeResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.grantUsageOnRoleToGrantee(ctx, tx, catalog, role, grantee)
		return res.IsSuccess()
	}); err != nil {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) RevokeUsageOnRoleFromGrantee(ctx context.Context, catalog *domain.Entity, role, grantee domain.Entity) domain.PrivilegeResult {
	var res domain.PrivilegeResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.revokeUsageOnRoleFromGrantee(ctx, tx, catalog, role, grantee)
		return res.IsSuccess()
	}); err != nil {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) GrantPrivilegeOnSecurableToRole(ctx context.Context, grantee domain.Entity, catalogPath []domain.Entity, securable domain.Entity, priv domain.Privilege) domain.PrivilegeResult {
	var res domain.PrivilegeResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.grantPrivilegeOnSecurableToRole(ctx, tx, grantee, catalogPath, securable, priv)
		return res.IsSuccess()
	}); err != nil {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) RevokePrivilegeOnSecurableFromRole(ctx context.Context, grantee domain.Entity, catalogPath []domain.Entity, securable domain.Entity, priv domain.Privilege) domain.PrivilegeResult {
	var res domain.PrivilegeResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.revokePrivilegeOnSecurableFromRole(ctx, tx, grantee, catalogPath, securable, priv)
		return res.IsSuccess()
	}); err != nil {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadGrantsOnSecurable(ctx context.Context, securableCatalogID, securableID int64) domain.LoadGrantsResult {
	var res domain.LoadGrantsResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadGrants(ctx, tx, securableCatalogID, securableID, true)
	}); err != nil {
		return domain.LoadGrantsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadGrantsToGrantee(ctx context.Context, granteeCatalogID, granteeID int64) domain.LoadGrantsResult {
	var res domain.LoadGrantsResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadGrants(ctx, tx, granteeCatalogID, granteeID, false)
	}); err != nil {
		return domain.LoadGrantsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadTasks(ctx context.Context, executorID string, limit int) domain.EntitiesResult {
	var res domain.EntitiesResult
	if err := m.write(ctx, func(tx domain.Store) bool {
		res = m.loadTasks(ctx, tx, executorID, limit, false)
		return res.IsSuccess()
	}); err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) GetSubscopedCredsForEntity(ctx context.Context, catalogID, id int64, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) domain.ScopedCredentialsResult {
	var res domain.ScopedCredentialsResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.getSubscopedCreds(ctx, tx, catalogID, id, allowListOperation, allowedReadLocations, allowedWriteLocations)
	}); err != nil {
		return domain.ScopedCredentialsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) ValidateAccessToLocations(ctx context.Context, catalogID, id int64, actions []domain.StorageAction, locations []string) domain.ValidateAccessResult {
	var res domain.ValidateAccessResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.validateAccessToLocations(ctx, tx, catalogID, id, actions, locations)
	}); err != nil {
		return domain.ValidateAccessResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadResolvedEntityByID(ctx context.Context, catalogID, id int64) domain.ResolvedEntityResult {
	var res domain.ResolvedEntityResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadResolvedEntityByID(ctx, tx, catalogID, id)
	}); err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}

func (m *TransactionalManager) LoadResolvedEntityByName(ctx context.Context, catalogID, parentID int64, typ domain.EntityType, name string) domain.ResolvedEntityResult {
	var res domain.ResolvedEntityResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.loadResolvedEntityByName(ctx, tx, catalogID, parentID, typ, name)
	}); err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	// A missing root container means the store was never bootstrapped;
	// backfill it so authorization can proceed.
	if res.Status == domain.StatusEntityNotFound && isRootContainerKey(catalogID, parentID, typ, name) {
		if boot := m.Bootstrap(ctx); !boot.IsSuccess() {
			return domain.ResolvedEntityResult{BaseResult: boot}
		}
		if err := m.read(ctx, func(tx domain.Store) {
			res = m.loadResolvedEntityByName(ctx, tx, catalogID, parentID, typ, name)
		}); err != nil {
			return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
	}
	return res
}

func (m *TransactionalManager) RefreshResolvedEntity(ctx context.Context, versions domain.ChangeTrackingVersions, catalogID int64, typ domain.EntityType, id int64) domain.ResolvedEntityResult {
	var res domain.ResolvedEntityResult
	if err := m.read(ctx, func(tx domain.Store) {
		res = m.refreshResolvedEntity(ctx, tx, versions, catalogID, typ, id)
	}); err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return res
}
