package metastore

import (
	"context"
	"errors"

	"icemeta/internal/domain"
)

// bootstrap creates the root container, the root principal, and the service
// admin role with their bootstrap grants. Every step tolerates the record
// already existing so an interrupted bootstrap can be re-run.
func (c *core) bootstrap(ctx context.Context, s domain.Store) domain.BaseResult {
	rootContainer, err := s.LookupEntity(ctx, domain.NullID, domain.RootEntityID)
	if err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if rootContainer == nil {
		e := domain.NewEntity(domain.NullID, domain.RootEntityID, domain.RootEntityID,
			domain.EntityTypeRoot, domain.SubTypeNull, domain.RootContainerName)
		if err := c.persistNewEntity(ctx, s, &e); err != nil {
			var exists *domain.EntityAlreadyExistsError
			if !errors.As(err, &exists) {
				return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
			}
			e = exists.Existing
		}
		rootContainer = &e
	}

	rootPrincipal, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: domain.NullID, ParentID: domain.RootEntityID,
		TypeCode: domain.EntityTypePrincipal, Name: domain.RootPrincipalName,
	})
	if err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if rootPrincipal == nil {
		id, err := s.GenerateNewID(ctx)
		if err != nil {
			return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
		}
		principal := domain.NewEntity(domain.NullID, id, domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, domain.RootPrincipalName)
		created := c.createPrincipal(ctx, s, principal)
		if !created.IsSuccess() {
			return created.BaseResult
		}
		rootPrincipal = created.Principal
	}

	serviceAdmin, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: domain.NullID, ParentID: domain.RootEntityID,
		TypeCode: domain.EntityTypePrincipalRole, Name: domain.ServiceAdminRoleName,
	})
	if err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if serviceAdmin == nil {
		id, err := s.GenerateNewID(ctx)
		if err != nil {
			return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
		}
		role := domain.NewEntity(domain.NullID, id, domain.RootEntityID,
			domain.EntityTypePrincipalRole, domain.SubTypeNull, domain.ServiceAdminRoleName)
		if err := c.persistNewEntity(ctx, s, &role); err != nil {
			return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
		}
		serviceAdmin = &role
	}

	if err := c.ensureGrant(ctx, s, serviceAdmin, rootPrincipal, domain.PrivilegePrincipalRoleUsage); err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if err := c.ensureGrant(ctx, s, rootContainer, serviceAdmin, domain.PrivilegeServiceManageAccess); err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	c.logger.Info("metastore bootstrapped",
		"rootPrincipalId", rootPrincipal.ID, "serviceAdminRoleId", serviceAdmin.ID)
	return domain.OK()
}

// ensureGrant persists a grant only when it does not exist yet, keeping
// bootstrap retries from churning grant-records versions.
func (c *core) ensureGrant(ctx context.Context, s domain.Store, securable, grantee *domain.Entity, priv domain.Privilege) error {
	existing, err := s.LookupGrant(ctx, domain.NewGrantRecord(securable, grantee, priv))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = c.persistGrant(ctx, s, securable, grantee, priv)
	return err
}

func (c *core) purge(ctx context.Context, s domain.Store) domain.BaseResult {
	if err := s.DeleteAll(ctx); err != nil {
		return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	c.logger.Warn("metastore purged")
	return domain.OK()
}

// createPrincipal creates a principal with freshly generated secrets. A
// retry of a create whose entity already persisted reloads and returns the
// existing principal and secrets.
func (c *core) createPrincipal(ctx context.Context, s domain.Store, principal domain.Entity) domain.CreatePrincipalResult {
	existing, err := s.LookupEntity(ctx, principal.CatalogID, principal.ID)
	if err != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if existing != nil {
		return c.existingPrincipalResult(ctx, s, existing)
	}
	byName, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: domain.NullID, ParentID: domain.RootEntityID,
		TypeCode: domain.EntityTypePrincipal, Name: principal.Name,
	})
	if err != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if byName != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(byName.SubTypeCode))}
	}

	secrets, err := s.GenerateNewPrincipalSecrets(ctx, principal.Name, principal.ID)
	if err != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	internal, err := principal.InternalPropertiesMap()
	if err != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	internal[domain.ClientIDPropertyName] = secrets.PrincipalClientID
	if err := principal.SetInternalPropertiesMap(internal); err != nil {
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if err := c.persistNewEntity(ctx, s, &principal); err != nil {
		var exists *domain.EntityAlreadyExistsError
		if errors.As(err, &exists) {
			if exists.Existing.ID == principal.ID {
				return c.existingPrincipalResult(ctx, s, &exists.Existing)
			}
			return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(exists.Existing.SubTypeCode))}
		}
		return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return domain.CreatePrincipalResult{BaseResult: domain.OK(), Principal: &principal, Secrets: secrets}
}

// existingPrincipalResult settles a create retry against the persisted
// principal: usable only when it really is a principal with secrets.
func (c *core) existingPrincipalResult(ctx context.Context, s domain.Store, existing *domain.Entity) domain.CreatePrincipalResult {
	if existing.TypeCode == domain.EntityTypePrincipal {
		if clientID := existing.InternalProperty(domain.ClientIDPropertyName); clientID != "" {
			secrets, err := s.LoadPrincipalSecrets(ctx, clientID)
			if err != nil {
				return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
			}
			if secrets != nil {
				return domain.CreatePrincipalResult{BaseResult: domain.OK(), Principal: existing, Secrets: secrets}
			}
		}
	}
	return domain.CreatePrincipalResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(existing.SubTypeCode))}
}

// rotatePrincipalSecrets rotates the principal's credentials and maintains
// the rotation-required marker: a reset request plants it, the next regular
// rotation (forced into a reset by the marker) clears it.
func (c *core) rotatePrincipalSecrets(ctx context.Context, s domain.Store, clientID string, principalID int64, reset bool, oldSecretHash string) domain.PrincipalSecretsResult {
	principal, err := s.LookupEntity(ctx, domain.NullID, principalID)
	if err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if principal == nil || principal.TypeCode != domain.EntityTypePrincipal {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	internal, err := principal.InternalPropertiesMap()
	if err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	_, rotationRequired := internal[domain.CredentialRotationRequiredState]

	secrets, err := s.RotatePrincipalSecrets(ctx, clientID, principalID, reset || rotationRequired, oldSecretHash)
	if err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if secrets == nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}

	if reset && !rotationRequired {
		internal[domain.CredentialRotationRequiredState] = "true"
	} else if rotationRequired {
		delete(internal, domain.CredentialRotationRequiredState)
	} else {
		return domain.PrincipalSecretsResult{BaseResult: domain.OK(), Secrets: secrets}
	}
	original := *principal
	if err := principal.SetInternalPropertiesMap(internal); err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if err := c.persistEntityAfterChange(ctx, s, principal, false, original); err != nil {
		return domain.PrincipalSecretsResult{BaseResult: writeFailure(err)}
	}
	return domain.PrincipalSecretsResult{BaseResult: domain.OK(), Secrets: secrets}
}

// createCatalog creates a catalog with its storage integration and its admin
// catalog role, and grants usage on that role to the given principal roles
// (or to the service admin role when none are given).
func (c *core) createCatalog(ctx context.Context, s domain.Store, catalog domain.Entity, principalRoles []domain.Entity) domain.CreateCatalogResult {
	existing, err := s.LookupEntity(ctx, catalog.CatalogID, catalog.ID)
	if err != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if existing != nil {
		if existing.TypeCode != domain.EntityTypeCatalog {
			return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(existing.SubTypeCode))}
		}
		adminRole, err := s.LookupEntityByName(ctx, domain.ActiveKey{
			CatalogID: existing.ID, ParentID: existing.ID,
			TypeCode: domain.EntityTypeCatalogRole, Name: domain.CatalogAdminRoleName,
		})
		if err != nil {
			return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		return domain.CreateCatalogResult{BaseResult: domain.OK(), Catalog: existing, CatalogRole: adminRole}
	}
	byName, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: domain.NullID, ParentID: domain.RootEntityID,
		TypeCode: domain.EntityTypeCatalog, Name: catalog.Name,
	})
	if err != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if byName != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(byName.SubTypeCode))}
	}

	cfg, err := domain.ParseStorageConfigurationInfo(catalog.InternalProperty(domain.StorageConfigInfoPropertyName))
	if err != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if cfg != nil {
		if err := s.PersistStorageIntegration(ctx, catalog.CatalogID, catalog.ID, *cfg); err != nil {
			return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
	}
	if err := c.stashAuthSecret(&catalog); err != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if err := c.persistNewEntity(ctx, s, &catalog); err != nil {
		return domain.CreateCatalogResult{BaseResult: writeFailure(err)}
	}

	roleID, err := s.GenerateNewID(ctx)
	if err != nil {
		return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	adminRole := domain.NewEntity(catalog.ID, roleID, catalog.ID,
		domain.EntityTypeCatalogRole, domain.SubTypeNull, domain.CatalogAdminRoleName)
	if err := c.persistNewEntity(ctx, s, &adminRole); err != nil {
		return domain.CreateCatalogResult{BaseResult: writeFailure(err)}
	}
	if _, err := c.persistGrant(ctx, s, &catalog, &adminRole, domain.PrivilegeCatalogManageAccess); err != nil {
		return domain.CreateCatalogResult{BaseResult: writeFailure(err)}
	}
	if _, err := c.persistGrant(ctx, s, &catalog, &adminRole, domain.PrivilegeCatalogManageMetadata); err != nil {
		return domain.CreateCatalogResult{BaseResult: writeFailure(err)}
	}

	grantees := principalRoles
	if len(grantees) == 0 {
		serviceAdmin, err := s.LookupEntityByName(ctx, domain.ActiveKey{
			CatalogID: domain.NullID, ParentID: domain.RootEntityID,
			TypeCode: domain.EntityTypePrincipalRole, Name: domain.ServiceAdminRoleName,
		})
		if err != nil {
			return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if serviceAdmin == nil {
			return domain.CreateCatalogResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, "service admin role not found; is the metastore bootstrapped?")}
		}
		grantees = []domain.Entity{*serviceAdmin}
	}
	for i := range grantees {
		if _, err := c.persistGrant(ctx, s, &adminRole, &grantees[i], domain.PrivilegeCatalogRoleUsage); err != nil {
			return domain.CreateCatalogResult{BaseResult: writeFailure(err)}
		}
	}
	return domain.CreateCatalogResult{BaseResult: domain.OK(), Catalog: &catalog, CatalogRole: &adminRole}
}

// createEntityIfNotExists creates the entity unless a live entity with the
// same name key exists. A retry of the same id succeeds idempotently.
func (c *core) createEntityIfNotExists(ctx context.Context, s domain.Store, catalogPath []domain.Entity, entity domain.Entity) domain.EntityResult {
	_, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if !ok {
		return domain.EntityFailure(domain.StatusCatalogPathCannotBeResolved, "")
	}
	existing, err := s.LookupEntity(ctx, entity.CatalogID, entity.ID)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if existing != nil {
		if existing.Name == entity.Name && existing.TypeCode == entity.TypeCode {
			return domain.EntityFound(existing)
		}
		return domain.EntityFailure(domain.StatusEntityAlreadyExists, subTypeInfo(existing.SubTypeCode))
	}
	byName, err := s.LookupEntityByName(ctx, entity.ActiveKey())
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if byName != nil {
		return domain.EntityFailure(domain.StatusEntityAlreadyExists, subTypeInfo(byName.SubTypeCode))
	}
	if err := c.persistNewEntity(ctx, s, &entity); err != nil {
		var exists *domain.EntityAlreadyExistsError
		if errors.As(err, &exists) {
			if exists.Existing.ID == entity.ID && exists.Existing.Name == entity.Name && exists.Existing.TypeCode == entity.TypeCode {
				return domain.EntityFound(&exists.Existing)
			}
			return domain.EntityFailure(domain.StatusEntityAlreadyExists, subTypeInfo(exists.Existing.SubTypeCode))
		}
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	return domain.EntityFound(&entity)
}

// createEntitiesIfNotExist creates a batch as a unit: the first name
// conflict fails the whole batch, while entities already persisted from an
// earlier attempt are returned as-is.
func (c *core) createEntitiesIfNotExist(ctx context.Context, s domain.Store, catalogPath []domain.Entity, entities []domain.Entity) domain.EntitiesResult {
	_, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if !ok {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusCatalogPathCannotBeResolved, "")}
	}
	result := make([]domain.Entity, 0, len(entities))
	var toCreate []domain.Entity
	for i := range entities {
		entity := entities[i]
		existing, err := s.LookupEntity(ctx, entity.CatalogID, entity.ID)
		if err != nil {
			return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if existing != nil {
			if existing.Name == entity.Name && existing.TypeCode == entity.TypeCode {
				result = append(result, *existing)
				continue
			}
			return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(existing.SubTypeCode))}
		}
		byName, err := s.LookupEntityByName(ctx, entity.ActiveKey())
		if err != nil {
			return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if byName != nil {
			return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(byName.SubTypeCode))}
		}
		now := c.nowMillis()
		entity.CreateTimestamp = now
		entity.LastUpdateTimestamp = now
		if entity.EntityVersion == 0 {
			entity.EntityVersion = 1
		}
		if entity.GrantRecordsVersion == 0 {
			entity.GrantRecordsVersion = 1
		}
		toCreate = append(toCreate, entity)
		result = append(result, entity)
	}
	if len(toCreate) > 0 {
		if err := s.WriteEntities(ctx, toCreate); err != nil {
			return domain.EntitiesResult{BaseResult: writeFailure(err)}
		}
	}
	return domain.EntitiesResult{BaseResult: domain.OK(), Entities: result}
}

// updateEntityPropertiesIfNotChanged persists the entity's property payloads
// only if the persisted entity is still at the version the caller read.
func (c *core) updateEntityPropertiesIfNotChanged(ctx context.Context, s domain.Store, catalogPath []domain.Entity, entity domain.Entity) domain.EntityResult {
	_, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if !ok {
		return domain.EntityFailure(domain.StatusCatalogPathCannotBeResolved, "")
	}
	current, err := s.LookupEntity(ctx, entity.CatalogID, entity.ID)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if current == nil {
		return domain.EntityFailure(domain.StatusEntityNotFound, "")
	}
	if current.EntityVersion != entity.EntityVersion {
		return domain.EntityFailure(domain.StatusTargetEntityConcurrentlyModified, "")
	}
	updated := *current
	updated.Properties = entity.Properties
	updated.InternalProperties = entity.InternalProperties
	if err := c.persistEntityAfterChange(ctx, s, &updated, false, *current); err != nil {
		return entityWriteFailure(err)
	}
	return domain.EntityFound(&updated)
}

func (c *core) updateEntitiesPropertiesIfNotChanged(ctx context.Context, s domain.Store, entities []domain.EntityWithPath) domain.EntitiesResult {
	updated := make([]domain.Entity, 0, len(entities))
	for i := range entities {
		res := c.updateEntityPropertiesIfNotChanged(ctx, s, entities[i].CatalogPath, entities[i].Entity)
		if !res.IsSuccess() {
			return domain.EntitiesResult{BaseResult: res.BaseResult}
		}
		updated = append(updated, *res.Entity)
	}
	return domain.EntitiesResult{BaseResult: domain.OK(), Entities: updated}
}

// renameEntity renames and/or moves an entity under compare-and-swap
// semantics on the version the caller prepared the rename from.
func (c *core) renameEntity(ctx context.Context, s domain.Store, catalogPath []domain.Entity, entityToRename domain.Entity, newCatalogPath []domain.Entity, renamedEntity domain.Entity) domain.EntityResult {
	if entityToRename.TypeCode == domain.EntityTypeTask || isUndroppable(&entityToRename) {
		return domain.EntityFailure(domain.StatusEntityCannotBeRenamed, "")
	}
	_, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if !ok {
		return domain.EntityFailure(domain.StatusCatalogPathCannotBeResolved, "")
	}
	refreshed, err := resolveEntity(ctx, s, &entityToRename)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if refreshed == nil {
		return domain.EntityFailure(domain.StatusEntityCannotBeResolved, "")
	}
	// Re-check on the persisted entity: the caller-supplied struct is not
	// trusted for the name-keyed undroppable rule.
	if refreshed.TypeCode == domain.EntityTypeTask || isUndroppable(refreshed) {
		return domain.EntityFailure(domain.StatusEntityCannotBeRenamed, "")
	}
	if refreshed.EntityVersion != renamedEntity.EntityVersion {
		return domain.EntityFailure(domain.StatusTargetEntityConcurrentlyModified, "")
	}
	destPath := newCatalogPath
	if destPath == nil {
		destPath = catalogPath
	}
	destScope, ok, err := resolvePath(ctx, s, destPath)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if !ok {
		return domain.EntityFailure(domain.StatusCatalogPathCannotBeResolved, "")
	}
	taken, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: destScope.catalogID, ParentID: destScope.parentID,
		TypeCode: refreshed.TypeCode, Name: renamedEntity.Name,
	})
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if taken != nil {
		return domain.EntityFailure(domain.StatusEntityAlreadyExists, subTypeInfo(taken.SubTypeCode))
	}
	updated := *refreshed
	updated.ParentID = destScope.parentID
	updated.Name = renamedEntity.Name
	updated.Properties = renamedEntity.Properties
	updated.InternalProperties = renamedEntity.InternalProperties
	if err := c.persistEntityAfterChange(ctx, s, &updated, true, *refreshed); err != nil {
		return entityWriteFailure(err)
	}
	return domain.EntityFound(&updated)
}

// dropEntityIfExists drops an entity after its emptiness and droppability
// checks, and optionally schedules a cleanup task carrying the dropped
// entity's payload.
func (c *core) dropEntityIfExists(ctx context.Context, s domain.Store, catalogPath []domain.Entity, entityToDrop domain.Entity, cleanupProperties map[string]string, cleanup bool) domain.DropEntityResult {
	_, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if !ok {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusCatalogPathCannotBeResolved, "")}
	}
	refreshed, err := resolveEntity(ctx, s, &entityToDrop)
	if err != nil {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if refreshed == nil {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	if isUndroppable(refreshed) {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusEntityUndroppable, "")}
	}

	switch refreshed.TypeCode {
	case domain.EntityTypeCatalog:
		// A catalog must have no namespaces and no catalog role beyond the
		// admin role, which is dropped along with it.
		hasNamespaces, err := s.HasChildren(ctx, domain.EntityTypeNamespace, refreshed.ID, refreshed.ID)
		if err != nil {
			return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if hasNamespaces {
			return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusNamespaceNotEmpty, "")}
		}
		roles, err := s.ListEntities(ctx, refreshed.ID, refreshed.ID, domain.EntityTypeCatalogRole, 2, nil)
		if err != nil {
			return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if len(roles) > 1 {
			return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusCatalogNotEmpty, "")}
		}
		if len(roles) == 1 {
			if err := c.dropEntity(ctx, s, &roles[0]); err != nil {
				return domain.DropEntityResult{BaseResult: writeFailure(err)}
			}
		}
	case domain.EntityTypeNamespace:
		hasChildren, err := s.HasChildren(ctx, domain.EntityTypeNull, refreshed.CatalogID, refreshed.ID)
		if err != nil {
			return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if hasChildren {
			return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusNamespaceNotEmpty, "")}
		}
	}

	if err := c.dropEntity(ctx, s, refreshed); err != nil {
		return domain.DropEntityResult{BaseResult: writeFailure(err)}
	}
	if !cleanup {
		return domain.DropEntityResult{BaseResult: domain.OK()}
	}
	task, err := c.newCleanupTask(ctx, s, refreshed, cleanupProperties)
	if err != nil {
		return domain.DropEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	created := c.createEntityIfNotExists(ctx, s, nil, *task)
	if !created.IsSuccess() {
		return domain.DropEntityResult{BaseResult: created.BaseResult}
	}
	return domain.DropEntityResult{BaseResult: domain.OK(), CleanupTaskID: created.Entity.ID}
}

// usageGrantSides maps a role-usage request onto the grant to write: a
// principal receives usage on a principal role, a principal role receives
// usage on a catalog role.
func usageGrantSides(role, grantee *domain.Entity) (domain.Privilege, bool) {
	switch grantee.TypeCode {
	case domain.EntityTypePrincipal:
		if role.TypeCode == domain.EntityTypePrincipalRole {
			return domain.PrivilegePrincipalRoleUsage, true
		}
	case domain.EntityTypePrincipalRole:
		if role.TypeCode == domain.EntityTypeCatalogRole {
			return domain.PrivilegeCatalogRoleUsage, true
		}
	}
	return 0, false
}

func (c *core) grantUsageOnRoleToGrantee(ctx context.Context, s domain.Store, catalog *domain.Entity, role, grantee domain.Entity) domain.PrivilegeResult {
	priv, ok := usageGrantSides(&role, &grantee)
	if !ok {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "role and grantee types do not form a usage grant")}
	}
	securable, holder, failure := c.resolveGrantSides(ctx, s, catalog, &role, &grantee)
	if failure != nil {
		return *failure
	}
	grant, err := c.persistGrant(ctx, s, securable, holder, priv)
	if err != nil {
		return domain.PrivilegeResult{BaseResult: writeFailure(err)}
	}
	return domain.PrivilegeResult{BaseResult: domain.OK(), Grant: grant}
}

func (c *core) revokeUsageOnRoleFromGrantee(ctx context.Context, s domain.Store, catalog *domain.Entity, role, grantee domain.Entity) domain.PrivilegeResult {
	priv, ok := usageGrantSides(&role, &grantee)
	if !ok {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "role and grantee types do not form a usage grant")}
	}
	securable, holder, failure := c.resolveGrantSides(ctx, s, catalog, &role, &grantee)
	if failure != nil {
		return *failure
	}
	grant, found, err := c.revokeGrant(ctx, s, securable, holder, priv)
	if err != nil {
		return domain.PrivilegeResult{BaseResult: writeFailure(err)}
	}
	if !found {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusGrantNotFound, "")}
	}
	return domain.PrivilegeResult{BaseResult: domain.OK(), Grant: grant}
}

// resolveGrantSides re-reads the role (under its catalog, when given) and
// the grantee, so the grant is written against live entities.
func (c *core) resolveGrantSides(ctx context.Context, s domain.Store, catalog *domain.Entity, role, grantee *domain.Entity) (*domain.Entity, *domain.Entity, *domain.PrivilegeResult) {
	if catalog != nil {
		_, ok, err := resolvePath(ctx, s, []domain.Entity{*catalog})
		if err != nil {
			return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if !ok {
			return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusCatalogPathCannotBeResolved, "")}
		}
	}
	liveRole, err := resolveEntity(ctx, s, role)
	if err != nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if liveRole == nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "role not found")}
	}
	liveGrantee, err := resolveEntity(ctx, s, grantee)
	if err != nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if liveGrantee == nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "grantee not found")}
	}
	return liveRole, liveGrantee, nil
}

func (c *core) grantPrivilegeOnSecurableToRole(ctx context.Context, s domain.Store, grantee domain.Entity, catalogPath []domain.Entity, securable domain.Entity, priv domain.Privilege) domain.PrivilegeResult {
	liveSecurable, liveGrantee, failure := c.resolveSecurableAndRole(ctx, s, &grantee, catalogPath, &securable)
	if failure != nil {
		return *failure
	}
	grant, err := c.persistGrant(ctx, s, liveSecurable, liveGrantee, priv)
	if err != nil {
		return domain.PrivilegeResult{BaseResult: writeFailure(err)}
	}
	return domain.PrivilegeResult{BaseResult: domain.OK(), Grant: grant}
}

func (c *core) revokePrivilegeOnSecurableFromRole(ctx context.Context, s domain.Store, grantee domain.Entity, catalogPath []domain.Entity, securable domain.Entity, priv domain.Privilege) domain.PrivilegeResult {
	liveSecurable, liveGrantee, failure := c.resolveSecurableAndRole(ctx, s, &grantee, catalogPath, &securable)
	if failure != nil {
		return *failure
	}
	grant, found, err := c.revokeGrant(ctx, s, liveSecurable, liveGrantee, priv)
	if err != nil {
		return domain.PrivilegeResult{BaseResult: writeFailure(err)}
	}
	if !found {
		return domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusGrantNotFound, "")}
	}
	return domain.PrivilegeResult{BaseResult: domain.OK(), Grant: grant}
}

func (c *core) resolveSecurableAndRole(ctx context.Context, s domain.Store, grantee *domain.Entity, catalogPath []domain.Entity, securable *domain.Entity) (*domain.Entity, *domain.Entity, *domain.PrivilegeResult) {
	_, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if !ok {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusCatalogPathCannotBeResolved, "")}
	}
	liveSecurable, err := resolveEntity(ctx, s, securable)
	if err != nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if liveSecurable == nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "securable not found")}
	}
	liveGrantee, err := resolveEntity(ctx, s, grantee)
	if err != nil {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if liveGrantee == nil || liveGrantee.TypeCode != domain.EntityTypeCatalogRole {
		return nil, nil, &domain.PrivilegeResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "catalog role not found")}
	}
	return liveSecurable, liveGrantee, nil
}

// loadTasks leases up to limit available tasks to executorID.
// skipConflicts controls what a lost lease race does: skip the task (the
// per-write compare-and-swap strategy) or fail the operation (inside a
// serializable transaction a lost race means the whole read set is stale).
func (c *core) loadTasks(ctx context.Context, s domain.Store, executorID string, limit int, skipConflicts bool) domain.EntitiesResult {
	available, err := s.ListEntities(ctx, domain.NullID, domain.RootEntityID, domain.EntityTypeTask, limit, c.taskAvailable)
	if err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	leased := make([]domain.Entity, 0, len(available))
	conflicts := 0
	for i := range available {
		task, err := c.leaseTask(ctx, s, available[i], executorID)
		if err != nil {
			var conflict *domain.ConcurrentModificationError
			if skipConflicts && errors.As(err, &conflict) {
				conflicts++
				c.logger.Debug("task lease lost to concurrent executor", "taskId", available[i].ID)
				continue
			}
			return domain.EntitiesResult{BaseResult: writeFailure(err)}
		}
		leased = append(leased, task)
	}
	if len(leased) == 0 && conflicts > 0 {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusTargetEntityConcurrentlyModified, "")}
	}
	return domain.EntitiesResult{BaseResult: domain.OK(), Entities: leased}
}

// writeFailure maps a store write error onto the operation status it means.
func writeFailure(err error) domain.BaseResult {
	var exists *domain.EntityAlreadyExistsError
	if errors.As(err, &exists) {
		return domain.Failed(domain.StatusEntityAlreadyExists, subTypeInfo(exists.Existing.SubTypeCode))
	}
	var conflict *domain.ConcurrentModificationError
	if errors.As(err, &conflict) {
		return domain.Failed(domain.StatusTargetEntityConcurrentlyModified, conflict.Message)
	}
	return domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
}

func entityWriteFailure(err error) domain.EntityResult {
	return domain.EntityResult{BaseResult: writeFailure(err)}
}
