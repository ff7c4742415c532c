package metastore

import (
	"context"

	"icemeta/internal/domain"
)

func (c *core) generateNewEntityID(ctx context.Context, s domain.Store) domain.GenerateEntityIDResult {
	id, err := s.GenerateNewID(ctx)
	if err != nil {
		return domain.GenerateEntityIDResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return domain.GenerateEntityIDResult{BaseResult: domain.OK(), ID: id}
}

func (c *core) readEntityByName(ctx context.Context, s domain.Store, catalogPath []domain.Entity, typ domain.EntityType, subType domain.EntitySubType, name string) domain.EntityResult {
	sc, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if !ok {
		return domain.EntityFailure(domain.StatusCatalogPathCannotBeResolved, "")
	}
	entity, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: sc.catalogID, ParentID: sc.parentID, TypeCode: typ, Name: name,
	})
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if entity == nil || (subType != domain.SubTypeAny && entity.SubTypeCode != subType) {
		return domain.EntityFailure(domain.StatusEntityNotFound, "")
	}
	return domain.EntityFound(entity)
}

func (c *core) listEntities(ctx context.Context, s domain.Store, catalogPath []domain.Entity, typ domain.EntityType, subType domain.EntitySubType) domain.EntitiesResult {
	sc, ok, err := resolvePath(ctx, s, catalogPath)
	if err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if !ok {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusCatalogPathCannotBeResolved, "")}
	}
	var filter func(*domain.Entity) bool
	if subType != domain.SubTypeAny {
		filter = func(e *domain.Entity) bool { return e.SubTypeCode == subType }
	}
	entities, err := s.ListEntities(ctx, sc.catalogID, sc.parentID, typ, 0, filter)
	if err != nil {
		return domain.EntitiesResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return domain.EntitiesResult{BaseResult: domain.OK(), Entities: entities}
}

func (c *core) loadEntity(ctx context.Context, s domain.Store, catalogID, id int64) domain.EntityResult {
	entity, err := s.LookupEntity(ctx, catalogID, id)
	if err != nil {
		return domain.EntityFailure(domain.StatusUnexpectedErrorSignaled, err.Error())
	}
	if entity == nil {
		return domain.EntityFailure(domain.StatusEntityNotFound, "")
	}
	return domain.EntityFound(entity)
}

func (c *core) loadEntitiesChangeTracking(ctx context.Context, s domain.Store, ids []domain.EntityID) domain.ChangeTrackingResult {
	versions, err := s.LookupEntityVersions(ctx, ids)
	if err != nil {
		return domain.ChangeTrackingResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return domain.ChangeTrackingResult{BaseResult: domain.OK(), Versions: versions}
}

func (c *core) loadPrincipalSecrets(ctx context.Context, s domain.Store, clientID string) domain.PrincipalSecretsResult {
	secrets, err := s.LoadPrincipalSecrets(ctx, clientID)
	if err != nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if secrets == nil {
		return domain.PrincipalSecretsResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	return domain.PrincipalSecretsResult{BaseResult: domain.OK(), Secrets: secrets}
}

// loadGrants returns the grants on one side of an entity plus the distinct
// entities on the other side of those grants.
func (c *core) loadGrants(ctx context.Context, s domain.Store, catalogID, id int64, onSecurable bool) domain.LoadGrantsResult {
	entity, err := s.LookupEntity(ctx, catalogID, id)
	if err != nil {
		return domain.LoadGrantsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if entity == nil {
		return domain.LoadGrantsResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	var grants []domain.GrantRecord
	if onSecurable {
		grants, err = s.LoadAllGrantsOnSecurable(ctx, catalogID, id)
	} else {
		grants, err = s.LoadAllGrantsToGrantee(ctx, catalogID, id)
	}
	if err != nil {
		return domain.LoadGrantsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	seen := map[domain.EntityID]bool{}
	var others []domain.Entity
	for i := range grants {
		var otherID domain.EntityID
		if onSecurable {
			otherID = grants[i].GranteeEntityID()
		} else {
			otherID = grants[i].SecurableEntityID()
		}
		if seen[otherID] {
			continue
		}
		seen[otherID] = true
		other, err := s.LookupEntity(ctx, otherID.CatalogID, otherID.ID)
		if err != nil {
			return domain.LoadGrantsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		if other != nil {
			others = append(others, *other)
		}
	}
	return domain.LoadGrantsResult{
		BaseResult:    domain.OK(),
		GrantsVersion: entity.GrantRecordsVersion,
		Grants:        grants,
		Entities:      others,
	}
}

// resolvedGrants loads every grant an entity participates in: all grants on
// it as a securable plus, for grantee types, all grants to it.
func (c *core) resolvedGrants(ctx context.Context, s domain.Store, entity *domain.Entity) ([]domain.GrantRecord, error) {
	grants, err := s.LoadAllGrantsOnSecurable(ctx, entity.CatalogID, entity.ID)
	if err != nil {
		return nil, err
	}
	if entity.TypeCode.IsGrantee() {
		toGrantee, err := s.LoadAllGrantsToGrantee(ctx, entity.CatalogID, entity.ID)
		if err != nil {
			return nil, err
		}
		grants = append(grants, toGrantee...)
	}
	return grants, nil
}

func (c *core) loadResolvedEntityByID(ctx context.Context, s domain.Store, catalogID, id int64) domain.ResolvedEntityResult {
	entity, err := s.LookupEntity(ctx, catalogID, id)
	if err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if entity == nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	return c.resolvedResult(ctx, s, entity)
}

func (c *core) loadResolvedEntityByName(ctx context.Context, s domain.Store, catalogID, parentID int64, typ domain.EntityType, name string) domain.ResolvedEntityResult {
	entity, err := s.LookupEntityByName(ctx, domain.ActiveKey{
		CatalogID: catalogID, ParentID: parentID, TypeCode: typ, Name: name,
	})
	if err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if entity == nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	return c.resolvedResult(ctx, s, entity)
}

func (c *core) resolvedResult(ctx context.Context, s domain.Store, entity *domain.Entity) domain.ResolvedEntityResult {
	grants, err := c.resolvedGrants(ctx, s, entity)
	if err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	return domain.ResolvedEntityResult{
		BaseResult:    domain.OK(),
		Entity:        entity,
		GrantsVersion: entity.GrantRecordsVersion,
		Grants:        grants,
	}
}

// refreshResolvedEntity returns only the parts of a cached resolved entity
// whose versions moved since the caller's snapshot.
func (c *core) refreshResolvedEntity(ctx context.Context, s domain.Store, versions domain.ChangeTrackingVersions, catalogID int64, typ domain.EntityType, id int64) domain.ResolvedEntityResult {
	entity, err := s.LookupEntity(ctx, catalogID, id)
	if err != nil {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if entity == nil || entity.TypeCode != typ {
		return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	res := domain.ResolvedEntityResult{BaseResult: domain.OK(), GrantsVersion: entity.GrantRecordsVersion}
	if entity.EntityVersion != versions.EntityVersion {
		res.Entity = entity
	}
	if entity.GrantRecordsVersion != versions.GrantRecordsVersion {
		grants, err := c.resolvedGrants(ctx, s, entity)
		if err != nil {
			return domain.ResolvedEntityResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
		}
		res.Grants = grants
	}
	return res
}
