package metastore

import (
	"context"

	"icemeta/internal/domain"
)

// storageIntegrationFor loads the entity's storage configuration, preferring
// the persisted integration slice and falling back to the configuration
// serialized on the entity itself (tables carry their own copy), and builds
// an integration for it.
func (c *core) storageIntegrationFor(ctx context.Context, s domain.Store, entity *domain.Entity) (domain.StorageIntegration, *domain.BaseResult) {
	if c.storage == nil {
		r := domain.Failed(domain.StatusSubscopeCredsError, "no storage integration provider configured")
		return nil, &r
	}
	cfg, err := s.LoadStorageIntegration(ctx, entity.CatalogID, entity.ID)
	if err != nil {
		r := domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())
		return nil, &r
	}
	if cfg == nil {
		cfg, err = domain.ParseStorageConfigurationInfo(entity.InternalProperty(domain.StorageConfigInfoPropertyName))
		if err != nil {
			r := domain.Failed(domain.StatusSubscopeCredsError, err.Error())
			return nil, &r
		}
	}
	if cfg == nil {
		r := domain.Failed(domain.StatusSubscopeCredsError, "entity has no storage configuration")
		return nil, &r
	}
	integration, err := c.storage.CreateIntegration(ctx, cfg)
	if err != nil {
		r := domain.Failed(domain.StatusSubscopeCredsError, err.Error())
		return nil, &r
	}
	return integration, nil
}

func (c *core) getSubscopedCreds(ctx context.Context, s domain.Store, catalogID, id int64, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) domain.ScopedCredentialsResult {
	entity, err := s.LookupEntity(ctx, catalogID, id)
	if err != nil {
		return domain.ScopedCredentialsResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if entity == nil {
		return domain.ScopedCredentialsResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	integration, failure := c.storageIntegrationFor(ctx, s, entity)
	if failure != nil {
		return domain.ScopedCredentialsResult{BaseResult: *failure}
	}
	creds, err := integration.SubscopeCredentials(ctx, allowListOperation, allowedReadLocations, allowedWriteLocations)
	if err != nil {
		return domain.ScopedCredentialsResult{BaseResult: domain.Failed(domain.StatusSubscopeCredsError, err.Error())}
	}
	return domain.ScopedCredentialsResult{BaseResult: domain.OK(), Credentials: creds}
}

func (c *core) validateAccessToLocations(ctx context.Context, s domain.Store, catalogID, id int64, actions []domain.StorageAction, locations []string) domain.ValidateAccessResult {
	entity, err := s.LookupEntity(ctx, catalogID, id)
	if err != nil {
		return domain.ValidateAccessResult{BaseResult: domain.Failed(domain.StatusUnexpectedErrorSignaled, err.Error())}
	}
	if entity == nil {
		return domain.ValidateAccessResult{BaseResult: domain.Failed(domain.StatusEntityNotFound, "")}
	}
	integration, failure := c.storageIntegrationFor(ctx, s, entity)
	if failure != nil {
		return domain.ValidateAccessResult{BaseResult: *failure}
	}
	results, err := integration.ValidateAccess(ctx, actions, locations)
	if err != nil {
		return domain.ValidateAccessResult{BaseResult: domain.Failed(domain.StatusSubscopeCredsError, err.Error())}
	}
	return domain.ValidateAccessResult{BaseResult: domain.OK(), Results: results}
}
