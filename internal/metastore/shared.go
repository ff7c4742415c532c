package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"icemeta/internal/domain"
)

// persistNewEntity stamps creation metadata and writes the entity as a
// create. Store-level conflicts come back as *EntityAlreadyExistsError.
func (c *core) persistNewEntity(ctx context.Context, s domain.Store, e *domain.Entity) error {
	now := c.nowMillis()
	e.CreateTimestamp = now
	e.LastUpdateTimestamp = now
	if e.EntityVersion == 0 {
		e.EntityVersion = 1
	}
	if e.GrantRecordsVersion == 0 {
		e.GrantRecordsVersion = 1
	}
	return s.WriteEntity(ctx, *e, true, nil)
}

// persistEntityAfterChange bumps the entity version, restamps the update
// time, and writes guarded by original.
func (c *core) persistEntityAfterChange(ctx context.Context, s domain.Store, e *domain.Entity, nameOrParentChanged bool, original domain.Entity) error {
	e.EntityVersion++
	e.LastUpdateTimestamp = c.nowMillis()
	return s.WriteEntity(ctx, *e, nameOrParentChanged, &original)
}

// bumpGrantRecordsVersion advances only the grant-records version; the
// entity version is untouched so cached entity payloads stay valid.
func (c *core) bumpGrantRecordsVersion(ctx context.Context, s domain.Store, e *domain.Entity) error {
	original := *e
	e.GrantRecordsVersion++
	e.LastUpdateTimestamp = c.nowMillis()
	return s.WriteEntity(ctx, *e, false, &original)
}

// persistGrant writes the grant record and advances the grant-records
// version on both sides.
func (c *core) persistGrant(ctx context.Context, s domain.Store, securable, grantee *domain.Entity, priv domain.Privilege) (*domain.GrantRecord, error) {
	grant := domain.NewGrantRecord(securable, grantee, priv)
	if err := s.WriteGrant(ctx, grant); err != nil {
		return nil, err
	}
	if err := c.bumpGrantRecordsVersion(ctx, s, securable); err != nil {
		return nil, err
	}
	if err := c.bumpGrantRecordsVersion(ctx, s, grantee); err != nil {
		return nil, err
	}
	return &grant, nil
}

// revokeGrant deletes the grant record and advances the grant-records
// version on both sides. found is false when no such grant exists.
func (c *core) revokeGrant(ctx context.Context, s domain.Store, securable, grantee *domain.Entity, priv domain.Privilege) (*domain.GrantRecord, bool, error) {
	grant := domain.NewGrantRecord(securable, grantee, priv)
	existing, err := s.LookupGrant(ctx, grant)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, nil
	}
	if err := s.DeleteGrant(ctx, grant); err != nil {
		return nil, false, err
	}
	if err := c.bumpGrantRecordsVersion(ctx, s, securable); err != nil {
		return nil, false, err
	}
	if err := c.bumpGrantRecordsVersion(ctx, s, grantee); err != nil {
		return nil, false, err
	}
	return &grant, true, nil
}

// counterpartyIDs collects the distinct entities on the other side of the
// given grants, excluding the entity itself.
func counterpartyIDs(entity *domain.Entity, onSecurable, toGrantee []domain.GrantRecord) []domain.EntityID {
	self := entity.EntityID()
	seen := map[domain.EntityID]bool{self: true}
	var ids []domain.EntityID
	for i := range onSecurable {
		id := onSecurable[i].GranteeEntityID()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for i := range toGrantee {
		id := toGrantee[i].SecurableEntityID()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// dropEntity performs the unconditional part of a drop: detach every grant
// the entity participates in (advancing the counterparties' grant-records
// versions so their caches invalidate), delete the entity, and delete the
// secrets of a dropped principal.
func (c *core) dropEntity(ctx context.Context, s domain.Store, entity *domain.Entity) error {
	onSecurable, err := s.LoadAllGrantsOnSecurable(ctx, entity.CatalogID, entity.ID)
	if err != nil {
		return err
	}
	toGrantee, err := s.LoadAllGrantsToGrantee(ctx, entity.CatalogID, entity.ID)
	if err != nil {
		return err
	}
	for _, id := range counterpartyIDs(entity, onSecurable, toGrantee) {
		other, err := s.LookupEntity(ctx, id.CatalogID, id.ID)
		if err != nil {
			return err
		}
		if other == nil {
			continue
		}
		if err := c.bumpGrantRecordsVersion(ctx, s, other); err != nil {
			return err
		}
	}
	if err := s.DeleteAllEntityGrants(ctx, *entity, onSecurable, toGrantee); err != nil {
		return err
	}
	if err := s.DeleteEntity(ctx, entity.CatalogID, entity.ID); err != nil {
		return err
	}
	if entity.TypeCode == domain.EntityTypePrincipal {
		if clientID := entity.InternalProperty(domain.ClientIDPropertyName); clientID != "" {
			if err := s.DeletePrincipalSecrets(ctx, clientID, entity.ID); err != nil {
				return err
			}
		}
	}
	c.deleteAuthSecret(entity)
	return nil
}

// stashAuthSecret moves a plaintext auth secret off the entity into the user
// secrets manager, leaving only the reference. Without a secrets manager the
// property is passed through untouched.
func (c *core) stashAuthSecret(entity *domain.Entity) error {
	if c.secrets == nil {
		return nil
	}
	props, err := entity.InternalPropertiesMap()
	if err != nil {
		return err
	}
	secret, ok := props[domain.AuthSecretPropertyName]
	if !ok || secret == "" {
		return nil
	}
	ref, err := c.secrets.WriteSecret(secret, entity)
	if err != nil {
		return fmt.Errorf("stash auth secret: %w", err)
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	delete(props, domain.AuthSecretPropertyName)
	props[domain.AuthSecretReferencePropertyName] = string(payload)
	return entity.SetInternalPropertiesMap(props)
}

// deleteAuthSecret removes the remote secret referenced by a dropped entity.
// Failures are logged, not surfaced: the entity is already gone and the
// orphaned secret is unreachable without its reference anyway.
func (c *core) deleteAuthSecret(entity *domain.Entity) {
	if c.secrets == nil {
		return
	}
	payload := entity.InternalProperty(domain.AuthSecretReferencePropertyName)
	if payload == "" {
		return
	}
	var ref domain.UserSecretReference
	if err := json.Unmarshal([]byte(payload), &ref); err != nil {
		c.logger.Warn("unparseable auth secret reference on dropped entity",
			"entity_id", entity.ID, "error", err)
		return
	}
	if err := c.secrets.DeleteSecret(ref); err != nil {
		c.logger.Warn("could not delete auth secret of dropped entity",
			"entity_id", entity.ID, "urn", ref.URN, "error", err)
	}
}

// newCleanupTask builds the TASK entity that carries a dropped entity to the
// asynchronous cleanup executor. The dropped entity rides along serialized in
// the task's data property.
func (c *core) newCleanupTask(ctx context.Context, s domain.Store, dropped *domain.Entity, cleanupProperties map[string]string) (*domain.Entity, error) {
	id, err := s.GenerateNewID(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(dropped)
	if err != nil {
		return nil, fmt.Errorf("serialize dropped entity: %w", err)
	}
	task := domain.NewEntity(domain.NullID, id, domain.RootEntityID,
		domain.EntityTypeTask, domain.SubTypeNull, domain.CleanupTaskName(dropped.ID))
	props := map[string]string{
		domain.TaskTypeProperty: strconv.Itoa(int(domain.TaskTypeEntityCleanupScheduler)),
		domain.TaskDataProperty: string(payload),
	}
	if err := task.SetPropertiesMap(props); err != nil {
		return nil, err
	}
	if err := task.SetInternalPropertiesMap(cleanupProperties); err != nil {
		return nil, err
	}
	return &task, nil
}

// taskAvailable reports whether a task can be leased now: it was never
// attempted, or its last lease expired.
func (c *core) taskAvailable(e *domain.Entity) bool {
	props, err := e.PropertiesMap()
	if err != nil {
		return false
	}
	attempts, _ := strconv.Atoi(props[domain.TaskAttemptCountProperty])
	if attempts == 0 {
		return true
	}
	last, _ := strconv.ParseInt(props[domain.TaskLastAttemptStartTimeProperty], 10, 64)
	return last+c.taskTimeout < c.nowMillis()
}

// leaseTask records the lease on the task entity and persists it guarded by
// the state the task was listed at.
func (c *core) leaseTask(ctx context.Context, s domain.Store, task domain.Entity, executorID string) (domain.Entity, error) {
	original := task
	props, err := task.PropertiesMap()
	if err != nil {
		return task, err
	}
	attempts, _ := strconv.Atoi(props[domain.TaskAttemptCountProperty])
	props[domain.TaskAttemptCountProperty] = strconv.Itoa(attempts + 1)
	props[domain.TaskLastAttemptExecutorIDProperty] = executorID
	props[domain.TaskLastAttemptStartTimeProperty] = strconv.FormatInt(c.nowMillis(), 10)
	if err := task.SetPropertiesMap(props); err != nil {
		return task, err
	}
	if err := c.persistEntityAfterChange(ctx, s, &task, false, original); err != nil {
		return task, err
	}
	return task, nil
}
