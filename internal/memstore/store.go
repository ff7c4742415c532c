// Package memstore provides the in-memory persistence backend. Every
// operation is individually atomic under one mutex, which is exactly the
// contract the atomic manager strategy needs; it is also the reference
// backend for tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"icemeta/internal/domain"
)

var _ domain.Store = (*Store)(nil)

type grantKey struct {
	securableCatalogID int64
	securableID        int64
	granteeCatalogID   int64
	granteeID          int64
	privilegeCode      domain.Privilege
}

func keyOf(g domain.GrantRecord) grantKey {
	return grantKey{g.SecurableCatalogID, g.SecurableID, g.GranteeCatalogID, g.GranteeID, g.PrivilegeCode}
}

// Store keeps every slice in maps guarded by a single mutex.
type Store struct {
	mu           sync.Mutex
	nextID       int64
	entities     map[domain.EntityID]domain.Entity
	byName       map[domain.ActiveKey]domain.EntityID
	grants       map[grantKey]domain.GrantRecord
	secrets      map[string]domain.PrincipalSecrets
	integrations map[domain.EntityID]domain.StorageConfigurationInfo
}

// New creates an empty store. IDs are allocated from 1000 upward so
// well-known low ids stay out of the way.
func New() *Store {
	return &Store{
		nextID:       1000,
		entities:     map[domain.EntityID]domain.Entity{},
		byName:       map[domain.ActiveKey]domain.EntityID{},
		grants:       map[grantKey]domain.GrantRecord{},
		secrets:      map[string]domain.PrincipalSecrets{},
		integrations: map[domain.EntityID]domain.StorageConfigurationInfo{},
	}
}

// GenerateNewID allocates the next id.
func (s *Store) GenerateNewID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id, nil
}

// WriteEntity persists an entity under compare-and-swap semantics.
func (s *Store) WriteEntity(ctx context.Context, entity domain.Entity, nameOrParentChanged bool, original *domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeEntityLocked(entity, nameOrParentChanged, original)
}

func (s *Store) writeEntityLocked(entity domain.Entity, nameOrParentChanged bool, original *domain.Entity) error {
	eid := entity.EntityID()
	persisted, exists := s.entities[eid]

	if original == nil {
		if exists {
			return &domain.EntityAlreadyExistsError{Existing: persisted}
		}
		if winnerID, taken := s.byName[entity.ActiveKey()]; taken {
			winner := s.entities[winnerID]
			return &domain.EntityAlreadyExistsError{Existing: winner}
		}
		s.entities[eid] = entity
		s.byName[entity.ActiveKey()] = eid
		return nil
	}

	if !exists {
		return domain.ErrConcurrentModification("entity (%d, %d) was concurrently purged", entity.CatalogID, entity.ID)
	}
	if persisted.EntityVersion != original.EntityVersion ||
		persisted.GrantRecordsVersion != original.GrantRecordsVersion {
		return domain.ErrConcurrentModification(
			"entity (%d, %d) is no longer at version %d", entity.CatalogID, entity.ID, original.EntityVersion)
	}
	if nameOrParentChanged {
		newKey := entity.ActiveKey()
		if winnerID, taken := s.byName[newKey]; taken && winnerID != eid {
			winner := s.entities[winnerID]
			return &domain.EntityAlreadyExistsError{Existing: winner}
		}
		delete(s.byName, persisted.ActiveKey())
		s.byName[newKey] = eid
	}
	s.entities[eid] = entity
	return nil
}

// WriteEntities applies the batch atomically; a same-id collision is an
// idempotent retry and is skipped.
func (s *Store) WriteEntities(ctx context.Context, entities []domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the whole batch before mutating anything.
	staged := make([]domain.Entity, 0, len(entities))
	for _, e := range entities {
		if _, exists := s.entities[e.EntityID()]; exists {
			// Same id already persisted: idempotent retry.
			continue
		}
		if winnerID, taken := s.byName[e.ActiveKey()]; taken && winnerID != e.EntityID() {
			winner := s.entities[winnerID]
			return &domain.EntityAlreadyExistsError{Existing: winner}
		}
		staged = append(staged, e)
	}
	for _, e := range staged {
		s.entities[e.EntityID()] = e
		s.byName[e.ActiveKey()] = e.EntityID()
	}
	return nil
}

// DeleteEntity removes an entity and its name-index record.
func (s *Store) DeleteEntity(ctx context.Context, catalogID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	eid := domain.EntityID{CatalogID: catalogID, ID: id}
	if e, ok := s.entities[eid]; ok {
		delete(s.byName, e.ActiveKey())
		delete(s.entities, eid)
	}
	return nil
}

// LookupEntity finds an entity by id, or returns (nil, nil).
func (s *Store) LookupEntity(ctx context.Context, catalogID, id int64) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entities[domain.EntityID{CatalogID: catalogID, ID: id}]; ok {
		return &e, nil
	}
	return nil, nil
}

// LookupEntities finds a batch of entities aligned with ids.
func (s *Store) LookupEntities(ctx context.Context, ids []domain.EntityID) ([]*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Entity, len(ids))
	for i, id := range ids {
		if e, ok := s.entities[id]; ok {
			copied := e
			out[i] = &copied
		}
	}
	return out, nil
}

// LookupEntityVersions returns change-tracking versions aligned with ids.
func (s *Store) LookupEntityVersions(ctx context.Context, ids []domain.EntityID) ([]*domain.ChangeTrackingVersions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ChangeTrackingVersions, len(ids))
	for i, id := range ids {
		if e, ok := s.entities[id]; ok {
			v := e.Versions()
			out[i] = &v
		}
	}
	return out, nil
}

// LookupEntityByName finds a live entity by its active-name key.
func (s *Store) LookupEntityByName(ctx context.Context, key domain.ActiveKey) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eid, ok := s.byName[key]; ok {
		e := s.entities[eid]
		return &e, nil
	}
	return nil, nil
}

// ListEntities returns live entities under (catalogID, parentID) of the
// given type, name-ordered.
func (s *Store) ListEntities(ctx context.Context, catalogID, parentID int64, typ domain.EntityType, limit int, filter func(*domain.Entity) bool) ([]domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Entity
	for _, e := range s.entities {
		if e.CatalogID != catalogID || e.ParentID != parentID || e.TypeCode != typ {
			continue
		}
		e := e
		if filter != nil && !filter(&e) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// HasChildren reports whether a live child of the given type exists.
func (s *Store) HasChildren(ctx context.Context, typ domain.EntityType, catalogID, parentID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.CatalogID == catalogID && e.ParentID == parentID &&
			(typ == domain.EntityTypeNull || e.TypeCode == typ) {
			// The root container is its own parent; it is not a child.
			if e.TypeCode == domain.EntityTypeRoot && e.ID == parentID {
				continue
			}
			return true, nil
		}
	}
	return false, nil
}

// WriteGrant persists a grant record; re-writing is a no-op.
func (s *Store) WriteGrant(ctx context.Context, grant domain.GrantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[keyOf(grant)] = grant
	return nil
}

// DeleteGrant removes a grant record.
func (s *Store) DeleteGrant(ctx context.Context, grant domain.GrantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(grant)
	if _, ok := s.grants[k]; !ok {
		return domain.ErrNotFound("grant record not found")
	}
	delete(s.grants, k)
	return nil
}

// LookupGrant finds the exact grant record, or returns (nil, nil).
func (s *Store) LookupGrant(ctx context.Context, grant domain.GrantRecord) (*domain.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.grants[keyOf(grant)]; ok {
		return &g, nil
	}
	return nil, nil
}

// LoadAllGrantsOnSecurable returns all grants where the entity is the
// securable.
func (s *Store) LoadAllGrantsOnSecurable(ctx context.Context, catalogID, id int64) ([]domain.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GrantRecord
	for _, g := range s.grants {
		if g.SecurableCatalogID == catalogID && g.SecurableID == id {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

// LoadAllGrantsToGrantee returns all grants where the entity is the grantee.
func (s *Store) LoadAllGrantsToGrantee(ctx context.Context, catalogID, id int64) ([]domain.GrantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GrantRecord
	for _, g := range s.grants {
		if g.GranteeCatalogID == catalogID && g.GranteeID == id {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

func sortGrants(grants []domain.GrantRecord) {
	sort.Slice(grants, func(i, j int) bool {
		a, b := grants[i], grants[j]
		if a.SecurableID != b.SecurableID {
			return a.SecurableID < b.SecurableID
		}
		if a.GranteeID != b.GranteeID {
			return a.GranteeID < b.GranteeID
		}
		return a.PrivilegeCode < b.PrivilegeCode
	})
}

// DeleteAllEntityGrants removes every grant attached to the entity on either
// side.
func (s *Store) DeleteAllEntityGrants(ctx context.Context, entity domain.Entity, grantsOnSecurable, grantsToGrantee []domain.GrantRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, g := range s.grants {
		if (g.SecurableCatalogID == entity.CatalogID && g.SecurableID == entity.ID) ||
			(g.GranteeCatalogID == entity.CatalogID && g.GranteeID == entity.ID) {
			delete(s.grants, k)
		}
	}
	return nil
}

// GenerateNewPrincipalSecrets creates and stores secrets for a new principal.
func (s *Store) GenerateNewPrincipalSecrets(ctx context.Context, principalName string, principalID int64) (*domain.PrincipalSecrets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		secrets := domain.NewPrincipalSecrets(principalID)
		if _, taken := s.secrets[secrets.PrincipalClientID]; taken {
			continue
		}
		s.secrets[secrets.PrincipalClientID] = *secrets
		return secrets, nil
	}
}

// LoadPrincipalSecrets finds secrets by client id, or returns (nil, nil).
func (s *Store) LoadPrincipalSecrets(ctx context.Context, clientID string) (*domain.PrincipalSecrets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if secrets, ok := s.secrets[clientID]; ok {
		return &secrets, nil
	}
	return nil, nil
}

// RotatePrincipalSecrets rotates or resets the stored secrets. A stale
// oldMainSecretHash means the rotation already happened; the current secrets
// are returned unchanged.
func (s *Store) RotatePrincipalSecrets(ctx context.Context, clientID string, principalID int64, reset bool, oldMainSecretHash string) (*domain.PrincipalSecrets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	secrets, ok := s.secrets[clientID]
	if !ok || secrets.PrincipalID != principalID {
		return nil, nil
	}
	if !reset && secrets.MainSecretHash != oldMainSecretHash {
		return &secrets, nil
	}
	if reset {
		secrets.Reset()
	} else {
		secrets.Rotate()
	}
	s.secrets[clientID] = secrets
	return &secrets, nil
}

// DeletePrincipalSecrets removes the secrets of a dropped principal.
func (s *Store) DeletePrincipalSecrets(ctx context.Context, clientID string, principalID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if secrets, ok := s.secrets[clientID]; ok && secrets.PrincipalID == principalID {
		delete(s.secrets, clientID)
	}
	return nil
}

// PersistStorageIntegration records the storage configuration attached to an
// entity.
func (s *Store) PersistStorageIntegration(ctx context.Context, catalogID, entityID int64, config domain.StorageConfigurationInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrations[domain.EntityID{CatalogID: catalogID, ID: entityID}] = config
	return nil
}

// LoadStorageIntegration returns the storage configuration attached to an
// entity, or (nil, nil).
func (s *Store) LoadStorageIntegration(ctx context.Context, catalogID, entityID int64) (*domain.StorageConfigurationInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.integrations[domain.EntityID{CatalogID: catalogID, ID: entityID}]; ok {
		return &cfg, nil
	}
	return nil, nil
}

// DeleteAll wipes every slice and resets the id sequence.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = 1000
	s.entities = map[domain.EntityID]domain.Entity{}
	s.byName = map[domain.ActiveKey]domain.EntityID{}
	s.grants = map[grantKey]domain.GrantRecord{}
	s.secrets = map[string]domain.PrincipalSecrets{}
	s.integrations = map[domain.EntityID]domain.StorageConfigurationInfo{}
	return nil
}
