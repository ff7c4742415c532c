package metastore

import (
	"context"

	"icemeta/internal/domain"
)

// scope is where children of a resolved catalog path live: top-level paths
// scope to (NullID, RootEntityID), a catalog path scopes to the catalog's id
// and the id of its deepest element.
type scope struct {
	catalogID int64
	parentID  int64
}

func pathScope(catalogPath []domain.Entity) scope {
	if len(catalogPath) == 0 {
		return scope{catalogID: domain.NullID, parentID: domain.RootEntityID}
	}
	last := catalogPath[len(catalogPath)-1]
	return scope{catalogID: catalogPath[0].ID, parentID: last.ID}
}

// resolvePath re-validates a caller-resolved catalog path against the store
// and returns the scope its children live under. ok is false when any path
// element no longer exists live or changed type, meaning the caller's view
// is stale and the operation must not proceed.
func resolvePath(ctx context.Context, s domain.Store, catalogPath []domain.Entity) (scope, bool, error) {
	for i := range catalogPath {
		p := &catalogPath[i]
		found, err := s.LookupEntity(ctx, p.CatalogID, p.ID)
		if err != nil {
			return scope{}, false, err
		}
		if found == nil || found.TypeCode != p.TypeCode {
			return scope{}, false, nil
		}
	}
	return pathScope(catalogPath), true, nil
}

// resolveEntity re-reads the persisted state of a caller-resolved entity.
// Returns (nil, nil) when it no longer exists.
func resolveEntity(ctx context.Context, s domain.Store, e *domain.Entity) (*domain.Entity, error) {
	found, err := s.LookupEntity(ctx, e.CatalogID, e.ID)
	if err != nil {
		return nil, err
	}
	if found == nil || found.TypeCode != e.TypeCode {
		return nil, nil
	}
	return found, nil
}

// isRootContainerKey reports whether the name key addresses the bootstrap
// root container. A miss on this key triggers a bootstrap backfill in
// LoadResolvedEntityByName.
func isRootContainerKey(catalogID, parentID int64, typ domain.EntityType, name string) bool {
	return catalogID == domain.NullID &&
		parentID == domain.RootEntityID &&
		typ == domain.EntityTypeRoot &&
		name == domain.RootContainerName
}
