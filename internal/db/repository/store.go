package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"icemeta/internal/db/crypto"
	"icemeta/internal/domain"
)

// DBTX is the executor shared by *sql.DB and *sql.Tx so the same queries run
// inside and outside transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ domain.TxStore = (*Store)(nil)

// Store implements domain.TxStore over a SQLite write/read pool pair.
// Principal secrets and storage configurations are encrypted at rest.
//
// Outside a transaction every operation is individually atomic, so Store
// also satisfies the compare-and-swap contract the atomic manager strategy
// needs.
type Store struct {
	write *sql.DB // nil when bound to a transaction
	read  *sql.DB
	ex    DBTX // write executor: write pool or active tx
	rex   DBTX // read executor: read pool or active tx
	enc   *crypto.Encryptor
}

// New creates a Store over the given pools. readDB may equal writeDB.
func New(writeDB, readDB *sql.DB, enc *crypto.Encryptor) *Store {
	return &Store{write: writeDB, read: readDB, ex: writeDB, rex: readDB, enc: enc}
}

// RunInTransaction runs fn inside a single write transaction. The SQLite
// write pool is limited to one connection with _txlock=immediate, so write
// transactions serialize.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.write == nil {
		return fmt.Errorf("nested transaction")
	}
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&Store{ex: tx, rex: tx, enc: s.enc}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RunInReadTransaction runs fn inside a transaction on the read pool. The
// transaction stays a read transaction as long as fn only reads, which gives
// fn a consistent snapshot.
func (s *Store) RunInReadTransaction(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.read == nil {
		return fmt.Errorf("nested transaction")
	}
	tx, err := s.read.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(&Store{ex: tx, rex: tx, enc: s.enc}); err != nil {
		return err
	}
	return tx.Commit()
}

// GenerateNewID allocates the next id from the persistent sequence.
func (s *Store) GenerateNewID(ctx context.Context) (int64, error) {
	var id int64
	err := s.ex.QueryRowContext(ctx,
		`UPDATE id_sequence SET next_id = next_id + 1 WHERE id = 1 RETURNING next_id - 1`,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

const entityColumns = `catalog_id, id, parent_id, type_code, sub_type_code, name,
	entity_version, grant_records_version, create_timestamp, last_update_timestamp,
	drop_timestamp, properties, internal_properties`

func scanEntity(row interface{ Scan(dest ...any) error }) (*domain.Entity, error) {
	var e domain.Entity
	err := row.Scan(
		&e.CatalogID, &e.ID, &e.ParentID, &e.TypeCode, &e.SubTypeCode, &e.Name,
		&e.EntityVersion, &e.GrantRecordsVersion, &e.CreateTimestamp, &e.LastUpdateTimestamp,
		&e.DropTimestamp, &e.Properties, &e.InternalProperties,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// WriteEntity persists an entity under compare-and-swap semantics. The name
// lives in the entity row and is covered by a unique index, so
// nameOrParentChanged needs no extra index maintenance here.
func (s *Store) WriteEntity(ctx context.Context, entity domain.Entity, nameOrParentChanged bool, original *domain.Entity) error {
	if original == nil {
		_, err := s.ex.ExecContext(ctx, `
			INSERT INTO entities (`+entityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entity.CatalogID, entity.ID, entity.ParentID, entity.TypeCode, entity.SubTypeCode,
			entity.Name, entity.EntityVersion, entity.GrantRecordsVersion, entity.CreateTimestamp,
			entity.LastUpdateTimestamp, entity.DropTimestamp, entity.Properties, entity.InternalProperties,
		)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			return s.alreadyExists(ctx, entity)
		}
		return fmt.Errorf("insert entity: %w", err)
	}

	res, err := s.ex.ExecContext(ctx, `
		UPDATE entities SET
			parent_id = ?, sub_type_code = ?, name = ?,
			entity_version = ?, grant_records_version = ?,
			last_update_timestamp = ?, drop_timestamp = ?,
			properties = ?, internal_properties = ?
		WHERE catalog_id = ? AND id = ? AND entity_version = ? AND grant_records_version = ?`,
		entity.ParentID, entity.SubTypeCode, entity.Name,
		entity.EntityVersion, entity.GrantRecordsVersion,
		entity.LastUpdateTimestamp, entity.DropTimestamp,
		entity.Properties, entity.InternalProperties,
		entity.CatalogID, entity.ID, original.EntityVersion, original.GrantRecordsVersion,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.alreadyExists(ctx, entity)
		}
		return fmt.Errorf("update entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n == 0 {
		return domain.ErrConcurrentModification(
			"entity (%d, %d) is no longer at version %d", entity.CatalogID, entity.ID, original.EntityVersion)
	}
	return nil
}

// alreadyExists resolves a unique violation into an EntityAlreadyExistsError
// carrying the winning row, preferring an id match over a name match.
func (s *Store) alreadyExists(ctx context.Context, entity domain.Entity) error {
	if existing, err := s.LookupEntity(ctx, entity.CatalogID, entity.ID); err == nil && existing != nil {
		return &domain.EntityAlreadyExistsError{Existing: *existing}
	}
	if existing, err := s.LookupEntityByName(ctx, entity.ActiveKey()); err == nil && existing != nil {
		return &domain.EntityAlreadyExistsError{Existing: *existing}
	}
	return domain.ErrConflict("entity %q conflicts with an existing entity", entity.Name)
}

// WriteEntities applies the batch inside one transaction when the store is
// not already transactional. A same-id collision is an idempotent retry and
// is skipped.
func (s *Store) WriteEntities(ctx context.Context, entities []domain.Entity) error {
	if s.write != nil {
		return s.RunInTransaction(ctx, func(tx domain.Store) error {
			return tx.WriteEntities(ctx, entities)
		})
	}
	for _, e := range entities {
		err := s.WriteEntity(ctx, e, true, nil)
		var exists *domain.EntityAlreadyExistsError
		if errors.As(err, &exists) && exists.Existing.ID == e.ID {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteEntity removes an entity row.
func (s *Store) DeleteEntity(ctx context.Context, catalogID, id int64) error {
	_, err := s.ex.ExecContext(ctx,
		`DELETE FROM entities WHERE catalog_id = ? AND id = ?`, catalogID, id)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return nil
}

// LookupEntity finds an entity by id, or returns (nil, nil).
func (s *Store) LookupEntity(ctx context.Context, catalogID, id int64) (*domain.Entity, error) {
	row := s.rex.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE catalog_id = ? AND id = ?`, catalogID, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entity: %w", err)
	}
	return e, nil
}

// LookupEntities finds a batch of entities aligned with ids.
func (s *Store) LookupEntities(ctx context.Context, ids []domain.EntityID) ([]*domain.Entity, error) {
	out := make([]*domain.Entity, len(ids))
	for i, id := range ids {
		e, err := s.LookupEntity(ctx, id.CatalogID, id.ID)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// LookupEntityVersions returns change-tracking versions aligned with ids.
func (s *Store) LookupEntityVersions(ctx context.Context, ids []domain.EntityID) ([]*domain.ChangeTrackingVersions, error) {
	out := make([]*domain.ChangeTrackingVersions, len(ids))
	for i, id := range ids {
		var v domain.ChangeTrackingVersions
		err := s.rex.QueryRowContext(ctx,
			`SELECT entity_version, grant_records_version FROM entities WHERE catalog_id = ? AND id = ?`,
			id.CatalogID, id.ID,
		).Scan(&v.EntityVersion, &v.GrantRecordsVersion)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup entity versions: %w", err)
		}
		out[i] = &v
	}
	return out, nil
}

// LookupEntityByName finds a live entity by its active-name key.
func (s *Store) LookupEntityByName(ctx context.Context, key domain.ActiveKey) (*domain.Entity, error) {
	row := s.rex.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE catalog_id = ? AND parent_id = ? AND type_code = ? AND name = ?`,
		key.CatalogID, key.ParentID, key.TypeCode, key.Name)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entity by name: %w", err)
	}
	return e, nil
}

// ListEntities returns live entities under (catalogID, parentID) of the
// given type, name-ordered.
func (s *Store) ListEntities(ctx context.Context, catalogID, parentID int64, typ domain.EntityType, limit int, filter func(*domain.Entity) bool) ([]domain.Entity, error) {
	rows, err := s.rex.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE catalog_id = ? AND parent_id = ? AND type_code = ?
		ORDER BY name`,
		catalogID, parentID, typ)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		if filter != nil && !filter(e) {
			continue
		}
		out = append(out, *e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// HasChildren reports whether a live child of the given type exists.
func (s *Store) HasChildren(ctx context.Context, typ domain.EntityType, catalogID, parentID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM entities WHERE catalog_id = ? AND parent_id = ?`
	args := []any{catalogID, parentID}
	if typ != domain.EntityTypeNull {
		query += ` AND type_code = ?`
		args = append(args, typ)
	}
	query += `)`

	var exists bool
	if err := s.rex.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("has children: %w", err)
	}
	return exists, nil
}

// WriteGrant persists a grant record; re-writing an existing record is a
// no-op.
func (s *Store) WriteGrant(ctx context.Context, grant domain.GrantRecord) error {
	_, err := s.ex.ExecContext(ctx, `
		INSERT INTO grant_records
			(securable_catalog_id, securable_id, grantee_catalog_id, grantee_id, privilege_code)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		grant.SecurableCatalogID, grant.SecurableID, grant.GranteeCatalogID, grant.GranteeID, grant.PrivilegeCode)
	if err != nil {
		return fmt.Errorf("write grant: %w", err)
	}
	return nil
}

// DeleteGrant removes a grant record.
func (s *Store) DeleteGrant(ctx context.Context, grant domain.GrantRecord) error {
	res, err := s.ex.ExecContext(ctx, `
		DELETE FROM grant_records
		WHERE securable_catalog_id = ? AND securable_id = ?
		  AND grantee_catalog_id = ? AND grantee_id = ? AND privilege_code = ?`,
		grant.SecurableCatalogID, grant.SecurableID, grant.GranteeCatalogID, grant.GranteeID, grant.PrivilegeCode)
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound("grant record not found")
	}
	return nil
}

// LookupGrant finds the exact grant record, or returns (nil, nil).
func (s *Store) LookupGrant(ctx context.Context, grant domain.GrantRecord) (*domain.GrantRecord, error) {
	var g domain.GrantRecord
	err := s.rex.QueryRowContext(ctx, `
		SELECT securable_catalog_id, securable_id, grantee_catalog_id, grantee_id, privilege_code
		FROM grant_records
		WHERE securable_catalog_id = ? AND securable_id = ?
		  AND grantee_catalog_id = ? AND grantee_id = ? AND privilege_code = ?`,
		grant.SecurableCatalogID, grant.SecurableID, grant.GranteeCatalogID, grant.GranteeID, grant.PrivilegeCode,
	).Scan(&g.SecurableCatalogID, &g.SecurableID, &g.GranteeCatalogID, &g.GranteeID, &g.PrivilegeCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup grant: %w", err)
	}
	return &g, nil
}

func (s *Store) queryGrants(ctx context.Context, query string, args ...any) ([]domain.GrantRecord, error) {
	rows, err := s.rex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load grants: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.GrantRecord
	for rows.Next() {
		var g domain.GrantRecord
		if err := rows.Scan(&g.SecurableCatalogID, &g.SecurableID, &g.GranteeCatalogID, &g.GranteeID, &g.PrivilegeCode); err != nil {
			return nil, fmt.Errorf("load grants: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// LoadAllGrantsOnSecurable returns all grants where the entity is the
// securable.
func (s *Store) LoadAllGrantsOnSecurable(ctx context.Context, catalogID, id int64) ([]domain.GrantRecord, error) {
	return s.queryGrants(ctx, `
		SELECT securable_catalog_id, securable_id, grantee_catalog_id, grantee_id, privilege_code
		FROM grant_records WHERE securable_catalog_id = ? AND securable_id = ?`, catalogID, id)
}

// LoadAllGrantsToGrantee returns all grants where the entity is the grantee.
func (s *Store) LoadAllGrantsToGrantee(ctx context.Context, catalogID, id int64) ([]domain.GrantRecord, error) {
	return s.queryGrants(ctx, `
		SELECT securable_catalog_id, securable_id, grantee_catalog_id, grantee_id, privilege_code
		FROM grant_records WHERE grantee_catalog_id = ? AND grantee_id = ?`, catalogID, id)
}

// DeleteAllEntityGrants removes every grant attached to the entity on either
// side.
func (s *Store) DeleteAllEntityGrants(ctx context.Context, entity domain.Entity, grantsOnSecurable, grantsToGrantee []domain.GrantRecord) error {
	_, err := s.ex.ExecContext(ctx, `
		DELETE FROM grant_records
		WHERE (securable_catalog_id = ? AND securable_id = ?)
		   OR (grantee_catalog_id = ? AND grantee_id = ?)`,
		entity.CatalogID, entity.ID, entity.CatalogID, entity.ID)
	if err != nil {
		return fmt.Errorf("delete entity grants: %w", err)
	}
	return nil
}

// GenerateNewPrincipalSecrets creates and persists secrets for a new
// principal. Secrets are encrypted at rest; only hashes stay in clear.
func (s *Store) GenerateNewPrincipalSecrets(ctx context.Context, principalName string, principalID int64) (*domain.PrincipalSecrets, error) {
	// Client ids are random; retry the insert on the unlikely collision.
	for attempt := 0; attempt < 3; attempt++ {
		secrets := domain.NewPrincipalSecrets(principalID)
		encMain, err := s.enc.Encrypt(secrets.MainSecret)
		if err != nil {
			return nil, fmt.Errorf("encrypt principal secret: %w", err)
		}
		encSecondary, err := s.enc.Encrypt(secrets.SecondarySecret)
		if err != nil {
			return nil, fmt.Errorf("encrypt principal secret: %w", err)
		}
		_, err = s.ex.ExecContext(ctx, `
			INSERT INTO principal_secrets
				(principal_client_id, principal_id, main_secret, secondary_secret, main_secret_hash, secondary_secret_hash)
			VALUES (?, ?, ?, ?, ?, ?)`,
			secrets.PrincipalClientID, secrets.PrincipalID, encMain, encSecondary,
			secrets.MainSecretHash, secrets.SecondarySecretHash)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert principal secrets: %w", err)
		}
		return secrets, nil
	}
	return nil, domain.ErrConflict("could not allocate a unique client id")
}

// LoadPrincipalSecrets finds secrets by client id, or returns (nil, nil).
func (s *Store) LoadPrincipalSecrets(ctx context.Context, clientID string) (*domain.PrincipalSecrets, error) {
	var secrets domain.PrincipalSecrets
	var encMain, encSecondary string
	err := s.rex.QueryRowContext(ctx, `
		SELECT principal_client_id, principal_id, main_secret, secondary_secret, main_secret_hash, secondary_secret_hash
		FROM principal_secrets WHERE principal_client_id = ?`, clientID,
	).Scan(&secrets.PrincipalClientID, &secrets.PrincipalID, &encMain, &encSecondary,
		&secrets.MainSecretHash, &secrets.SecondarySecretHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load principal secrets: %w", err)
	}
	if secrets.MainSecret, err = s.enc.Decrypt(encMain); err != nil {
		return nil, fmt.Errorf("decrypt principal secret: %w", err)
	}
	if secrets.SecondarySecret, err = s.enc.Decrypt(encSecondary); err != nil {
		return nil, fmt.Errorf("decrypt principal secret: %w", err)
	}
	return &secrets, nil
}

// RotatePrincipalSecrets rotates or resets the stored secrets. When the
// stored main hash no longer matches oldMainSecretHash the rotation already
// happened and the current secrets are returned unchanged.
func (s *Store) RotatePrincipalSecrets(ctx context.Context, clientID string, principalID int64, reset bool, oldMainSecretHash string) (*domain.PrincipalSecrets, error) {
	secrets, err := s.LoadPrincipalSecrets(ctx, clientID)
	if err != nil || secrets == nil {
		return secrets, err
	}
	if secrets.PrincipalID != principalID {
		return nil, nil
	}
	if !reset && secrets.MainSecretHash != oldMainSecretHash {
		return secrets, nil
	}
	if reset {
		secrets.Reset()
	} else {
		secrets.Rotate()
	}

	encMain, err := s.enc.Encrypt(secrets.MainSecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt principal secret: %w", err)
	}
	encSecondary, err := s.enc.Encrypt(secrets.SecondarySecret)
	if err != nil {
		return nil, fmt.Errorf("encrypt principal secret: %w", err)
	}
	_, err = s.ex.ExecContext(ctx, `
		UPDATE principal_secrets SET
			main_secret = ?, secondary_secret = ?, main_secret_hash = ?, secondary_secret_hash = ?
		WHERE principal_client_id = ? AND principal_id = ?`,
		encMain, encSecondary, secrets.MainSecretHash, secrets.SecondarySecretHash, clientID, principalID)
	if err != nil {
		return nil, fmt.Errorf("rotate principal secrets: %w", err)
	}
	return secrets, nil
}

// DeletePrincipalSecrets removes the secrets of a dropped principal.
func (s *Store) DeletePrincipalSecrets(ctx context.Context, clientID string, principalID int64) error {
	_, err := s.ex.ExecContext(ctx,
		`DELETE FROM principal_secrets WHERE principal_client_id = ? AND principal_id = ?`,
		clientID, principalID)
	if err != nil {
		return fmt.Errorf("delete principal secrets: %w", err)
	}
	return nil
}

// PersistStorageIntegration records the encrypted storage configuration
// attached to an entity.
func (s *Store) PersistStorageIntegration(ctx context.Context, catalogID, entityID int64, config domain.StorageConfigurationInfo) error {
	payload, err := config.Serialize()
	if err != nil {
		return err
	}
	encPayload, err := s.enc.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("encrypt storage configuration: %w", err)
	}
	_, err = s.ex.ExecContext(ctx, `
		INSERT INTO storage_integrations (catalog_id, entity_id, config)
		VALUES (?, ?, ?)
		ON CONFLICT (catalog_id, entity_id) DO UPDATE SET config = excluded.config`,
		catalogID, entityID, encPayload)
	if err != nil {
		return fmt.Errorf("persist storage integration: %w", err)
	}
	return nil
}

// LoadStorageIntegration returns the storage configuration attached to an
// entity, or (nil, nil).
func (s *Store) LoadStorageIntegration(ctx context.Context, catalogID, entityID int64) (*domain.StorageConfigurationInfo, error) {
	var encPayload string
	err := s.rex.QueryRowContext(ctx,
		`SELECT config FROM storage_integrations WHERE catalog_id = ? AND entity_id = ?`,
		catalogID, entityID,
	).Scan(&encPayload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load storage integration: %w", err)
	}
	payload, err := s.enc.Decrypt(encPayload)
	if err != nil {
		return nil, fmt.Errorf("decrypt storage configuration: %w", err)
	}
	return domain.ParseStorageConfigurationInfo(payload)
}

// DeleteAll wipes every table and resets the id sequence.
func (s *Store) DeleteAll(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM entities`,
		`DELETE FROM grant_records`,
		`DELETE FROM principal_secrets`,
		`DELETE FROM storage_integrations`,
		`UPDATE id_sequence SET next_id = 1000 WHERE id = 1`,
	} {
		if _, err := s.ex.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purge store: %w", err)
		}
	}
	return nil
}
