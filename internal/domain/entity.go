// Package domain defines the entity model, persistence contracts, and errors
// for the catalog metastore.
package domain

import (
	"encoding/json"
	"fmt"
)

// Well-known identifiers and names. The root container, the root principal,
// and the service admin role are created at bootstrap and can never be
// dropped or renamed.
const (
	NullID       int64 = 0
	RootEntityID int64 = 0

	RootContainerName    = "root"
	RootPrincipalName    = "root"
	ServiceAdminRoleName = "service_admin"
	CatalogAdminRoleName = "catalog_admin"
)

// Internal property keys.
const (
	// ClientIDPropertyName links a PRINCIPAL entity to its secrets record.
	ClientIDPropertyName = "client_id"

	// CredentialRotationRequiredState, when present on a PRINCIPAL, forces
	// the next credential rotation to be a full reset.
	CredentialRotationRequiredState = "PRINCIPAL_CREDENTIAL_ROTATION_REQUIRED_STATE"

	// StorageConfigInfoPropertyName holds the serialized storage
	// configuration of a CATALOG or TABLE_LIKE entity.
	StorageConfigInfoPropertyName = "storage-configuration-info"

	// AuthSecretPropertyName carries a plaintext connection secret on an
	// incoming CATALOG entity. It is never persisted: the manager moves the
	// secret into the user secrets manager and stores only a reference.
	AuthSecretPropertyName = "auth-secret"

	// AuthSecretReferencePropertyName holds the serialized reference to a
	// secret moved into the user secrets manager.
	AuthSecretReferencePropertyName = "auth-secret-reference"
)

// EntityID addresses an entity. Top-level entities use NullID as CatalogID.
type EntityID struct {
	CatalogID int64 `json:"catalogId"`
	ID        int64 `json:"id"`
}

// ActiveKey is the uniqueness key among live entities: no two live entities
// may share a (catalog, parent, type, name) tuple.
type ActiveKey struct {
	CatalogID int64
	ParentID  int64
	TypeCode  EntityType
	Name      string
}

// Entity is the single persisted shape for every object the metastore
// manages: catalogs, namespaces, tables, principals, roles, and tasks.
//
// Properties and InternalProperties are serialized JSON string maps; the
// manager treats them as opaque payloads and only interprets a handful of
// well-known internal keys.
type Entity struct {
	CatalogID           int64         `json:"catalogId"`
	ID                  int64         `json:"id"`
	ParentID            int64         `json:"parentId"`
	TypeCode            EntityType    `json:"typeCode"`
	SubTypeCode         EntitySubType `json:"subTypeCode"`
	Name                string        `json:"name"`
	EntityVersion       int           `json:"entityVersion"`
	GrantRecordsVersion int           `json:"grantRecordsVersion"`
	CreateTimestamp     int64         `json:"createTimestamp"`
	LastUpdateTimestamp int64         `json:"lastUpdateTimestamp"`
	DropTimestamp       int64         `json:"dropTimestamp"`
	Properties          string        `json:"properties"`
	InternalProperties  string        `json:"internalProperties"`
}

// NewEntity builds an entity with version counters initialised. Timestamps
// are stamped at persist time.
func NewEntity(catalogID, id, parentID int64, typ EntityType, subType EntitySubType, name string) Entity {
	return Entity{
		CatalogID:           catalogID,
		ID:                  id,
		ParentID:            parentID,
		TypeCode:            typ,
		SubTypeCode:         subType,
		Name:                name,
		EntityVersion:       1,
		GrantRecordsVersion: 1,
	}
}

// EntityID returns the entity's address.
func (e *Entity) EntityID() EntityID {
	return EntityID{CatalogID: e.CatalogID, ID: e.ID}
}

// ActiveKey returns the entity's live-name uniqueness key.
func (e *Entity) ActiveKey() ActiveKey {
	return ActiveKey{CatalogID: e.CatalogID, ParentID: e.ParentID, TypeCode: e.TypeCode, Name: e.Name}
}

// Versions returns the entity's change-tracking versions.
func (e *Entity) Versions() ChangeTrackingVersions {
	return ChangeTrackingVersions{EntityVersion: e.EntityVersion, GrantRecordsVersion: e.GrantRecordsVersion}
}

// PropertiesMap deserializes Properties. An empty payload yields an empty map.
func (e *Entity) PropertiesMap() (map[string]string, error) {
	return parsePropertyMap(e.Properties)
}

// SetPropertiesMap serializes props into Properties.
func (e *Entity) SetPropertiesMap(props map[string]string) error {
	s, err := serializePropertyMap(props)
	if err != nil {
		return err
	}
	e.Properties = s
	return nil
}

// InternalPropertiesMap deserializes InternalProperties.
func (e *Entity) InternalPropertiesMap() (map[string]string, error) {
	return parsePropertyMap(e.InternalProperties)
}

// SetInternalPropertiesMap serializes props into InternalProperties.
func (e *Entity) SetInternalPropertiesMap(props map[string]string) error {
	s, err := serializePropertyMap(props)
	if err != nil {
		return err
	}
	e.InternalProperties = s
	return nil
}

// InternalProperty returns the value of a single internal property key, or
// "" when absent or unparseable.
func (e *Entity) InternalProperty(key string) string {
	props, err := e.InternalPropertiesMap()
	if err != nil {
		return ""
	}
	return props[key]
}

func parsePropertyMap(s string) (map[string]string, error) {
	if s == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("parse property map: %w", err)
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}

func serializePropertyMap(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("serialize property map: %w", err)
	}
	return string(b), nil
}

// ChangeTrackingVersions is the pair of counters a client caches to detect
// staleness: EntityVersion moves on any entity change, GrantRecordsVersion
// moves whenever a grant involving the entity is created or revoked.
type ChangeTrackingVersions struct {
	EntityVersion       int `json:"entityVersion"`
	GrantRecordsVersion int `json:"grantRecordsVersion"`
}

// EntityWithPath pairs an entity with the catalog path it was resolved
// under, for batched updates.
type EntityWithPath struct {
	CatalogPath []Entity
	Entity      Entity
}
