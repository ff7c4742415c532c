package domain

// EntityType classifies every entity stored in the metastore. Codes are
// persisted, so they must never be renumbered.
type EntityType int

const (
	EntityTypeNull          EntityType = 0
	EntityTypeRoot          EntityType = 1
	EntityTypePrincipal     EntityType = 2
	EntityTypePrincipalRole EntityType = 3
	EntityTypeCatalog       EntityType = 4
	EntityTypeCatalogRole   EntityType = 5
	EntityTypeNamespace     EntityType = 6
	EntityTypeTableLike     EntityType = 7
	EntityTypeTask          EntityType = 8
)

var entityTypeNames = map[EntityType]string{
	EntityTypeNull:          "NULL",
	EntityTypeRoot:          "ROOT",
	EntityTypePrincipal:     "PRINCIPAL",
	EntityTypePrincipalRole: "PRINCIPAL_ROLE",
	EntityTypeCatalog:       "CATALOG",
	EntityTypeCatalogRole:   "CATALOG_ROLE",
	EntityTypeNamespace:     "NAMESPACE",
	EntityTypeTableLike:     "TABLE_LIKE",
	EntityTypeTask:          "TASK",
}

func (t EntityType) String() string {
	if name, ok := entityTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsTopLevel reports whether entities of this type live directly under the
// root container, outside of any catalog.
func (t EntityType) IsTopLevel() bool {
	switch t {
	case EntityTypeCatalog, EntityTypePrincipal, EntityTypePrincipalRole, EntityTypeTask:
		return true
	}
	return false
}

// IsGrantee reports whether entities of this type can be the grantee side of
// a grant record.
func (t EntityType) IsGrantee() bool {
	switch t {
	case EntityTypePrincipal, EntityTypePrincipalRole, EntityTypeCatalogRole:
		return true
	}
	return false
}

// EntitySubType refines TABLE_LIKE entities. ANY_SUBTYPE is a query-side
// wildcard and is never persisted.
type EntitySubType int

const (
	SubTypeAny   EntitySubType = -1
	SubTypeNull  EntitySubType = 0
	SubTypeTable EntitySubType = 2
	SubTypeView  EntitySubType = 3
)

func (s EntitySubType) String() string {
	switch s {
	case SubTypeAny:
		return "ANY_SUBTYPE"
	case SubTypeTable:
		return "TABLE"
	case SubTypeView:
		return "VIEW"
	default:
		return "NULL_SUBTYPE"
	}
}

// Privilege is a grantable right on a securable entity. Codes are persisted
// in grant records.
type Privilege int

const (
	PrivilegeServiceManageAccess      Privilege = 1
	PrivilegeCatalogManageAccess      Privilege = 2
	PrivilegeCatalogManageContent     Privilege = 3
	PrivilegeCatalogManageMetadata    Privilege = 4
	PrivilegeCatalogRoleUsage         Privilege = 5
	PrivilegePrincipalRoleUsage       Privilege = 6
	PrivilegeNamespaceCreate          Privilege = 7
	PrivilegeNamespaceDrop            Privilege = 8
	PrivilegeNamespaceList            Privilege = 9
	PrivilegeNamespaceReadProperties  Privilege = 10
	PrivilegeNamespaceWriteProperties Privilege = 11
	PrivilegeTableCreate              Privilege = 12
	PrivilegeTableDrop                Privilege = 13
	PrivilegeTableList                Privilege = 14
	PrivilegeTableReadData            Privilege = 15
	PrivilegeTableWriteData           Privilege = 16
	PrivilegeTableReadProperties      Privilege = 17
	PrivilegeTableWriteProperties     Privilege = 18
	PrivilegeViewCreate               Privilege = 19
	PrivilegeViewDrop                 Privilege = 20
	PrivilegeViewList                 Privilege = 21
	PrivilegeViewReadProperties       Privilege = 22
	PrivilegeViewWriteProperties      Privilege = 23
)

var privilegeNames = map[Privilege]string{
	PrivilegeServiceManageAccess:      "SERVICE_MANAGE_ACCESS",
	PrivilegeCatalogManageAccess:      "CATALOG_MANAGE_ACCESS",
	PrivilegeCatalogManageContent:     "CATALOG_MANAGE_CONTENT",
	PrivilegeCatalogManageMetadata:    "CATALOG_MANAGE_METADATA",
	PrivilegeCatalogRoleUsage:         "CATALOG_ROLE_USAGE",
	PrivilegePrincipalRoleUsage:       "PRINCIPAL_ROLE_USAGE",
	PrivilegeNamespaceCreate:          "NAMESPACE_CREATE",
	PrivilegeNamespaceDrop:            "NAMESPACE_DROP",
	PrivilegeNamespaceList:            "NAMESPACE_LIST",
	PrivilegeNamespaceReadProperties:  "NAMESPACE_READ_PROPERTIES",
	PrivilegeNamespaceWriteProperties: "NAMESPACE_WRITE_PROPERTIES",
	PrivilegeTableCreate:              "TABLE_CREATE",
	PrivilegeTableDrop:                "TABLE_DROP",
	PrivilegeTableList:                "TABLE_LIST",
	PrivilegeTableReadData:            "TABLE_READ_DATA",
	PrivilegeTableWriteData:           "TABLE_WRITE_DATA",
	PrivilegeTableReadProperties:      "TABLE_READ_PROPERTIES",
	PrivilegeTableWriteProperties:     "TABLE_WRITE_PROPERTIES",
	PrivilegeViewCreate:               "VIEW_CREATE",
	PrivilegeViewDrop:                 "VIEW_DROP",
	PrivilegeViewList:                 "VIEW_LIST",
	PrivilegeViewReadProperties:       "VIEW_READ_PROPERTIES",
	PrivilegeViewWriteProperties:      "VIEW_WRITE_PROPERTIES",
}

func (p Privilege) String() string {
	if name, ok := privilegeNames[p]; ok {
		return name
	}
	return "UNKNOWN"
}
