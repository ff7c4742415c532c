package domain

// GrantRecord states that the grantee holds a privilege on the securable.
// The full five-column tuple is the primary key; the same privilege can be
// granted at most once per (securable, grantee) pair.
type GrantRecord struct {
	SecurableCatalogID int64     `json:"securableCatalogId"`
	SecurableID        int64     `json:"securableId"`
	GranteeCatalogID   int64     `json:"granteeCatalogId"`
	GranteeID          int64     `json:"granteeId"`
	PrivilegeCode      Privilege `json:"privilegeCode"`
}

// NewGrantRecord builds a grant of priv on securable to grantee.
func NewGrantRecord(securable, grantee *Entity, priv Privilege) GrantRecord {
	return GrantRecord{
		SecurableCatalogID: securable.CatalogID,
		SecurableID:        securable.ID,
		GranteeCatalogID:   grantee.CatalogID,
		GranteeID:          grantee.ID,
		PrivilegeCode:      priv,
	}
}

// SecurableEntityID returns the securable side of the grant.
func (g *GrantRecord) SecurableEntityID() EntityID {
	return EntityID{CatalogID: g.SecurableCatalogID, ID: g.SecurableID}
}

// GranteeEntityID returns the grantee side of the grant.
func (g *GrantRecord) GranteeEntityID() EntityID {
	return EntityID{CatalogID: g.GranteeCatalogID, ID: g.GranteeID}
}
