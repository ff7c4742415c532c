package domain

// ReturnStatus is the outcome of a metastore manager operation. Expected
// failures travel in results rather than Go errors so callers can map them
// onto protocol responses without unwrapping.
type ReturnStatus int

const (
	StatusSuccess ReturnStatus = iota + 1
	StatusEntityNotFound
	StatusEntityAlreadyExists
	StatusEntityCannotBeResolved
	StatusCatalogPathCannotBeResolved
	StatusEntityCannotBeRenamed
	StatusEntityUndroppable
	StatusNamespaceNotEmpty
	StatusCatalogNotEmpty
	StatusGrantNotFound
	StatusTargetEntityConcurrentlyModified
	StatusSubscopeCredsError
	StatusUnexpectedErrorSignaled
)

var returnStatusNames = map[ReturnStatus]string{
	StatusSuccess:                          "SUCCESS",
	StatusEntityNotFound:                   "ENTITY_NOT_FOUND",
	StatusEntityAlreadyExists:              "ENTITY_ALREADY_EXISTS",
	StatusEntityCannotBeResolved:           "ENTITY_CANNOT_BE_RESOLVED",
	StatusCatalogPathCannotBeResolved:      "CATALOG_PATH_CANNOT_BE_RESOLVED",
	StatusEntityCannotBeRenamed:            "ENTITY_CANNOT_BE_RENAMED",
	StatusEntityUndroppable:                "ENTITY_UNDROPPABLE",
	StatusNamespaceNotEmpty:                "NAMESPACE_NOT_EMPTY",
	StatusCatalogNotEmpty:                  "CATALOG_NOT_EMPTY",
	StatusGrantNotFound:                    "GRANT_NOT_FOUND",
	StatusTargetEntityConcurrentlyModified: "TARGET_ENTITY_CONCURRENTLY_MODIFIED",
	StatusSubscopeCredsError:               "SUBSCOPE_CREDS_ERROR",
	StatusUnexpectedErrorSignaled:          "UNEXPECTED_ERROR_SIGNALED",
}

func (s ReturnStatus) String() string {
	if name, ok := returnStatusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// BaseResult is embedded in every operation result.
type BaseResult struct {
	Status ReturnStatus
	// ExtraInformation qualifies non-success statuses, e.g. the subtype of a
	// conflicting entity or the message of an unexpected error.
	ExtraInformation string
}

// IsSuccess reports whether the operation succeeded.
func (r BaseResult) IsSuccess() bool { return r.Status == StatusSuccess }

// OK returns a success BaseResult.
func OK() BaseResult { return BaseResult{Status: StatusSuccess} }

// Failed returns a non-success BaseResult.
func Failed(status ReturnStatus, extraInformation string) BaseResult {
	return BaseResult{Status: status, ExtraInformation: extraInformation}
}

// EntityResult returns a single entity.
type EntityResult struct {
	BaseResult
	Entity *Entity
}

// EntityFound wraps an entity in a success result.
func EntityFound(e *Entity) EntityResult {
	return EntityResult{BaseResult: OK(), Entity: e}
}

// EntityFailure returns a failed EntityResult.
func EntityFailure(status ReturnStatus, extraInformation string) EntityResult {
	return EntityResult{BaseResult: Failed(status, extraInformation)}
}

// EntitiesResult returns a list of entities.
type EntitiesResult struct {
	BaseResult
	Entities []Entity
}

// GenerateEntityIDResult returns a freshly allocated entity id.
type GenerateEntityIDResult struct {
	BaseResult
	ID int64
}

// CreatePrincipalResult returns the created principal and its secrets. The
// secrets are only ever surfaced here and at rotation.
type CreatePrincipalResult struct {
	BaseResult
	Principal *Entity
	Secrets   *PrincipalSecrets
}

// PrincipalSecretsResult returns principal secrets.
type PrincipalSecretsResult struct {
	BaseResult
	Secrets *PrincipalSecrets
}

// CreateCatalogResult returns the created catalog and its admin role.
type CreateCatalogResult struct {
	BaseResult
	Catalog     *Entity
	CatalogRole *Entity
}

// DropEntityResult reports a drop. CleanupTaskID is non-zero when a cleanup
// task was scheduled for the dropped entity.
type DropEntityResult struct {
	BaseResult
	CleanupTaskID int64
}

// PrivilegeResult reports a grant or revoke and echoes the affected record.
type PrivilegeResult struct {
	BaseResult
	Grant *GrantRecord
}

// LoadGrantsResult returns the grants attached to one side of an entity
// along with the distinct entities on the other side of those grants.
type LoadGrantsResult struct {
	BaseResult
	GrantsVersion int
	Grants        []GrantRecord
	Entities      []Entity
}

// ChangeTrackingResult returns versions aligned with the requested ids; a
// nil element marks an entity that does not exist.
type ChangeTrackingResult struct {
	BaseResult
	Versions []*ChangeTrackingVersions
}

// ResolvedEntityResult returns an entity with the grants it participates in,
// for authorization caches. On a refresh, Entity and Grants are nil when the
// cached copies are still current.
type ResolvedEntityResult struct {
	BaseResult
	Entity        *Entity
	GrantsVersion int
	Grants        []GrantRecord
}

// ScopedCredentialsResult returns subscoped storage credentials.
type ScopedCredentialsResult struct {
	BaseResult
	Credentials map[CredentialProperty]string
}

// ValidateAccessResult reports, per requested location, whether the storage
// integration allows the requested actions.
type ValidateAccessResult struct {
	BaseResult
	Results []LocationAccessResult
}

// LocationAccessResult is the validation outcome for one storage location.
type LocationAccessResult struct {
	Location string `json:"location"`
	Allowed  bool   `json:"allowed"`
	Message  string `json:"message,omitempty"`
}
