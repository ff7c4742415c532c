package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// StorageType identifies the provider of a storage integration.
type StorageType string

const (
	StorageTypeS3    StorageType = "S3"
	StorageTypeAzure StorageType = "AZURE"
	StorageTypeGCS   StorageType = "GCS"
	StorageTypeFile  StorageType = "FILE"
)

// StorageAction is an operation a caller wants to perform against storage.
type StorageAction string

const (
	StorageActionRead   StorageAction = "READ"
	StorageActionWrite  StorageAction = "WRITE"
	StorageActionList   StorageAction = "LIST"
	StorageActionDelete StorageAction = "DELETE"
)

// CredentialProperty keys the entries of a vended credential map.
type CredentialProperty string

const (
	CredentialAWSKeyID          CredentialProperty = "s3.access-key-id"
	CredentialAWSSecretKey      CredentialProperty = "s3.secret-access-key"
	CredentialAWSToken          CredentialProperty = "s3.session-token"
	CredentialAWSEndpoint       CredentialProperty = "s3.endpoint"
	CredentialAzureSASToken     CredentialProperty = "adls.sas-token"
	CredentialAzureAccountHost  CredentialProperty = "adls.account-host"
	CredentialGCSAccessToken    CredentialProperty = "gcs.oauth2.token"
	CredentialGCSTokenExpiresAt CredentialProperty = "gcs.oauth2.token-expires-at"
	CredentialExpirationTime    CredentialProperty = "expiration-time"
)

// StorageConfigurationInfo declares where a catalog (or table) is allowed to
// live and how to reach that storage. It is serialized into the entity's
// internal properties and into the storage-integration slice.
type StorageConfigurationInfo struct {
	StorageType      StorageType `json:"storageType"`
	AllowedLocations []string    `json:"allowedLocations"`

	// S3
	RoleARN    string `json:"roleArn,omitempty"`
	Region     string `json:"region,omitempty"`
	S3Endpoint string `json:"s3Endpoint,omitempty"`

	// Azure
	AccountName string `json:"accountName,omitempty"`
	TenantID    string `json:"tenantId,omitempty"`

	// GCS
	ProjectID string `json:"projectId,omitempty"`
}

// ParseStorageConfigurationInfo deserializes a configuration from an entity
// property payload.
func ParseStorageConfigurationInfo(s string) (*StorageConfigurationInfo, error) {
	if s == "" {
		return nil, nil
	}
	var cfg StorageConfigurationInfo
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return nil, fmt.Errorf("parse storage configuration: %w", err)
	}
	return &cfg, nil
}

// Serialize returns the JSON payload persisted on entities.
func (c *StorageConfigurationInfo) Serialize() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("serialize storage configuration: %w", err)
	}
	return string(b), nil
}

// AllowsLocation reports whether loc falls under one of the allowed location
// prefixes. Matching is prefix-based on normalized (trailing-slash) paths.
func (c *StorageConfigurationInfo) AllowsLocation(loc string) bool {
	candidate := normalizeLocation(loc)
	for _, allowed := range c.AllowedLocations {
		if strings.HasPrefix(candidate, normalizeLocation(allowed)) {
			return true
		}
	}
	return false
}

func normalizeLocation(loc string) string {
	if loc == "" || strings.HasSuffix(loc, "/") {
		return loc
	}
	return loc + "/"
}

// StorageIntegration vends credentials and validates access for one storage
// configuration.
type StorageIntegration interface {
	// Config returns the configuration the integration was built from.
	Config() *StorageConfigurationInfo

	// SubscopeCredentials returns credentials restricted to the given
	// locations and permissions. Requested locations outside the allowed
	// locations are an error.
	SubscopeCredentials(ctx context.Context, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) (map[CredentialProperty]string, error)

	// ValidateAccess checks each location against the requested actions and
	// reports a per-location outcome.
	ValidateAccess(ctx context.Context, actions []StorageAction, locations []string) ([]LocationAccessResult, error)
}

// StorageIntegrationProvider constructs integrations from persisted
// configurations.
type StorageIntegrationProvider interface {
	CreateIntegration(ctx context.Context, config *StorageConfigurationInfo) (StorageIntegration, error)
}
