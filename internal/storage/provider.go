// Package storage vends subscoped credentials and validates location access
// for the storage configurations attached to catalog and table entities.
package storage

import (
	"context"
	"strconv"
	"time"

	"icemeta/internal/domain"
)

// Provider builds the integration matching a storage configuration. It
// satisfies domain.StorageIntegrationProvider.
type Provider struct {
	// AzureAccountKey signs Azure SAS tokens. Required only for AZURE
	// configurations.
	AzureAccountKey string

	// CredentialDuration bounds the lifetime of vended credentials.
	CredentialDuration time.Duration
}

var _ domain.StorageIntegrationProvider = (*Provider)(nil)

const defaultCredentialDuration = time.Hour

func (p *Provider) duration() time.Duration {
	if p.CredentialDuration > 0 {
		return p.CredentialDuration
	}
	return defaultCredentialDuration
}

// CreateIntegration dispatches on the configuration's storage type.
func (p *Provider) CreateIntegration(ctx context.Context, config *domain.StorageConfigurationInfo) (domain.StorageIntegration, error) {
	switch config.StorageType {
	case domain.StorageTypeS3:
		return newS3Integration(config, p.duration()), nil
	case domain.StorageTypeAzure:
		return newAzureIntegration(config, p.AzureAccountKey, p.duration())
	case domain.StorageTypeGCS:
		return newGCSIntegration(config), nil
	case domain.StorageTypeFile:
		return newFileIntegration(config, p.duration()), nil
	default:
		return nil, domain.ErrValidation("unsupported storage type %q", config.StorageType)
	}
}

// checkScope verifies every requested location falls inside the
// configuration's allowed locations.
func checkScope(cfg *domain.StorageConfigurationInfo, locations ...[]string) error {
	for _, group := range locations {
		for _, loc := range group {
			if !cfg.AllowsLocation(loc) {
				return domain.ErrAccessDenied("location %q is outside the allowed locations", loc)
			}
		}
	}
	return nil
}

// validateByScope is the configuration-only access check shared by
// integrations that do not probe the backing store.
func validateByScope(cfg *domain.StorageConfigurationInfo, locations []string) []domain.LocationAccessResult {
	results := make([]domain.LocationAccessResult, 0, len(locations))
	for _, loc := range locations {
		if cfg.AllowsLocation(loc) {
			results = append(results, domain.LocationAccessResult{Location: loc, Allowed: true})
		} else {
			results = append(results, domain.LocationAccessResult{
				Location: loc,
				Allowed:  false,
				Message:  "location is outside the allowed locations",
			})
		}
	}
	return results
}

func expirationMillis(d time.Duration) string {
	return timeMillis(time.Now().Add(d))
}

func timeMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
