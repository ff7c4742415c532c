package storage

import (
	"context"
	"os"
	"strings"
	"time"

	"icemeta/internal/domain"
)

// fileIntegration backs development and test catalogs with the local
// filesystem. There is nothing to vend, so the credential map only marks
// what the caller may do and until when.
type fileIntegration struct {
	cfg      *domain.StorageConfigurationInfo
	duration time.Duration
}

func newFileIntegration(cfg *domain.StorageConfigurationInfo, duration time.Duration) *fileIntegration {
	return &fileIntegration{cfg: cfg, duration: duration}
}

func (i *fileIntegration) Config() *domain.StorageConfigurationInfo { return i.cfg }

func (i *fileIntegration) SubscopeCredentials(ctx context.Context, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) (map[domain.CredentialProperty]string, error) {
	if err := checkScope(i.cfg, allowedReadLocations, allowedWriteLocations); err != nil {
		return nil, err
	}
	return map[domain.CredentialProperty]string{
		domain.CredentialExpirationTime: expirationMillis(i.duration),
	}, nil
}

// ValidateAccess checks the allowed-location scope and, for READ and LIST,
// that the path actually exists.
func (i *fileIntegration) ValidateAccess(ctx context.Context, actions []domain.StorageAction, locations []string) ([]domain.LocationAccessResult, error) {
	wantsRead := false
	for _, a := range actions {
		if a == domain.StorageActionRead || a == domain.StorageActionList {
			wantsRead = true
		}
	}
	results := validateByScope(i.cfg, locations)
	if !wantsRead {
		return results, nil
	}
	for idx := range results {
		if !results[idx].Allowed {
			continue
		}
		path := strings.TrimPrefix(results[idx].Location, "file://")
		if _, err := os.Stat(path); err != nil {
			results[idx].Allowed = false
			results[idx].Message = err.Error()
		}
	}
	return results, nil
}
