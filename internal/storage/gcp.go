package storage

import (
	"context"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"icemeta/internal/domain"
)

// gcsIntegration vends OAuth2 access tokens from the ambient service
// account, scoped read-only when no write locations were requested.
type gcsIntegration struct {
	cfg *domain.StorageConfigurationInfo
}

func newGCSIntegration(cfg *domain.StorageConfigurationInfo) *gcsIntegration {
	return &gcsIntegration{cfg: cfg}
}

func (i *gcsIntegration) Config() *domain.StorageConfigurationInfo { return i.cfg }

func (i *gcsIntegration) SubscopeCredentials(ctx context.Context, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) (map[domain.CredentialProperty]string, error) {
	if err := checkScope(i.cfg, allowedReadLocations, allowedWriteLocations); err != nil {
		return nil, err
	}
	scope := gcs.ScopeReadOnly
	if len(allowedWriteLocations) > 0 {
		scope = gcs.ScopeReadWrite
	}
	ts, err := google.DefaultTokenSource(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("resolve gcs token source: %w", err)
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("fetch gcs access token: %w", err)
	}
	expires := timeMillis(tok.Expiry)
	return map[domain.CredentialProperty]string{
		domain.CredentialGCSAccessToken:    tok.AccessToken,
		domain.CredentialGCSTokenExpiresAt: expires,
		domain.CredentialExpirationTime:    expires,
	}, nil
}

// ValidateAccess probes the bucket of each in-scope location.
func (i *gcsIntegration) ValidateAccess(ctx context.Context, actions []domain.StorageAction, locations []string) ([]domain.LocationAccessResult, error) {
	results := validateByScope(i.cfg, locations)
	client, err := gcs.NewClient(ctx, option.WithScopes(gcs.ScopeReadOnly))
	if err != nil {
		return nil, fmt.Errorf("build gcs client: %w", err)
	}
	defer client.Close()
	for idx := range results {
		if !results[idx].Allowed {
			continue
		}
		bucket, _, err := parseGCSURI(results[idx].Location)
		if err != nil {
			results[idx].Allowed = false
			results[idx].Message = err.Error()
			continue
		}
		if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
			results[idx].Allowed = false
			results[idx].Message = err.Error()
		}
	}
	return results, nil
}

func parseGCSURI(loc string) (bucket, prefix string, err error) {
	trimmed, ok := strings.CutPrefix(loc, "gs://")
	if !ok {
		return "", "", domain.ErrValidation("location %q is not a gcs uri", loc)
	}
	bucket, prefix, _ = strings.Cut(trimmed, "/")
	if bucket == "" {
		return "", "", domain.ErrValidation("location %q has no bucket", loc)
	}
	return bucket, prefix, nil
}
