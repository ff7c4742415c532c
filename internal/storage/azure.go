package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"icemeta/internal/domain"
)

// azureIntegration vends container-scoped SAS tokens signed with the storage
// account key.
type azureIntegration struct {
	cfg      *domain.StorageConfigurationInfo
	cred     *azblob.SharedKeyCredential
	duration time.Duration
}

func newAzureIntegration(cfg *domain.StorageConfigurationInfo, accountKey string, duration time.Duration) (*azureIntegration, error) {
	i := &azureIntegration{cfg: cfg, duration: duration}
	if accountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, accountKey)
		if err != nil {
			return nil, fmt.Errorf("build azure credential: %w", err)
		}
		i.cred = cred
	}
	return i, nil
}

func (i *azureIntegration) Config() *domain.StorageConfigurationInfo { return i.cfg }

func (i *azureIntegration) SubscopeCredentials(ctx context.Context, allowListOperation bool, allowedReadLocations, allowedWriteLocations []string) (map[domain.CredentialProperty]string, error) {
	if i.cred == nil {
		return nil, domain.ErrValidation("no azure account key configured for account %q", i.cfg.AccountName)
	}
	if err := checkScope(i.cfg, allowedReadLocations, allowedWriteLocations); err != nil {
		return nil, err
	}
	// A SAS token is container-scoped, so every requested location must
	// live in the same container of the same account.
	container, host, err := commonContainer(append(append([]string{}, allowedReadLocations...), allowedWriteLocations...))
	if err != nil {
		return nil, err
	}
	write := len(allowedWriteLocations) > 0
	perms := sas.ContainerPermissions{
		Read:   true,
		List:   allowListOperation,
		Write:  write,
		Add:    write,
		Create: write,
		Delete: write,
	}
	expiry := time.Now().UTC().Add(i.duration)
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    expiry,
		Permissions:   perms.String(),
		ContainerName: container,
	}
	query, err := values.SignWithSharedKey(i.cred)
	if err != nil {
		return nil, fmt.Errorf("sign sas token: %w", err)
	}
	return map[domain.CredentialProperty]string{
		domain.CredentialAzureSASToken:    query.Encode(),
		domain.CredentialAzureAccountHost: host,
		domain.CredentialExpirationTime:   timeMillis(expiry),
	}, nil
}

func (i *azureIntegration) ValidateAccess(ctx context.Context, actions []domain.StorageAction, locations []string) ([]domain.LocationAccessResult, error) {
	return validateByScope(i.cfg, locations), nil
}

func commonContainer(locations []string) (container, host string, err error) {
	for _, loc := range locations {
		c, h, _, err := parseAzureURI(loc)
		if err != nil {
			return "", "", err
		}
		if container == "" {
			container, host = c, h
			continue
		}
		if c != container || h != host {
			return "", "", domain.ErrValidation("locations span multiple containers: %q and %q", container, c)
		}
	}
	if container == "" {
		return "", "", domain.ErrValidation("no locations requested")
	}
	return container, host, nil
}

// parseAzureURI splits abfss://container@account.dfs.core.windows.net/path
// style locations (wasb and https forms use the same shape).
func parseAzureURI(loc string) (container, host, path string, err error) {
	_, rest, found := strings.Cut(loc, "://")
	if !found {
		return "", "", "", domain.ErrValidation("location %q is not an azure uri", loc)
	}
	authority, path, _ := strings.Cut(rest, "/")
	container, host, found = strings.Cut(authority, "@")
	if !found || container == "" || host == "" {
		return "", "", "", domain.ErrValidation("location %q has no container@account authority", loc)
	}
	return container, host, path, nil
}
