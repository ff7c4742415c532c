package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"icemeta/internal/domain"
)

// SeedFile declares entities to create after bootstrap: principals,
// principal roles, and catalogs with their storage configuration.
type SeedFile struct {
	Principals     []SeedPrincipal `yaml:"principals"`
	PrincipalRoles []SeedRole      `yaml:"principalRoles"`
	Catalogs       []SeedCatalog   `yaml:"catalogs"`
}

// SeedPrincipal declares a principal to create.
type SeedPrincipal struct {
	Name string `yaml:"name"`
}

// SeedRole declares a principal role to create.
type SeedRole struct {
	Name string `yaml:"name"`
}

// SeedCatalog declares a catalog, where it stores data, and which principal
// roles get usage on its admin role.
type SeedCatalog struct {
	Name           string      `yaml:"name"`
	Storage        SeedStorage `yaml:"storage"`
	PrincipalRoles []string    `yaml:"principalRoles"`
}

// SeedStorage mirrors the storage configuration persisted on catalogs.
type SeedStorage struct {
	StorageType      string   `yaml:"storageType"`
	AllowedLocations []string `yaml:"allowedLocations"`
	RoleARN          string   `yaml:"roleArn"`
	Region           string   `yaml:"region"`
	AccountName      string   `yaml:"accountName"`
	ProjectID        string   `yaml:"projectId"`
}

// LoadSeedFile parses a YAML seed file. Unknown fields are rejected so typos
// fail loudly instead of silently dropping configuration.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var seed SeedFile
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Apply creates the declared entities. Entities that already exist are left
// alone, so a seed file can be re-applied safely.
func (f *SeedFile) Apply(ctx context.Context, manager domain.MetastoreManager, logger *slog.Logger) error {
	for _, p := range f.Principals {
		id := manager.GenerateNewEntityID(ctx)
		if !id.IsSuccess() {
			return fmt.Errorf("allocate id for principal %q: %s", p.Name, id.Status)
		}
		principal := domain.NewEntity(domain.NullID, id.ID, domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, p.Name)
		result := manager.CreatePrincipal(ctx, principal)
		switch result.Status {
		case domain.StatusSuccess:
			logger.Info("seeded principal", "name", p.Name, "client_id", result.Secrets.PrincipalClientID)
		case domain.StatusEntityAlreadyExists:
			logger.Debug("principal already exists", "name", p.Name)
		default:
			return fmt.Errorf("create principal %q: %s", p.Name, result.Status)
		}
	}

	for _, r := range f.PrincipalRoles {
		if err := seedTopLevel(ctx, manager, domain.EntityTypePrincipalRole, r.Name, logger); err != nil {
			return err
		}
	}

	for _, c := range f.Catalogs {
		if err := f.seedCatalog(ctx, manager, c, logger); err != nil {
			return err
		}
	}
	return nil
}

func seedTopLevel(ctx context.Context, manager domain.MetastoreManager, typ domain.EntityType, name string, logger *slog.Logger) error {
	id := manager.GenerateNewEntityID(ctx)
	if !id.IsSuccess() {
		return fmt.Errorf("allocate id for %s %q: %s", typ, name, id.Status)
	}
	entity := domain.NewEntity(domain.NullID, id.ID, domain.RootEntityID, typ, domain.SubTypeNull, name)
	result := manager.CreateEntityIfNotExists(ctx, nil, entity)
	switch result.Status {
	case domain.StatusSuccess:
		logger.Info("seeded entity", "type", typ.String(), "name", name)
		return nil
	case domain.StatusEntityAlreadyExists:
		logger.Debug("entity already exists", "type", typ.String(), "name", name)
		return nil
	default:
		return fmt.Errorf("create %s %q: %s", typ, name, result.Status)
	}
}

func (f *SeedFile) seedCatalog(ctx context.Context, manager domain.MetastoreManager, c SeedCatalog, logger *slog.Logger) error {
	id := manager.GenerateNewEntityID(ctx)
	if !id.IsSuccess() {
		return fmt.Errorf("allocate id for catalog %q: %s", c.Name, id.Status)
	}
	catalog := domain.NewEntity(domain.NullID, id.ID, domain.RootEntityID,
		domain.EntityTypeCatalog, domain.SubTypeNull, c.Name)

	storageCfg := domain.StorageConfigurationInfo{
		StorageType:      domain.StorageType(c.Storage.StorageType),
		AllowedLocations: c.Storage.AllowedLocations,
		RoleARN:          c.Storage.RoleARN,
		Region:           c.Storage.Region,
		AccountName:      c.Storage.AccountName,
		ProjectID:        c.Storage.ProjectID,
	}
	serialized, err := storageCfg.Serialize()
	if err != nil {
		return fmt.Errorf("serialize storage config for catalog %q: %w", c.Name, err)
	}
	if err := catalog.SetInternalPropertiesMap(map[string]string{
		domain.StorageConfigInfoPropertyName: serialized,
	}); err != nil {
		return fmt.Errorf("set catalog properties for %q: %w", c.Name, err)
	}

	var roles []domain.Entity
	for _, roleName := range c.PrincipalRoles {
		lookup := manager.ReadEntityByName(ctx, nil, domain.EntityTypePrincipalRole, domain.SubTypeNull, roleName)
		if !lookup.IsSuccess() {
			return fmt.Errorf("resolve principal role %q for catalog %q: %s", roleName, c.Name, lookup.Status)
		}
		roles = append(roles, *lookup.Entity)
	}

	result := manager.CreateCatalog(ctx, catalog, roles)
	switch result.Status {
	case domain.StatusSuccess:
		logger.Info("seeded catalog", "name", c.Name)
		return nil
	case domain.StatusEntityAlreadyExists:
		logger.Debug("catalog already exists", "name", c.Name)
		return nil
	default:
		return fmt.Errorf("create catalog %q: %s", c.Name, result.Status)
	}
}
