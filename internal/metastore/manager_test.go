package metastore_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icemeta/internal/db"
	"icemeta/internal/db/crypto"
	"icemeta/internal/db/repository"
	"icemeta/internal/domain"
	"icemeta/internal/memstore"
	"icemeta/internal/metastore"
	"icemeta/internal/secrets"
	"icemeta/internal/storage"
)

const testTaskTimeoutMillis = 60_000

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type managerEnv struct {
	manager domain.MetastoreManager
	clock   *fakeClock
	secrets *secrets.Manager
}

// forEachManager runs the test body against both strategies: the atomic
// manager over the in-memory store and the transactional manager over a
// migrated SQLite file.
func forEachManager(t *testing.T, fn func(t *testing.T, env managerEnv)) {
	t.Helper()
	for _, strategy := range []string{"atomic", "transactional"} {
		strategy := strategy
		t.Run(strategy, func(t *testing.T) {
			clk := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
			env := managerEnv{clock: clk, secrets: secrets.NewManager()}
			opts := metastore.Options{
				Clock:             clk,
				Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
				StorageProvider:   &storage.Provider{},
				TaskTimeoutMillis: testTaskTimeoutMillis,
				Secrets:           env.secrets,
			}
			switch strategy {
			case "atomic":
				env.manager = metastore.NewAtomicManager(memstore.New(), opts)
			case "transactional":
				pools := db.OpenTestPools(t)
				enc, err := crypto.NewEncryptor(crypto.NewRandomKey())
				require.NoError(t, err)
				env.manager = metastore.NewTransactionalManager(repository.New(pools.Write, pools.Read, enc), opts)
			}
			fn(t, env)
		})
	}
}

func bootstrap(t *testing.T, m domain.MetastoreManager) {
	t.Helper()
	res := m.Bootstrap(context.Background())
	require.True(t, res.IsSuccess(), "bootstrap: %s %s", res.Status, res.ExtraInformation)
}

func newID(t *testing.T, m domain.MetastoreManager) int64 {
	t.Helper()
	res := m.GenerateNewEntityID(context.Background())
	require.True(t, res.IsSuccess())
	return res.ID
}

func createCatalog(t *testing.T, m domain.MetastoreManager, name string, allowedLocations ...string) (domain.Entity, domain.Entity) {
	t.Helper()
	catalog := domain.NewEntity(domain.NullID, newID(t, m), domain.RootEntityID,
		domain.EntityTypeCatalog, domain.SubTypeNull, name)
	if len(allowedLocations) > 0 {
		cfg := domain.StorageConfigurationInfo{StorageType: domain.StorageTypeFile, AllowedLocations: allowedLocations}
		payload, err := cfg.Serialize()
		require.NoError(t, err)
		require.NoError(t, catalog.SetInternalPropertiesMap(map[string]string{
			domain.StorageConfigInfoPropertyName: payload,
		}))
	}
	res := m.CreateCatalog(context.Background(), catalog, nil)
	require.True(t, res.IsSuccess(), "create catalog: %s %s", res.Status, res.ExtraInformation)
	return *res.Catalog, *res.CatalogRole
}

func createNamespace(t *testing.T, m domain.MetastoreManager, catalog domain.Entity, name string) domain.Entity {
	t.Helper()
	ns := domain.NewEntity(catalog.ID, newID(t, m), catalog.ID,
		domain.EntityTypeNamespace, domain.SubTypeNull, name)
	res := m.CreateEntityIfNotExists(context.Background(), []domain.Entity{catalog}, ns)
	require.True(t, res.IsSuccess(), "create namespace: %s %s", res.Status, res.ExtraInformation)
	return *res.Entity
}

func TestBootstrap(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		root := env.manager.LoadResolvedEntityByName(ctx, domain.NullID, domain.RootEntityID,
			domain.EntityTypeRoot, domain.RootContainerName)
		require.True(t, root.IsSuccess())
		assert.Equal(t, domain.RootEntityID, root.Entity.ID)

		principal := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipal, domain.SubTypeAny, domain.RootPrincipalName)
		require.True(t, principal.IsSuccess())
		assert.NotEmpty(t, principal.Entity.InternalProperty(domain.ClientIDPropertyName))

		role := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipalRole, domain.SubTypeAny, domain.ServiceAdminRoleName)
		require.True(t, role.IsSuccess())

		grants := env.manager.LoadGrantsToGrantee(ctx, domain.NullID, principal.Entity.ID)
		require.True(t, grants.IsSuccess())
		require.Len(t, grants.Grants, 1)
		assert.Equal(t, domain.PrivilegePrincipalRoleUsage, grants.Grants[0].PrivilegeCode)
		assert.Equal(t, role.Entity.ID, grants.Grants[0].SecurableID)
	})
}

func TestBootstrapIsIdempotent(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		before := env.manager.LoadResolvedEntityByID(ctx, domain.NullID, domain.RootEntityID)
		require.True(t, before.IsSuccess())

		bootstrap(t, env.manager)

		after := env.manager.LoadResolvedEntityByID(ctx, domain.NullID, domain.RootEntityID)
		require.True(t, after.IsSuccess())
		// A re-run must not churn versions or duplicate grants.
		assert.Equal(t, before.Entity.EntityVersion, after.Entity.EntityVersion)
		assert.Equal(t, before.GrantsVersion, after.GrantsVersion)
		assert.Equal(t, len(before.Grants), len(after.Grants))
	})
}

func TestPurge(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		createCatalog(t, env.manager, "prod")

		require.True(t, env.manager.Purge(ctx).IsSuccess())

		res := env.manager.LoadEntity(ctx, domain.NullID, domain.RootEntityID)
		assert.Equal(t, domain.StatusEntityNotFound, res.Status)
	})
}

func TestGenerateNewEntityID(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		a := newID(t, env.manager)
		b := newID(t, env.manager)
		assert.NotEqual(t, a, b)
	})
}

func TestCreatePrincipal(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		res := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, res.IsSuccess())
		require.NotNil(t, res.Secrets)
		assert.Equal(t, principal.ID, res.Secrets.PrincipalID)
		assert.NotEmpty(t, res.Secrets.MainSecret)
		assert.NotEqual(t, res.Secrets.MainSecret, res.Secrets.SecondarySecret)
		assert.Equal(t, res.Secrets.PrincipalClientID,
			res.Principal.InternalProperty(domain.ClientIDPropertyName))
	})
}

func TestCreatePrincipalRetryReturnsExistingSecrets(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		first := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, first.IsSuccess())

		retry := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, retry.IsSuccess())
		assert.Equal(t, first.Secrets.PrincipalClientID, retry.Secrets.PrincipalClientID)
		assert.Equal(t, first.Secrets.MainSecretHash, retry.Secrets.MainSecretHash)
	})
}

func TestCreatePrincipalNameConflict(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		first := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		require.True(t, env.manager.CreatePrincipal(ctx, first).IsSuccess())

		dup := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		res := env.manager.CreatePrincipal(ctx, dup)
		assert.Equal(t, domain.StatusEntityAlreadyExists, res.Status)
	})
}

func TestLoadPrincipalSecrets(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		created := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, created.IsSuccess())

		loaded := env.manager.LoadPrincipalSecrets(ctx, created.Secrets.PrincipalClientID)
		require.True(t, loaded.IsSuccess())
		assert.Equal(t, created.Secrets.MainSecretHash, loaded.Secrets.MainSecretHash)

		missing := env.manager.LoadPrincipalSecrets(ctx, "no-such-client")
		assert.Equal(t, domain.StatusEntityNotFound, missing.Status)
	})
}

func TestRotatePrincipalSecrets(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		created := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, created.IsSuccess())
		clientID := created.Secrets.PrincipalClientID

		rotated := env.manager.RotatePrincipalSecrets(ctx, clientID, principal.ID, false, created.Secrets.MainSecretHash)
		require.True(t, rotated.IsSuccess())
		// The old main secret survives one rotation in the secondary slot.
		assert.Equal(t, created.Secrets.MainSecretHash, rotated.Secrets.SecondarySecretHash)
		assert.NotEqual(t, created.Secrets.MainSecretHash, rotated.Secrets.MainSecretHash)
	})
}

func TestRotatePrincipalSecretsResetMarker(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		created := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, created.IsSuccess())
		clientID := created.Secrets.PrincipalClientID

		reset := env.manager.RotatePrincipalSecrets(ctx, clientID, principal.ID, true, created.Secrets.MainSecretHash)
		require.True(t, reset.IsSuccess())
		// A reset invalidates both outstanding secrets.
		assert.NotEqual(t, created.Secrets.MainSecretHash, reset.Secrets.MainSecretHash)
		assert.NotEqual(t, created.Secrets.MainSecretHash, reset.Secrets.SecondarySecretHash)

		loaded := env.manager.LoadEntity(ctx, domain.NullID, principal.ID)
		require.True(t, loaded.IsSuccess())
		assert.NotEmpty(t, loaded.Entity.InternalProperty(domain.CredentialRotationRequiredState))

		// The marker forces the next regular rotation into a reset and clears.
		next := env.manager.RotatePrincipalSecrets(ctx, clientID, principal.ID, false, reset.Secrets.MainSecretHash)
		require.True(t, next.IsSuccess())
		assert.NotEqual(t, reset.Secrets.MainSecretHash, next.Secrets.SecondarySecretHash)

		loaded = env.manager.LoadEntity(ctx, domain.NullID, principal.ID)
		require.True(t, loaded.IsSuccess())
		assert.Empty(t, loaded.Entity.InternalProperty(domain.CredentialRotationRequiredState))
	})
}

func TestRotatePrincipalSecretsUnknownPrincipal(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		res := env.manager.RotatePrincipalSecrets(ctx, "client", 424242, false, "hash")
		assert.Equal(t, domain.StatusEntityNotFound, res.Status)
	})
}

func TestCreateCatalog(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		catalog, adminRole := createCatalog(t, env.manager, "prod")
		assert.Equal(t, domain.CatalogAdminRoleName, adminRole.Name)
		assert.Equal(t, catalog.ID, adminRole.CatalogID)

		onCatalog := env.manager.LoadGrantsOnSecurable(ctx, catalog.CatalogID, catalog.ID)
		require.True(t, onCatalog.IsSuccess())
		privs := map[domain.Privilege]bool{}
		for _, g := range onCatalog.Grants {
			assert.Equal(t, adminRole.ID, g.GranteeID)
			privs[g.PrivilegeCode] = true
		}
		assert.True(t, privs[domain.PrivilegeCatalogManageAccess])
		assert.True(t, privs[domain.PrivilegeCatalogManageMetadata])

		// Without explicit principal roles, the service admin role receives
		// usage on the admin catalog role.
		serviceAdmin := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipalRole, domain.SubTypeAny, domain.ServiceAdminRoleName)
		require.True(t, serviceAdmin.IsSuccess())
		usage := env.manager.LoadGrantsToGrantee(ctx, domain.NullID, serviceAdmin.Entity.ID)
		require.True(t, usage.IsSuccess())
		found := false
		for _, g := range usage.Grants {
			if g.SecurableID == adminRole.ID && g.PrivilegeCode == domain.PrivilegeCatalogRoleUsage {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestCreateCatalogRetryIsIdempotent(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		catalog, adminRole := createCatalog(t, env.manager, "prod")
		retry := env.manager.CreateCatalog(ctx, catalog, nil)
		require.True(t, retry.IsSuccess())
		assert.Equal(t, catalog.ID, retry.Catalog.ID)
		assert.Equal(t, adminRole.ID, retry.CatalogRole.ID)
	})
}

func TestCreateCatalogNameConflict(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		createCatalog(t, env.manager, "prod")

		dup := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypeCatalog, domain.SubTypeNull, "prod")
		res := env.manager.CreateCatalog(ctx, dup, nil)
		assert.Equal(t, domain.StatusEntityAlreadyExists, res.Status)
	})
}

func TestCreateCatalogStashesAuthSecret(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		catalog := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypeCatalog, domain.SubTypeNull, "federated")
		require.NoError(t, catalog.SetInternalPropertiesMap(map[string]string{
			domain.AuthSecretPropertyName: "hunter2",
		}))
		res := env.manager.CreateCatalog(ctx, catalog, nil)
		require.True(t, res.IsSuccess())

		// The plaintext must not be persisted; only the reference is.
		assert.Empty(t, res.Catalog.InternalProperty(domain.AuthSecretPropertyName))
		refPayload := res.Catalog.InternalProperty(domain.AuthSecretReferencePropertyName)
		require.NotEmpty(t, refPayload)

		var ref domain.UserSecretReference
		require.NoError(t, jsonUnmarshal(refPayload, &ref))
		secret, err := env.secrets.ReadSecret(ref)
		require.NoError(t, err)
		assert.Equal(t, "hunter2", secret)
	})
}

func TestCreateEntityIfNotExists(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")

		ns := createNamespace(t, env.manager, catalog, "analytics")
		assert.Equal(t, catalog.ID, ns.CatalogID)
		assert.Equal(t, 1, ns.EntityVersion)
		assert.NotZero(t, ns.CreateTimestamp)

		// Same id, same name: idempotent retry.
		retry := env.manager.CreateEntityIfNotExists(ctx, []domain.Entity{catalog}, ns)
		require.True(t, retry.IsSuccess())
		assert.Equal(t, ns.ID, retry.Entity.ID)

		// Different id, same live name: conflict.
		dup := domain.NewEntity(catalog.ID, newID(t, env.manager), catalog.ID,
			domain.EntityTypeNamespace, domain.SubTypeNull, "analytics")
		conflict := env.manager.CreateEntityIfNotExists(ctx, []domain.Entity{catalog}, dup)
		assert.Equal(t, domain.StatusEntityAlreadyExists, conflict.Status)
	})
}

func TestCreateEntityUnresolvablePath(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		ghost := domain.NewEntity(domain.NullID, 424242, domain.RootEntityID,
			domain.EntityTypeCatalog, domain.SubTypeNull, "ghost")
		ns := domain.NewEntity(ghost.ID, newID(t, env.manager), ghost.ID,
			domain.EntityTypeNamespace, domain.SubTypeNull, "analytics")
		res := env.manager.CreateEntityIfNotExists(ctx, []domain.Entity{ghost}, ns)
		assert.Equal(t, domain.StatusCatalogPathCannotBeResolved, res.Status)
	})
}

func TestCreateEntitiesIfNotExist(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")

		batch := []domain.Entity{
			domain.NewEntity(catalog.ID, newID(t, env.manager), catalog.ID,
				domain.EntityTypeNamespace, domain.SubTypeNull, "bronze"),
			domain.NewEntity(catalog.ID, newID(t, env.manager), catalog.ID,
				domain.EntityTypeNamespace, domain.SubTypeNull, "silver"),
		}
		res := env.manager.CreateEntitiesIfNotExist(ctx, []domain.Entity{catalog}, batch)
		require.True(t, res.IsSuccess())
		assert.Len(t, res.Entities, 2)

		// A conflict on any element fails the batch as a unit.
		conflicting := []domain.Entity{
			domain.NewEntity(catalog.ID, newID(t, env.manager), catalog.ID,
				domain.EntityTypeNamespace, domain.SubTypeNull, "gold"),
			domain.NewEntity(catalog.ID, newID(t, env.manager), catalog.ID,
				domain.EntityTypeNamespace, domain.SubTypeNull, "bronze"),
		}
		failed := env.manager.CreateEntitiesIfNotExist(ctx, []domain.Entity{catalog}, conflicting)
		assert.Equal(t, domain.StatusEntityAlreadyExists, failed.Status)
		gold := env.manager.ReadEntityByName(ctx, []domain.Entity{catalog},
			domain.EntityTypeNamespace, domain.SubTypeAny, "gold")
		assert.Equal(t, domain.StatusEntityNotFound, gold.Status)
	})
}

func TestUpdateEntityPropertiesIfNotChanged(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		update := ns
		require.NoError(t, update.SetPropertiesMap(map[string]string{"owner": "data-eng"}))
		res := env.manager.UpdateEntityPropertiesIfNotChanged(ctx, []domain.Entity{catalog}, update)
		require.True(t, res.IsSuccess())
		assert.Equal(t, ns.EntityVersion+1, res.Entity.EntityVersion)

		props, err := res.Entity.PropertiesMap()
		require.NoError(t, err)
		assert.Equal(t, "data-eng", props["owner"])

		// The first caller won; the same stale version loses now.
		stale := env.manager.UpdateEntityPropertiesIfNotChanged(ctx, []domain.Entity{catalog}, update)
		assert.Equal(t, domain.StatusTargetEntityConcurrentlyModified, stale.Status)
	})
}

func TestUpdateEntitiesPropertiesIfNotChanged(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		a := createNamespace(t, env.manager, catalog, "a")
		b := createNamespace(t, env.manager, catalog, "b")

		require.NoError(t, a.SetPropertiesMap(map[string]string{"k": "1"}))
		require.NoError(t, b.SetPropertiesMap(map[string]string{"k": "2"}))
		res := env.manager.UpdateEntitiesPropertiesIfNotChanged(ctx, []domain.EntityWithPath{
			{CatalogPath: []domain.Entity{catalog}, Entity: a},
			{CatalogPath: []domain.Entity{catalog}, Entity: b},
		})
		require.True(t, res.IsSuccess())
		require.Len(t, res.Entities, 2)
		assert.Equal(t, a.EntityVersion+1, res.Entities[0].EntityVersion)
	})
}

func TestRenameEntity(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		renamed := ns
		renamed.Name = "insights"
		res := env.manager.RenameEntity(ctx, []domain.Entity{catalog}, ns, nil, renamed)
		require.True(t, res.IsSuccess())
		assert.Equal(t, "insights", res.Entity.Name)
		assert.Equal(t, ns.EntityVersion+1, res.Entity.EntityVersion)

		// The old name is free again, the new name resolves.
		old := env.manager.ReadEntityByName(ctx, []domain.Entity{catalog},
			domain.EntityTypeNamespace, domain.SubTypeAny, "analytics")
		assert.Equal(t, domain.StatusEntityNotFound, old.Status)
		current := env.manager.ReadEntityByName(ctx, []domain.Entity{catalog},
			domain.EntityTypeNamespace, domain.SubTypeAny, "insights")
		require.True(t, current.IsSuccess())
		assert.Equal(t, ns.ID, current.Entity.ID)
	})
}

func TestRenameEntityTargetTaken(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")
		createNamespace(t, env.manager, catalog, "insights")

		renamed := ns
		renamed.Name = "insights"
		res := env.manager.RenameEntity(ctx, []domain.Entity{catalog}, ns, nil, renamed)
		assert.Equal(t, domain.StatusEntityAlreadyExists, res.Status)
	})
}

func TestRenameEntityStaleVersion(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		update := ns
		require.NoError(t, update.SetPropertiesMap(map[string]string{"k": "v"}))
		require.True(t, env.manager.UpdateEntityPropertiesIfNotChanged(ctx, []domain.Entity{catalog}, update).IsSuccess())

		renamed := ns // still at the pre-update version
		renamed.Name = "insights"
		res := env.manager.RenameEntity(ctx, []domain.Entity{catalog}, ns, nil, renamed)
		assert.Equal(t, domain.StatusTargetEntityConcurrentlyModified, res.Status)
	})
}

func TestRenameEntityForbidden(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		task := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypeTask, domain.SubTypeNull, "task_1")
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, nil, task).IsSuccess())
		renamedTask := task
		renamedTask.Name = "task_2"
		res := env.manager.RenameEntity(ctx, nil, task, nil, renamedTask)
		assert.Equal(t, domain.StatusEntityCannotBeRenamed, res.Status)

		rootPrincipal := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipal, domain.SubTypeAny, domain.RootPrincipalName)
		require.True(t, rootPrincipal.IsSuccess())
		renamedRoot := *rootPrincipal.Entity
		renamedRoot.Name = "superuser"
		res = env.manager.RenameEntity(ctx, nil, *rootPrincipal.Entity, nil, renamedRoot)
		assert.Equal(t, domain.StatusEntityCannotBeRenamed, res.Status)

		// A caller lying about the current name must not slip past the
		// name-keyed checks: the persisted entity decides.
		spoofed := *rootPrincipal.Entity
		spoofed.Name = "not_root"
		renamedSpoofed := spoofed
		renamedSpoofed.Name = "superuser"
		res = env.manager.RenameEntity(ctx, nil, spoofed, nil, renamedSpoofed)
		assert.Equal(t, domain.StatusEntityCannotBeRenamed, res.Status)
		still := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipal, domain.SubTypeAny, domain.RootPrincipalName)
		require.True(t, still.IsSuccess())
		assert.Equal(t, rootPrincipal.Entity.ID, still.Entity.ID)

		// Claiming a non-task is a task does not make the rename succeed.
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")
		asTask := ns
		asTask.TypeCode = domain.EntityTypeTask
		renamedNs := asTask
		renamedNs.Name = "insights"
		res = env.manager.RenameEntity(ctx, []domain.Entity{catalog}, asTask, nil, renamedNs)
		assert.Equal(t, domain.StatusEntityCannotBeRenamed, res.Status)
	})
}

func TestDropEntityIfExists(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		res := env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, false)
		require.True(t, res.IsSuccess())
		assert.Zero(t, res.CleanupTaskID)

		gone := env.manager.LoadEntity(ctx, ns.CatalogID, ns.ID)
		assert.Equal(t, domain.StatusEntityNotFound, gone.Status)

		// Dropping again reports the miss.
		again := env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, false)
		assert.Equal(t, domain.StatusEntityNotFound, again.Status)
	})
}

func TestDropEntityUndroppable(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		rootPrincipal := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipal, domain.SubTypeAny, domain.RootPrincipalName)
		require.True(t, rootPrincipal.IsSuccess())
		res := env.manager.DropEntityIfExists(ctx, nil, *rootPrincipal.Entity, nil, false)
		assert.Equal(t, domain.StatusEntityUndroppable, res.Status)

		serviceAdmin := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipalRole, domain.SubTypeAny, domain.ServiceAdminRoleName)
		require.True(t, serviceAdmin.IsSuccess())
		res = env.manager.DropEntityIfExists(ctx, nil, *serviceAdmin.Entity, nil, false)
		assert.Equal(t, domain.StatusEntityUndroppable, res.Status)
	})
}

func TestDropNamespaceNotEmpty(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		table := domain.NewEntity(catalog.ID, newID(t, env.manager), ns.ID,
			domain.EntityTypeTableLike, domain.SubTypeTable, "events")
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, []domain.Entity{catalog, ns}, table).IsSuccess())

		res := env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, false)
		assert.Equal(t, domain.StatusNamespaceNotEmpty, res.Status)
	})
}

func TestDropCatalog(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		// A catalog holding namespaces cannot be dropped.
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")
		res := env.manager.DropEntityIfExists(ctx, nil, catalog, nil, false)
		assert.Equal(t, domain.StatusNamespaceNotEmpty, res.Status)

		// Nor one with catalog roles beyond the admin role.
		require.True(t, env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, false).IsSuccess())
		extraRole := domain.NewEntity(catalog.ID, newID(t, env.manager), catalog.ID,
			domain.EntityTypeCatalogRole, domain.SubTypeNull, "readers")
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, []domain.Entity{catalog}, extraRole).IsSuccess())
		res = env.manager.DropEntityIfExists(ctx, nil, catalog, nil, false)
		assert.Equal(t, domain.StatusCatalogNotEmpty, res.Status)

		// The admin role itself rides along with the drop.
		require.True(t, env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, extraRole, nil, false).IsSuccess())
		res = env.manager.DropEntityIfExists(ctx, nil, catalog, nil, false)
		require.True(t, res.IsSuccess(), "drop catalog: %s", res.Status)
		assert.Equal(t, domain.StatusEntityNotFound, env.manager.LoadEntity(ctx, catalog.CatalogID, catalog.ID).Status)
	})
}

func TestDropPrincipalDeletesSecrets(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		created := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, created.IsSuccess())

		require.True(t, env.manager.DropEntityIfExists(ctx, nil, *created.Principal, nil, false).IsSuccess())
		loaded := env.manager.LoadPrincipalSecrets(ctx, created.Secrets.PrincipalClientID)
		assert.Equal(t, domain.StatusEntityNotFound, loaded.Status)
	})
}

func TestDropWithCleanupSchedulesTask(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")
		table := domain.NewEntity(catalog.ID, newID(t, env.manager), ns.ID,
			domain.EntityTypeTableLike, domain.SubTypeTable, "events")
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, []domain.Entity{catalog, ns}, table).IsSuccess())

		res := env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog, ns}, table,
			map[string]string{"purge-data": "true"}, true)
		require.True(t, res.IsSuccess())
		require.NotZero(t, res.CleanupTaskID)

		taskRes := env.manager.LoadEntity(ctx, domain.NullID, res.CleanupTaskID)
		require.True(t, taskRes.IsSuccess())
		task := taskRes.Entity
		assert.Equal(t, domain.EntityTypeTask, task.TypeCode)
		assert.Equal(t, domain.CleanupTaskName(table.ID), task.Name)

		props, err := task.PropertiesMap()
		require.NoError(t, err)
		assert.Equal(t, strconv.Itoa(int(domain.TaskTypeEntityCleanupScheduler)), props[domain.TaskTypeProperty])

		var dropped domain.Entity
		require.NoError(t, jsonUnmarshal(props[domain.TaskDataProperty], &dropped))
		assert.Equal(t, table.ID, dropped.ID)
		assert.Equal(t, "events", dropped.Name)

		assert.Equal(t, "true", task.InternalProperty("purge-data"))
	})
}

func TestGrantAndRevokeRoleUsage(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		created := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, created.IsSuccess())

		role := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipalRole, domain.SubTypeNull, "data_engineer")
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, nil, role).IsSuccess())

		grant := env.manager.GrantUsageOnRoleToGrantee(ctx, nil, role, *created.Principal)
		require.True(t, grant.IsSuccess())
		assert.Equal(t, domain.PrivilegePrincipalRoleUsage, grant.Grant.PrivilegeCode)

		toGrantee := env.manager.LoadGrantsToGrantee(ctx, domain.NullID, created.Principal.ID)
		require.True(t, toGrantee.IsSuccess())
		require.Len(t, toGrantee.Grants, 1)
		require.Len(t, toGrantee.Entities, 1)
		assert.Equal(t, role.ID, toGrantee.Entities[0].ID)

		revoke := env.manager.RevokeUsageOnRoleFromGrantee(ctx, nil, role, *created.Principal)
		require.True(t, revoke.IsSuccess())

		again := env.manager.RevokeUsageOnRoleFromGrantee(ctx, nil, role, *created.Principal)
		assert.Equal(t, domain.StatusGrantNotFound, again.Status)
	})
}

func TestGrantUsageRejectsMismatchedTypes(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)

		principal := domain.NewEntity(domain.NullID, newID(t, env.manager), domain.RootEntityID,
			domain.EntityTypePrincipal, domain.SubTypeNull, "alice")
		created := env.manager.CreatePrincipal(ctx, principal)
		require.True(t, created.IsSuccess())
		catalog, adminRole := createCatalog(t, env.manager, "prod")

		// A catalog role can only be granted to a principal role.
		res := env.manager.GrantUsageOnRoleToGrantee(ctx, &catalog, adminRole, *created.Principal)
		assert.Equal(t, domain.StatusEntityNotFound, res.Status)
	})
}

func TestGrantPrivilegeOnSecurable(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, adminRole := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		before := env.manager.LoadEntity(ctx, ns.CatalogID, ns.ID)
		require.True(t, before.IsSuccess())

		grant := env.manager.GrantPrivilegeOnSecurableToRole(ctx, adminRole,
			[]domain.Entity{catalog}, ns, domain.PrivilegeTableCreate)
		require.True(t, grant.IsSuccess())

		// Granting moves the grant-records version, not the entity version.
		after := env.manager.LoadEntity(ctx, ns.CatalogID, ns.ID)
		require.True(t, after.IsSuccess())
		assert.Equal(t, before.Entity.EntityVersion, after.Entity.EntityVersion)
		assert.Equal(t, before.Entity.GrantRecordsVersion+1, after.Entity.GrantRecordsVersion)

		onSecurable := env.manager.LoadGrantsOnSecurable(ctx, ns.CatalogID, ns.ID)
		require.True(t, onSecurable.IsSuccess())
		require.Len(t, onSecurable.Grants, 1)
		assert.Equal(t, domain.PrivilegeTableCreate, onSecurable.Grants[0].PrivilegeCode)
		assert.Equal(t, after.Entity.GrantRecordsVersion, onSecurable.GrantsVersion)

		revoke := env.manager.RevokePrivilegeOnSecurableFromRole(ctx, adminRole,
			[]domain.Entity{catalog}, ns, domain.PrivilegeTableCreate)
		require.True(t, revoke.IsSuccess())
		missing := env.manager.RevokePrivilegeOnSecurableFromRole(ctx, adminRole,
			[]domain.Entity{catalog}, ns, domain.PrivilegeTableCreate)
		assert.Equal(t, domain.StatusGrantNotFound, missing.Status)
	})
}

func TestDropDetachesGrantsAndBumpsCounterparties(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, adminRole := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		require.True(t, env.manager.GrantPrivilegeOnSecurableToRole(ctx, adminRole,
			[]domain.Entity{catalog}, ns, domain.PrivilegeTableCreate).IsSuccess())
		roleBefore := env.manager.LoadEntity(ctx, adminRole.CatalogID, adminRole.ID)
		require.True(t, roleBefore.IsSuccess())

		require.True(t, env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, false).IsSuccess())

		// The surviving grantee's grant-records version moved so its caches
		// invalidate, and the grant itself is gone.
		roleAfter := env.manager.LoadEntity(ctx, adminRole.CatalogID, adminRole.ID)
		require.True(t, roleAfter.IsSuccess())
		assert.Greater(t, roleAfter.Entity.GrantRecordsVersion, roleBefore.Entity.GrantRecordsVersion)

		toGrantee := env.manager.LoadGrantsToGrantee(ctx, adminRole.CatalogID, adminRole.ID)
		require.True(t, toGrantee.IsSuccess())
		for _, g := range toGrantee.Grants {
			assert.NotEqual(t, ns.ID, g.SecurableID)
		}
	})
}

func TestListEntities(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		table := domain.NewEntity(catalog.ID, newID(t, env.manager), ns.ID,
			domain.EntityTypeTableLike, domain.SubTypeTable, "events")
		view := domain.NewEntity(catalog.ID, newID(t, env.manager), ns.ID,
			domain.EntityTypeTableLike, domain.SubTypeView, "daily_events")
		path := []domain.Entity{catalog, ns}
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, path, table).IsSuccess())
		require.True(t, env.manager.CreateEntityIfNotExists(ctx, path, view).IsSuccess())

		all := env.manager.ListEntities(ctx, path, domain.EntityTypeTableLike, domain.SubTypeAny)
		require.True(t, all.IsSuccess())
		assert.Len(t, all.Entities, 2)

		tables := env.manager.ListEntities(ctx, path, domain.EntityTypeTableLike, domain.SubTypeTable)
		require.True(t, tables.IsSuccess())
		require.Len(t, tables.Entities, 1)
		assert.Equal(t, "events", tables.Entities[0].Name)

		// Subtype narrows name lookups too.
		asView := env.manager.ReadEntityByName(ctx, path, domain.EntityTypeTableLike, domain.SubTypeView, "events")
		assert.Equal(t, domain.StatusEntityNotFound, asView.Status)
	})
}

func TestLoadEntitiesChangeTracking(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")

		res := env.manager.LoadEntitiesChangeTracking(ctx, []domain.EntityID{
			{CatalogID: catalog.CatalogID, ID: catalog.ID},
			{CatalogID: domain.NullID, ID: 424242},
		})
		require.True(t, res.IsSuccess())
		require.Len(t, res.Versions, 2)
		require.NotNil(t, res.Versions[0])
		assert.Equal(t, catalog.EntityVersion, res.Versions[0].EntityVersion)
		assert.Nil(t, res.Versions[1])
	})
}

func TestLoadTasks(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		ns := createNamespace(t, env.manager, catalog, "analytics")

		drop := env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, true)
		require.True(t, drop.IsSuccess())
		require.NotZero(t, drop.CleanupTaskID)

		leased := env.manager.LoadTasks(ctx, "executor-1", 10)
		require.True(t, leased.IsSuccess())
		require.Len(t, leased.Entities, 1)
		props, err := leased.Entities[0].PropertiesMap()
		require.NoError(t, err)
		assert.Equal(t, "1", props[domain.TaskAttemptCountProperty])
		assert.Equal(t, "executor-1", props[domain.TaskLastAttemptExecutorIDProperty])

		// The lease holds until the timeout elapses.
		held := env.manager.LoadTasks(ctx, "executor-2", 10)
		require.True(t, held.IsSuccess())
		assert.Empty(t, held.Entities)

		env.clock.Advance(time.Duration(testTaskTimeoutMillis+1) * time.Millisecond)
		expired := env.manager.LoadTasks(ctx, "executor-2", 10)
		require.True(t, expired.IsSuccess())
		require.Len(t, expired.Entities, 1)
		props, err = expired.Entities[0].PropertiesMap()
		require.NoError(t, err)
		assert.Equal(t, "2", props[domain.TaskAttemptCountProperty])
		assert.Equal(t, "executor-2", props[domain.TaskLastAttemptExecutorIDProperty])
	})
}

func TestLoadTasksHonorsLimit(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")
		for _, name := range []string{"a", "b", "c"} {
			ns := createNamespace(t, env.manager, catalog, name)
			require.True(t, env.manager.DropEntityIfExists(ctx, []domain.Entity{catalog}, ns, nil, true).IsSuccess())
		}

		leased := env.manager.LoadTasks(ctx, "executor-1", 2)
		require.True(t, leased.IsSuccess())
		assert.Len(t, leased.Entities, 2)

		rest := env.manager.LoadTasks(ctx, "executor-1", 2)
		require.True(t, rest.IsSuccess())
		assert.Len(t, rest.Entities, 1)
	})
}

func TestResolvedEntityLifecycle(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, adminRole := createCatalog(t, env.manager, "prod")

		byID := env.manager.LoadResolvedEntityByID(ctx, catalog.CatalogID, catalog.ID)
		require.True(t, byID.IsSuccess())
		assert.Equal(t, catalog.ID, byID.Entity.ID)
		assert.NotEmpty(t, byID.Grants)

		byName := env.manager.LoadResolvedEntityByName(ctx, domain.NullID, domain.RootEntityID,
			domain.EntityTypeCatalog, "prod")
		require.True(t, byName.IsSuccess())
		assert.Equal(t, byID.Entity.ID, byName.Entity.ID)
		assert.Equal(t, byID.GrantsVersion, byName.GrantsVersion)

		// A current cache entry refreshes to an empty delta.
		fresh := env.manager.RefreshResolvedEntity(ctx, byID.Entity.Versions(),
			catalog.CatalogID, domain.EntityTypeCatalog, catalog.ID)
		require.True(t, fresh.IsSuccess())
		assert.Nil(t, fresh.Entity)
		assert.Nil(t, fresh.Grants)

		// A property change surfaces only the entity.
		update := *byID.Entity
		require.NoError(t, update.SetPropertiesMap(map[string]string{"owner": "data-eng"}))
		require.True(t, env.manager.UpdateEntityPropertiesIfNotChanged(ctx, nil, update).IsSuccess())
		afterUpdate := env.manager.RefreshResolvedEntity(ctx, byID.Entity.Versions(),
			catalog.CatalogID, domain.EntityTypeCatalog, catalog.ID)
		require.True(t, afterUpdate.IsSuccess())
		require.NotNil(t, afterUpdate.Entity)
		assert.Nil(t, afterUpdate.Grants)

		// A grant change surfaces the grants.
		require.True(t, env.manager.GrantPrivilegeOnSecurableToRole(ctx, adminRole,
			nil, catalog, domain.PrivilegeCatalogManageContent).IsSuccess())
		versions := afterUpdate.Entity.Versions()
		afterGrant := env.manager.RefreshResolvedEntity(ctx, versions,
			catalog.CatalogID, domain.EntityTypeCatalog, catalog.ID)
		require.True(t, afterGrant.IsSuccess())
		assert.Nil(t, afterGrant.Entity)
		assert.NotEmpty(t, afterGrant.Grants)

		// A type mismatch is a miss.
		wrongType := env.manager.RefreshResolvedEntity(ctx, versions,
			catalog.CatalogID, domain.EntityTypeNamespace, catalog.ID)
		assert.Equal(t, domain.StatusEntityNotFound, wrongType.Status)
	})
}

func TestLoadResolvedRootBackfillsBootstrap(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		// No bootstrap: resolving the root container must backfill it.
		res := env.manager.LoadResolvedEntityByName(ctx, domain.NullID, domain.RootEntityID,
			domain.EntityTypeRoot, domain.RootContainerName)
		require.True(t, res.IsSuccess(), "backfill: %s %s", res.Status, res.ExtraInformation)
		assert.Equal(t, domain.RootEntityID, res.Entity.ID)

		principal := env.manager.ReadEntityByName(ctx, nil,
			domain.EntityTypePrincipal, domain.SubTypeAny, domain.RootPrincipalName)
		assert.True(t, principal.IsSuccess())
	})
}

func TestGetSubscopedCredsForEntity(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod", "file:///warehouse/prod")

		res := env.manager.GetSubscopedCredsForEntity(ctx, catalog.CatalogID, catalog.ID, true,
			[]string{"file:///warehouse/prod/analytics"}, nil)
		require.True(t, res.IsSuccess(), "subscope: %s %s", res.Status, res.ExtraInformation)
		assert.NotEmpty(t, res.Credentials[domain.CredentialExpirationTime])

		outside := env.manager.GetSubscopedCredsForEntity(ctx, catalog.CatalogID, catalog.ID, true,
			[]string{"file:///other/warehouse"}, nil)
		assert.Equal(t, domain.StatusSubscopeCredsError, outside.Status)
	})
}

func TestGetSubscopedCredsWithoutConfig(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		catalog, _ := createCatalog(t, env.manager, "prod")

		res := env.manager.GetSubscopedCredsForEntity(ctx, catalog.CatalogID, catalog.ID, false, nil, nil)
		assert.Equal(t, domain.StatusSubscopeCredsError, res.Status)

		missing := env.manager.GetSubscopedCredsForEntity(ctx, domain.NullID, 424242, false, nil, nil)
		assert.Equal(t, domain.StatusEntityNotFound, missing.Status)
	})
}

func TestValidateAccessToLocations(t *testing.T) {
	forEachManager(t, func(t *testing.T, env managerEnv) {
		ctx := context.Background()
		bootstrap(t, env.manager)
		dir := t.TempDir()
		catalog, _ := createCatalog(t, env.manager, "prod", "file://"+dir)

		res := env.manager.ValidateAccessToLocations(ctx, catalog.CatalogID, catalog.ID,
			[]domain.StorageAction{domain.StorageActionWrite},
			[]string{"file://" + dir + "/table", "file:///elsewhere"})
		require.True(t, res.IsSuccess())
		require.Len(t, res.Results, 2)
		assert.True(t, res.Results[0].Allowed)
		assert.False(t, res.Results[1].Allowed)
		assert.NotEmpty(t, res.Results[1].Message)
	})
}

// jsonUnmarshal keeps the call sites terse.
func jsonUnmarshal(payload string, v any) error {
	return json.Unmarshal([]byte(payload), v)
}
