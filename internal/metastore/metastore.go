// Package metastore implements the MetastoreManager contract on top of a
// persistence Store.
//
// Two managers are provided. TransactionalManager requires a TxStore and runs
// every operation, including its re-resolution of caller-supplied paths,
// inside a single serializable transaction. AtomicManager works against a
// plain Store and relies on the store's per-write compare-and-swap guarantees
// instead, which lets it run on backends without multi-statement
// transactions.
//
// All operation logic lives in shared cores that take the Store to use as an
// argument, so the two managers differ only in how those cores are invoked
// and in how mid-operation races surface.
package metastore

import (
	"log/slog"
	"strconv"

	"icemeta/internal/domain"
)

// Options configures a manager. Zero values select production defaults.
type Options struct {
	// Clock stamps entity timestamps and drives task-lease expiry.
	Clock domain.Clock

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// StorageProvider builds storage integrations for credential vending.
	// Without one, GetSubscopedCredsForEntity and ValidateAccessToLocations
	// fail with SUBSCOPE_CREDS_ERROR.
	StorageProvider domain.StorageIntegrationProvider

	// TaskTimeoutMillis is how long a leased task stays owned by its
	// executor before LoadTasks may hand it to another one.
	TaskTimeoutMillis int64

	// Secrets stores user-supplied connection secrets outside the entity
	// model. Without one, plaintext secret properties are persisted as-is.
	Secrets domain.UserSecretsManager
}

func (o Options) core() core {
	c := core{
		clock:       o.Clock,
		logger:      o.Logger,
		storage:     o.StorageProvider,
		taskTimeout: o.TaskTimeoutMillis,
		secrets:     o.Secrets,
	}
	if c.clock == nil {
		c.clock = domain.SystemClock{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.taskTimeout <= 0 {
		c.taskTimeout = domain.DefaultTaskTimeoutMillis
	}
	return c
}

// core holds the dependencies and helpers shared by both managers.
type core struct {
	clock       domain.Clock
	logger      *slog.Logger
	storage     domain.StorageIntegrationProvider
	taskTimeout int64
	secrets     domain.UserSecretsManager
}

func (c *core) nowMillis() int64 {
	return domain.TimestampMillis(c.clock.Now())
}

// isUndroppable reports whether the entity is part of the bootstrap fixture
// that must survive for the service to stay usable.
func isUndroppable(e *domain.Entity) bool {
	switch e.TypeCode {
	case domain.EntityTypeRoot:
		return true
	case domain.EntityTypePrincipal:
		return e.Name == domain.RootPrincipalName
	case domain.EntityTypePrincipalRole:
		return e.Name == domain.ServiceAdminRoleName
	}
	return false
}

func subTypeInfo(s domain.EntitySubType) string {
	return strconv.Itoa(int(s))
}
