package tasks_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icemeta/internal/domain"
	"icemeta/internal/memstore"
	"icemeta/internal/metastore"
	"icemeta/internal/tasks"
)

const leaseTimeoutMillis = int64(60_000)

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
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) (domain.MetastoreManager, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	manager := metastore.NewAtomicManager(memstore.New(), metastore.Options{
		Clock:             clk,
		Logger:            discardLogger(),
		TaskTimeoutMillis: leaseTimeoutMillis,
	})
	require.True(t, manager.Bootstrap(context.Background()).IsSuccess())
	return manager, clk
}

// scheduleCleanupTask persists a cleanup task the way a drop would.
func scheduleCleanupTask(t *testing.T, manager domain.MetastoreManager, taskType domain.TaskType, dropped domain.Entity) domain.Entity {
	t.Helper()
	ctx := context.Background()

	idResult := manager.GenerateNewEntityID(ctx)
	require.True(t, idResult.IsSuccess())
	task := domain.NewEntity(domain.NullID, idResult.ID, domain.RootEntityID,
		domain.EntityTypeTask, domain.SubTypeNull, domain.CleanupTaskName(dropped.ID))
	data, err := json.Marshal(dropped)
	require.NoError(t, err)
	require.NoError(t, task.SetPropertiesMap(map[string]string{
		domain.TaskTypeProperty: strconv.Itoa(int(taskType)),
		domain.TaskDataProperty: string(data),
	}))

	created := manager.CreateEntityIfNotExists(ctx, nil, task)
	require.True(t, created.IsSuccess())
	return *created.Entity
}

func taskExists(t *testing.T, manager domain.MetastoreManager, task domain.Entity) bool {
	t.Helper()
	result := manager.LoadEntity(context.Background(), task.CatalogID, task.ID)
	switch result.Status {
	case domain.StatusSuccess:
		return true
	case domain.StatusEntityNotFound:
		return false
	}
	t.Fatalf("unexpected status %s", result.Status)
	return false
}

func TestRunOnceCompletesCleanupTask(t *testing.T) {
	manager, _ := newManager(t)
	dropped := domain.NewEntity(7, 2001, 7, domain.EntityTypeTableLike, domain.SubTypeTable, "orders")
	task := scheduleCleanupTask(t, manager, domain.TaskTypeEntityCleanupScheduler, dropped)

	executor := tasks.NewExecutor(manager, discardLogger(), "@every 1h")
	executor.RunOnce(context.Background())

	assert.False(t, taskExists(t, manager, task))
}

func TestRunOnceSkipsUnknownTaskType(t *testing.T) {
	manager, _ := newManager(t)
	dropped := domain.NewEntity(7, 2001, 7, domain.EntityTypeTableLike, domain.SubTypeTable, "orders")
	task := scheduleCleanupTask(t, manager, domain.TaskType(99), dropped)

	executor := tasks.NewExecutor(manager, discardLogger(), "@every 1h")
	executor.RunOnce(context.Background())

	// The task stays queued for an executor that knows the type.
	assert.True(t, taskExists(t, manager, task))
}

func TestFailedTaskIsRetriedAfterLeaseExpiry(t *testing.T) {
	manager, clk := newManager(t)
	dropped := domain.NewEntity(7, 2001, 7, domain.EntityTypeTableLike, domain.SubTypeTable, "orders")
	task := scheduleCleanupTask(t, manager, domain.TaskTypeEntityCleanupScheduler, dropped)

	executor := tasks.NewExecutor(manager, discardLogger(), "@every 1h")
	attempts := 0
	executor.Register(domain.TaskTypeEntityCleanupScheduler, func(ctx context.Context, task domain.Entity) error {
		attempts++
		if attempts == 1 {
			return fmt.Errorf("transient failure")
		}
		return nil
	})

	ctx := context.Background()
	executor.RunOnce(ctx)
	assert.Equal(t, 1, attempts)
	assert.True(t, taskExists(t, manager, task))

	// The lease is still held, so an immediate re-run picks up nothing.
	executor.RunOnce(ctx)
	assert.Equal(t, 1, attempts)

	clk.Advance(time.Duration(leaseTimeoutMillis+1) * time.Millisecond)
	executor.RunOnce(ctx)
	assert.Equal(t, 2, attempts)
	assert.False(t, taskExists(t, manager, task))
}

func TestRegisteredHandlerReceivesTaskPayload(t *testing.T) {
	manager, _ := newManager(t)
	dropped := domain.NewEntity(7, 2001, 7, domain.EntityTypeTableLike, domain.SubTypeTable, "orders")
	scheduleCleanupTask(t, manager, domain.TaskTypeEntityCleanupScheduler, dropped)

	executor := tasks.NewExecutor(manager, discardLogger(), "@every 1h")
	var got domain.Entity
	executor.Register(domain.TaskTypeEntityCleanupScheduler, func(ctx context.Context, task domain.Entity) error {
		got = task
		return nil
	})
	executor.RunOnce(context.Background())

	require.Equal(t, domain.CleanupTaskName(dropped.ID), got.Name)
	props, err := got.PropertiesMap()
	require.NoError(t, err)
	var payload domain.Entity
	require.NoError(t, json.Unmarshal([]byte(props[domain.TaskDataProperty]), &payload))
	assert.Equal(t, "orders", payload.Name)
	assert.Equal(t, domain.EntityTypeTableLike, payload.TypeCode)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	manager, _ := newManager(t)
	executor := tasks.NewExecutor(manager, discardLogger(), "not a schedule")

	require.Error(t, executor.Start())
}

func TestStartAndStop(t *testing.T) {
	manager, _ := newManager(t)
	executor := tasks.NewExecutor(manager, discardLogger(), "@every 1h")

	require.NoError(t, executor.Start())
	executor.Stop()
}
