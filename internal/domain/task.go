package domain

import "fmt"

// TaskType classifies asynchronous tasks persisted as TASK entities.
type TaskType int

const (
	TaskTypeEntityCleanupScheduler TaskType = 1
	TaskTypeFileCleanup            TaskType = 2
)

// Task entity property keys.
const (
	TaskTypeProperty                  = "task_type"
	TaskDataProperty                  = "data"
	TaskAttemptCountProperty          = "attempt_count"
	TaskLastAttemptExecutorIDProperty = "last_attempt_executor_id"
	TaskLastAttemptStartTimeProperty  = "last_attempt_start_time"
)

// TaskTimeoutMillisConfig is the configuration key controlling how long a
// leased task stays owned by its executor before it can be re-leased.
const (
	TaskTimeoutMillisConfig    = "TASK_TIMEOUT_MILLIS"
	DefaultTaskTimeoutMillis   = int64(300_000)
)

// CleanupTaskName returns the well-known name of the cleanup task scheduled
// when an entity is dropped with cleanup enabled.
func CleanupTaskName(entityID int64) string {
	return fmt.Sprintf("entityCleanup_%d", entityID)
}
