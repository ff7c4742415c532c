package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// OpenTestPools opens a migrated metastore file in a per-test temp directory.
// The pools are closed when the test finishes.
func OpenTestPools(t *testing.T) *Pools {
	t.Helper()

	path := filepath.Join(t.TempDir(), "metastore.db")
	pools, err := Open(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, pools.Close())
	})
	require.NoError(t, pools.Migrate())
	return pools
}
