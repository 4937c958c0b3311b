package chainkv

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckOnEmptyStore(t *testing.T) {
	db := newTestDB(t)
	status, err := db.HealthCheck()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"engine": "pebble"}, status)
}

func TestHealthCheckAfterClose(t *testing.T) {
	db, err := Open("test", Options{FS: vfs.NewMem(), CacheBytes: 8 << 20})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.HealthCheck()
	require.Error(t, err)
}
