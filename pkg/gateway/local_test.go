package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certmate/certmate/pkg/errdefs"
)

func TestLocalReadWrite(t *testing.T) {
	gw := NewLocal()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "proof")

	require.NoError(t, gw.WriteFile(ctx, path, []byte("keyauth"), 0644))

	data, err := gw.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("keyauth"), data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestLocalReadMissingFile(t *testing.T) {
	gw := NewLocal()

	_, err := gw.ReadFile(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestLocalWriteAppliesMode(t *testing.T) {
	gw := NewLocal()
	path := filepath.Join(t.TempDir(), "cert.key")

	require.NoError(t, gw.WriteFile(context.Background(), path, []byte("secret"), 0600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLocalEnsureDirAndExists(t *testing.T) {
	gw := NewLocal()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	exists, err := gw.Exists(ctx, dir)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, gw.EnsureDir(ctx, dir))

	exists, err = gw.Exists(ctx, dir)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalRun(t *testing.T) {
	gw := NewLocal()
	ctx := context.Background()

	res, err := gw.Run(ctx, "echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)

	res, err = gw.Run(ctx, "exit 3")
	require.NoError(t, err, "a non-zero exit code is not an error")
	assert.Equal(t, 3, res.ExitCode)
}
