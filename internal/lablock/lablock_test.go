package lablock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireDisabled(t *testing.T) {
	unlock, err := Acquire(context.Background(), "", "demo")
	require.NoError(t, err)
	unlock()
}

func TestAcquireExcludes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")

	unlock, err := Acquire(context.Background(), dir, "demo")
	require.NoError(t, err)
	assert.FileExists(t, Path(dir, "demo"))

	// A different lab is independent.
	other, err := Acquire(context.Background(), dir, "other")
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = Acquire(ctx, dir, "demo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	again, err := Acquire(context.Background(), dir, "demo")
	require.NoError(t, err)
	again()
}

func TestPathEscapesName(t *testing.T) {
	assert.Equal(t, filepath.Join("d", "a%2Fb.lock"), Path("d", "a/b"))
}
