// Package lablock serializes reconciliations of one lab across processes,
// e.g. several Ansible forks or CLI runs targeting the same lab name.
package lablock

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const retryDelay = 250 * time.Millisecond

// Path returns the lock file used for name inside dir.
func Path(dir, name string) string {
	return filepath.Join(dir, url.PathEscape(name)+".lock")
}

// Acquire blocks until the lock for name is held or ctx is done. An empty dir
// disables locking and returns a no-op unlock.
func Acquire(ctx context.Context, dir, name string) (func(), error) {
	if dir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	fl := flock.New(Path(dir, name))
	locked, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		return nil, fmt.Errorf("locking lab %s: %w", name, err)
	}
	if !locked {
		return nil, fmt.Errorf("locking lab %s: %w", name, ctx.Err())
	}
	return func() { _ = fl.Unlock() }, nil
}
