//go:build !unix

package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Lock only creates the lock file on platforms without flock; concurrent
// processes are not excluded.
func (s *FileStore) Lock(ctx context.Context, dir string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return func() { f.Close() }, nil
}
