package chasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/all-in-one-of/chasm-version-system/internal/fs"
)

// Install publishes sourceFile into the install slot of the versioned folder dir.
// Files claimed by a flattening tool are written by that tool; everything else is
// copied byte for byte. A relative sourceFile is taken from the latest version.
// latest is repointed to the new artifact, and stable too when setStable is true.
// Returns the artifact path.
func (s *Service) Install(ctx context.Context, dir, sourceFile string, setStable bool) (artifact string, err error) {
	defer func() { s.record("install", dir, -1, err, filepath.Base(artifact)) }()

	if !s.IsVersionedFolder(dir) {
		return "", fmt.Errorf("%w: %s", ErrNotVersioned, dir)
	}

	unlock, err := s.metadata.Lock(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("locking folder: %w", err)
	}
	defer unlock()

	src := sourceFile
	if !filepath.IsAbs(src) {
		payload, err := s.LatestPayloadPath(dir)
		if err != nil {
			return "", err
		}
		src = filepath.Join(payload, sourceFile)
	}
	info, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: not a regular file: %s", ErrInstallFailed, src)
	}

	tool := ""
	if s.flattener != nil {
		tool = s.flattener.Match(filepath.Base(src))
	}

	produce := func(dst string) error {
		if tool != "" {
			s.logger.Debug("flattening", "tool", tool, "src", src, "dst", dst)
			if err := s.flattener.Flatten(ctx, tool, src, dst); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInstallFailed, tool, err)
			}
			return nil
		}
		if err := fs.CopyFile(src, dst); err != nil {
			return fmt.Errorf("%w: %w", ErrInstallFailed, err)
		}
		return nil
	}

	artifact, err = s.Publish(filepath.Join(dir, InstDir), src, setStable, produce)
	if err != nil {
		if !errors.Is(err, ErrInstallFailed) {
			err = fmt.Errorf("%w: %w", ErrInstallFailed, err)
		}
		return "", err
	}
	return artifact, nil
}
