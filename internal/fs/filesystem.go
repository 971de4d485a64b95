// Package fs holds the filesystem primitives the engine is built from: whole-tree
// copies that never leave a half-written destination behind, atomic link swaps,
// and listings that hide engine bookkeeping files.
package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SkipFunc reports whether the entry at relPath (relative to the copy source)
// should be left out of a copy. Skipping a directory skips its contents.
type SkipFunc func(relPath string, d fs.DirEntry) bool

// ResolveDir converts rawPath to a clean absolute path and checks that it is a directory.
// Symlinks, devices, pipes and sockets are rejected.
func ResolveDir(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	switch {
	case mode&os.ModeSymlink != 0:
		return "", fmt.Errorf("symlinks not supported: %s", absPath)
	case mode&os.ModeDevice != 0:
		return "", fmt.Errorf("device files not supported: %s", absPath)
	case mode&os.ModeNamedPipe != 0:
		return "", fmt.Errorf("named pipes not supported: %s", absPath)
	case mode&os.ModeSocket != 0:
		return "", fmt.Errorf("sockets not supported: %s", absPath)
	case !info.IsDir():
		return "", fmt.Errorf("not a directory: %s", absPath)
	}

	return absPath, nil
}

// Exists reports whether path exists without following a final symlink.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// IsHidden reports whether name is a dot file.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ListVisible returns the entries of dir that are not dot files, sorted by name.
func ListVisible(dir string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	visible := entries[:0]
	for _, e := range entries {
		if !IsHidden(e.Name()) {
			visible = append(visible, e)
		}
	}
	return visible, nil
}

// IsEmptyDir reports whether dir has no visible entries.
func IsEmptyDir(dir string) (bool, error) {
	entries, err := ListVisible(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

// CopyFile copies the regular file src to dst, which must not exist.
// A partially written dst is removed on failure.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("syncing %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}

// CopyTree copies the directory src to dst, which must not exist. Symlinks are
// recreated rather than followed. If anything fails, dst is removed entirely
// before the error is returned, so a destination that exists is always complete.
func CopyTree(src, dst string, skip SkipFunc) (err error) {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source is not a directory: %s", src)
	}

	if err := os.Mkdir(dst, info.Mode().Perm()|0700); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dst)
		}
	}()

	return filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(src, p)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		if skip != nil && skip(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			dirInfo, infoErr := d.Info()
			if infoErr != nil {
				return fmt.Errorf("stat %s: %w", p, infoErr)
			}
			if mkErr := os.Mkdir(target, dirInfo.Mode().Perm()|0700); mkErr != nil {
				return fmt.Errorf("creating %s: %w", target, mkErr)
			}
		case d.Type()&fs.ModeSymlink != 0:
			link, linkErr := os.Readlink(p)
			if linkErr != nil {
				return fmt.Errorf("reading link %s: %w", p, linkErr)
			}
			if linkErr := os.Symlink(link, target); linkErr != nil {
				return fmt.Errorf("creating link %s: %w", target, linkErr)
			}
		case d.Type().IsRegular():
			if copyErr := CopyFile(p, target); copyErr != nil {
				return copyErr
			}
		default:
			return fmt.Errorf("unsupported file type: %s", p)
		}
		return nil
	})
}
