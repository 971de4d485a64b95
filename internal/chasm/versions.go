package chasm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/all-in-one-of/chasm-version-system/internal/fs"
)

// IsVersionedFolder reports whether dir has a folder record.
func (s *Service) IsVersionedFolder(dir string) bool {
	return s.metadata.HasFolderRecord(dir)
}

// VersionPath returns the payload directory of version n of the versioned folder dir.
func VersionPath(dir string, n int) string {
	return filepath.Join(dir, SrcDir, "v"+strconv.Itoa(n))
}

// LatestPayloadPath returns src/v<latest> of dir.
func (s *Service) LatestPayloadPath(dir string) (string, error) {
	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return "", err
	}
	return latestPayload(dir, rec)
}

func latestPayload(dir string, rec *FolderRecord) (string, error) {
	path := VersionPath(dir, rec.LatestVersion)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrMissingVersion, path)
	}
	return path, nil
}

// AllocateNextVersion returns the next version number of dir and the directory the
// caller must materialize before committing it to the folder record.
//
// A directory already present under that name is left over from an interrupted
// checkin. It is moved aside to src/.orphan-v<n>-<unix> rather than reused.
func (s *Service) AllocateNextVersion(dir string) (int, string, error) {
	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return 0, "", err
	}
	return s.allocateNextVersion(dir, rec)
}

func (s *Service) allocateNextVersion(dir string, rec *FolderRecord) (int, string, error) {
	next := rec.LatestVersion + 1
	path := VersionPath(dir, next)

	exists, err := fs.Exists(path)
	if err != nil {
		return 0, "", fmt.Errorf("checking version directory: %w", err)
	}
	if exists {
		orphan := filepath.Join(dir, SrcDir, fmt.Sprintf(".orphan-v%d-%d", next, s.clock.Now().Unix()))
		if err := os.Rename(path, orphan); err != nil {
			return 0, "", fmt.Errorf("moving orphaned version aside: %w", err)
		}
		s.logger.Warn("moved orphaned version aside", "folder", dir, "version", next, "orphan", orphan)
	}

	return next, path, nil
}

// ListVersions returns the version numbers present under src/ of dir, ascending.
func (s *Service) ListVersions(dir string) ([]int, error) {
	if !s.IsVersionedFolder(dir) {
		return nil, fmt.Errorf("%w: %s", ErrNotVersioned, dir)
	}
	entries, err := os.ReadDir(filepath.Join(dir, SrcDir))
	if err != nil {
		return nil, fmt.Errorf("reading versions: %w", err)
	}

	var versions []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "v") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "v"))
		if err != nil || n < 0 {
			continue
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

// Initialize turns the existing directory dir into a versioned folder of the given
// kind: src/v0, inst/ with both pointers at the null reference, the kind's extra
// layout, and finally the folder record at version 0, unlocked.
func (s *Service) Initialize(dir, kind string) error {
	if s.IsVersionedFolder(dir) {
		return fmt.Errorf("%w: %s is already a versioned folder", ErrDestinationExists, dir)
	}

	if err := os.MkdirAll(VersionPath(dir, 0), 0755); err != nil {
		return fmt.Errorf("creating initial version: %w", err)
	}
	instDir := filepath.Join(dir, InstDir)
	if err := os.MkdirAll(instDir, 0755); err != nil {
		return fmt.Errorf("creating install directory: %w", err)
	}
	if err := s.InitPointers(instDir); err != nil {
		return err
	}
	if hook := hookFor(kind); hook.init != nil {
		if err := hook.init(dir); err != nil {
			return fmt.Errorf("initializing %s folder: %w", kind, err)
		}
	}

	now := s.clock.Now()
	rec := &FolderRecord{
		Kind:             kind,
		LatestVersion:    0,
		Locked:           false,
		LastCheckoutTime: now,
		LastCheckoutUser: s.project.Username,
		LastCheckinTime:  now,
		LastCheckinUser:  s.project.Username,
	}
	if err := s.metadata.WriteFolderRecord(dir, rec); err != nil {
		return fmt.Errorf("writing initial folder record: %w", err)
	}

	s.logger.Info("versioned folder initialized", "folder", dir, "kind", kind)
	return nil
}
