package chasm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/all-in-one-of/chasm-version-system/internal/fs"
)

// FolderInfo summarizes a folder of the project tree.
type FolderInfo struct {
	Path      string
	Versioned bool

	// Set only for versioned folders.
	Kind             string
	LatestVersion    int
	Locked           bool
	LockOwner        string
	LastCheckoutTime time.Time
	LastCheckoutUser string
	LastCheckinTime  time.Time
	LastCheckinUser  string
	Installed        bool
	Latest           string // artifact latest resolves to, "" for none
	Stable           string // artifact stable resolves to, "" for none
}

// TreeNode is one folder in a Walk listing.
type TreeNode struct {
	Path  string
	Depth int
	Info  *FolderInfo
}

// IsEmptyFolder reports whether dir has no visible entries.
func (s *Service) IsEmptyFolder(dir string) (bool, error) {
	return fs.IsEmptyDir(dir)
}

// HasInstalledChild reports whether dir, or any versioned folder below it, has a
// stable pointer resolving to an artifact.
func (s *Service) HasInstalledChild(dir string) (bool, error) {
	return s.anyVersioned(dir, func(d string) (bool, error) {
		return s.IsInstalled(d), nil
	})
}

// IsCheckedOut reports whether dir, or any versioned folder below it, is locked.
func (s *Service) IsCheckedOut(dir string) (bool, error) {
	return s.anyVersioned(dir, func(d string) (bool, error) {
		rec, err := s.readFolderRecord(d)
		if err != nil {
			return false, err
		}
		return rec.Locked, nil
	})
}

// anyVersioned reports whether pred holds for some versioned folder at or below dir.
// Versioned folders and symlinks are not descended into.
func (s *Service) anyVersioned(dir string, pred func(string) (bool, error)) (bool, error) {
	if s.IsVersionedFolder(dir) {
		return pred(dir)
	}
	entries, err := fs.ListVisible(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		found, err := s.anyVersioned(filepath.Join(dir, e.Name()), pred)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// CanRename returns nil when dir may be renamed, or an *IllegalStructureChangeError
// naming the reason it may not.
func (s *Service) CanRename(dir string) error {
	rel, ok := within(s.project.Root, dir)
	if !ok {
		return &IllegalStructureChangeError{Path: dir, Reason: "outside the project"}
	}
	if rel == "." {
		return &IllegalStructureChangeError{Path: dir, Reason: "the project root can not be changed"}
	}

	checkedOut, err := s.IsCheckedOut(dir)
	if err != nil {
		return fmt.Errorf("checking for checkouts: %w", err)
	}
	if checkedOut {
		return &IllegalStructureChangeError{Path: dir, Reason: "a folder at or below it is checked out"}
	}

	installed, err := s.HasInstalledChild(dir)
	if err != nil {
		return fmt.Errorf("checking for installs: %w", err)
	}
	if installed {
		return &IllegalStructureChangeError{Path: dir, Reason: "a folder at or below it has an installed artifact"}
	}
	return nil
}

// CanRemove returns nil when dir may be removed. The rules are those of CanRename.
func (s *Service) CanRemove(dir string) error {
	return s.CanRename(dir)
}

// AddProjectFolder creates the plain folder parent/name.
func (s *Service) AddProjectFolder(parent, name string) (dir string, err error) {
	defer func() { s.record("new", filepath.Join(parent, name), -1, err, "folder") }()

	dir, err = s.makeFolder(parent, name)
	if err != nil {
		return "", err
	}
	s.logger.Info("folder created", "folder", dir)
	return dir, nil
}

// AddVersionedFolder creates parent/name as a versioned folder of the given kind.
func (s *Service) AddVersionedFolder(parent, name, kind string) (dir string, err error) {
	detail := "versioned"
	if kind != KindGeneric {
		detail += " " + kind
	}
	defer func() { s.record("new", filepath.Join(parent, name), 0, err, detail) }()

	dir, err = s.makeFolder(parent, name)
	if err != nil {
		return "", err
	}
	if err := s.Initialize(dir, kind); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

func (s *Service) makeFolder(parent, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if _, ok := within(s.project.Root, parent); !ok {
		return "", &IllegalStructureChangeError{Path: parent, Reason: "outside the project"}
	}
	if s.IsVersionedFolder(parent) {
		return "", &IllegalStructureChangeError{Path: parent, Reason: "folders can not be added inside a versioned folder"}
	}
	info, err := os.Stat(parent)
	if err != nil {
		return "", fmt.Errorf("stat parent: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("parent is not a directory: %s", parent)
	}

	dir := filepath.Join(parent, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, dir)
		}
		return "", fmt.Errorf("creating folder: %w", err)
	}
	return dir, nil
}

// RenameFolder renames dir to newName within the same parent. Returns the new path.
func (s *Service) RenameFolder(dir, newName string) (dest string, err error) {
	defer func() { s.record("rename", dir, -1, err, newName) }()

	if err := validateName(newName); err != nil {
		return "", err
	}
	if err := s.CanRename(dir); err != nil {
		return "", err
	}

	dest = filepath.Join(filepath.Dir(dir), newName)
	exists, err := fs.Exists(dest)
	if err != nil {
		return "", fmt.Errorf("checking destination: %w", err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrDestinationExists, dest)
	}
	if err := os.Rename(dir, dest); err != nil {
		return "", fmt.Errorf("renaming folder: %w", err)
	}

	s.logger.Info("folder renamed", "from", dir, "to", dest)
	return dest, nil
}

// RemoveFolder deletes dir and everything below it.
func (s *Service) RemoveFolder(dir string) (err error) {
	defer func() { s.record("remove", dir, -1, err, "") }()

	if err := s.CanRemove(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing folder: %w", err)
	}
	s.logger.Info("folder removed", "folder", dir)
	return nil
}

// FolderInfo describes dir. Plain folders only have Path set.
func (s *Service) FolderInfo(dir string) (*FolderInfo, error) {
	info := &FolderInfo{Path: dir}
	if !s.IsVersionedFolder(dir) {
		return info, nil
	}
	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return nil, err
	}

	info.Versioned = true
	info.Kind = rec.Kind
	info.LatestVersion = rec.LatestVersion
	info.Locked = rec.Locked
	info.LockOwner = rec.LockOwner
	info.LastCheckoutTime = rec.LastCheckoutTime
	info.LastCheckoutUser = rec.LastCheckoutUser
	info.LastCheckinTime = rec.LastCheckinTime
	info.LastCheckinUser = rec.LastCheckinUser
	info.Installed = s.IsInstalled(dir)
	if info.Latest, err = s.ResolvePointer(dir, LatestPointer); err != nil {
		s.logger.Debug("unresolvable pointer", "folder", dir, "pointer", LatestPointer, "error", err)
	}
	if info.Stable, err = s.ResolvePointer(dir, StablePointer); err != nil {
		s.logger.Debug("unresolvable pointer", "folder", dir, "pointer", StablePointer, "error", err)
	}
	return info, nil
}

// CheckIntegrity verifies the layout of the versioned folder dir: src/ and inst/
// exist, latest and stable are links that resolve, the latest version is present,
// and the rules of the folder's kind hold.
func (s *Service) CheckIntegrity(dir string) error {
	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return err
	}

	for _, sub := range []string{SrcDir, InstDir} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: %s is missing its %s folder", ErrCorruptMetadata, dir, sub)
		}
	}
	for _, name := range []string{LatestPointer, StablePointer} {
		link := filepath.Join(dir, InstDir, name)
		if !fs.IsLink(link) {
			return fmt.Errorf("%w: %s is missing its %s link", ErrCorruptMetadata, dir, name)
		}
		if _, err := os.Stat(link); err != nil {
			return fmt.Errorf("%w: %s link of %s does not resolve: %w", ErrCorruptMetadata, name, dir, err)
		}
	}
	if _, err := latestPayload(dir, rec); err != nil {
		return err
	}
	if hook := hookFor(rec.Kind); hook.check != nil {
		if err := hook.check(dir); err != nil {
			return fmt.Errorf("%w: %s folder %s: %w", ErrCorruptMetadata, rec.Kind, dir, err)
		}
	}
	return nil
}

// Walk lists the folders below root depth first, sorted by name. Versioned folders
// are listed but not descended into. Hidden entries and symlinks are skipped.
func (s *Service) Walk(root string) ([]TreeNode, error) {
	var nodes []TreeNode
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		entries, err := fs.ListVisible(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			info, err := s.FolderInfo(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			nodes = append(nodes, TreeNode{Path: path, Depth: depth, Info: info})
			if !info.Versioned {
				if err := walk(path, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return nodes, nil
}

var errInvalidName = errors.New("invalid folder name")

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", errInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, filepath.Separator):
		return fmt.Errorf("%w: %q contains a path separator", errInvalidName, name)
	case fs.IsHidden(name):
		return fmt.Errorf("%w: %q is hidden", errInvalidName, name)
	}
	return nil
}
