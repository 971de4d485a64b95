package chasm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/all-in-one-of/chasm-version-system/internal/fs"
)

// WorkingCopy is a directory in the user's local working area.
// Record is nil when the directory is not a checked out copy.
type WorkingCopy struct {
	Path   string
	Record *CheckoutRecord
}

// WorkingCopyName returns the local directory name a checkout of version of dir gets:
// <parent>_<folder>_<version>.
func WorkingCopyName(dir string, version int) string {
	return filepath.Base(filepath.Dir(dir)) + "_" + filepath.Base(dir) + "_" + strconv.Itoa(version)
}

// Checkout copies the latest version of the versioned folder dir into the local
// working area and records the checkout on the folder. With lock set the folder is
// locked until the working copy is checked in or its lock is released.
// Returns the working copy path.
func (s *Service) Checkout(ctx context.Context, dir string, lock bool) (wc string, err error) {
	version := -1
	defer func() { s.record("checkout", dir, version, err, lockDetail(lock)) }()

	if !s.IsVersionedFolder(dir) {
		return "", fmt.Errorf("%w: %s", ErrNotVersioned, dir)
	}

	unlock, err := s.metadata.Lock(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("locking folder: %w", err)
	}
	defer unlock()

	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return "", err
	}
	if rec.Locked {
		owner := rec.LockOwner
		if owner == "" {
			owner = rec.LastCheckoutUser
		}
		return "", &AlreadyLockedError{Folder: filepath.Base(dir), User: owner, Time: rec.LastCheckoutTime}
	}
	version = rec.LatestVersion

	payload, err := latestPayload(dir, rec)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}

	dest := filepath.Join(s.project.LocalDir, WorkingCopyName(dir, version))
	exists, err := fs.Exists(dest)
	if err != nil {
		return "", fmt.Errorf("checking working copy: %w", err)
	}
	if exists {
		return "", fmt.Errorf("%w: working copy %s already exists", ErrCopyFailed, dest)
	}
	if err := os.MkdirAll(s.project.LocalDir, 0755); err != nil {
		return "", fmt.Errorf("creating local directory: %w", err)
	}

	tmp := partialPath(s.project.LocalDir, filepath.Base(dest))
	if err := fs.CopyTree(payload, tmp, nil); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}

	now := s.clock.Now()
	token := ""
	if lock {
		token = s.idgen.New()
	}
	co := &CheckoutRecord{
		CheckedOutFrom: dir,
		CheckoutTime:   now,
		Version:        version,
		LockedByMe:     lock,
		LockToken:      token,
	}
	if err := s.metadata.WriteCheckoutRecord(tmp, co); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}

	rec.LastCheckoutTime = now
	rec.LastCheckoutUser = s.project.Username
	rec.Locked = lock
	rec.LockToken = token
	rec.LockOwner = ""
	if lock {
		rec.LockOwner = s.project.Username
	}
	if err := s.metadata.WriteFolderRecord(dir, rec); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("recording checkout: %w", err)
	}

	s.logger.Info("folder checked out", "folder", dir, "version", version, "locked", lock, "working_copy", dest)
	return dest, nil
}

// Discard deletes the working copy wc. The source folder record is not touched,
// so a lock taken at checkout stays in place; see ReleaseLock.
func (s *Service) Discard(wc string) (err error) {
	defer func() { s.record("discard", wc, -1, err, "") }()

	if _, ok := within(s.project.LocalDir, wc); !ok || filepath.Clean(wc) == filepath.Clean(s.project.LocalDir) {
		return fmt.Errorf("%w: %s is not inside %s", ErrNotWorkingCopy, wc, s.project.LocalDir)
	}
	exists, err := fs.Exists(wc)
	if err != nil {
		return fmt.Errorf("checking working copy: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotWorkingCopy, wc)
	}

	if err := os.RemoveAll(wc); err != nil {
		return fmt.Errorf("removing working copy: %w", err)
	}
	s.logger.Info("working copy discarded", "working_copy", wc)
	return nil
}

// ReleaseLock clears the lock the working copy wc holds on its source folder
// without checking in. The working copy is kept and becomes an unlocked checkout.
// Fails with ErrCheckinRejected when wc does not hold the folder's lock.
func (s *Service) ReleaseLock(ctx context.Context, wc string) (err error) {
	version := -1
	defer func() { s.record("release", wc, version, err, "") }()

	co, err := s.metadata.ReadCheckoutRecord(wc)
	if err != nil {
		return fmt.Errorf("reading checkout record: %w", err)
	}
	version = co.Version
	dir := co.CheckedOutFrom

	unlock, err := s.metadata.Lock(ctx, dir)
	if err != nil {
		return fmt.Errorf("locking folder: %w", err)
	}
	defer unlock()

	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return err
	}
	if !co.LockedByMe || !rec.Locked || co.LockToken != rec.LockToken {
		return fmt.Errorf("%w: %s does not hold the lock on %s", ErrCheckinRejected, wc, dir)
	}

	rec.Locked = false
	rec.LockToken = ""
	rec.LockOwner = ""
	if err := s.metadata.WriteFolderRecord(dir, rec); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}

	co.LockedByMe = false
	co.LockToken = ""
	if err := s.metadata.WriteCheckoutRecord(wc, co); err != nil {
		return fmt.Errorf("updating checkout record: %w", err)
	}

	s.logger.Info("lock released", "folder", dir, "working_copy", wc)
	return nil
}

// ListWorkingCopies returns every directory in the local working area.
func (s *Service) ListWorkingCopies() ([]WorkingCopy, error) {
	entries, err := fs.ListVisible(s.project.LocalDir)
	if err != nil {
		if _, statErr := os.Stat(s.project.LocalDir); os.IsNotExist(statErr) {
			return nil, nil
		}
		return nil, err
	}

	var copies []WorkingCopy
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		wc := WorkingCopy{Path: filepath.Join(s.project.LocalDir, e.Name())}
		if co, err := s.metadata.ReadCheckoutRecord(wc.Path); err == nil {
			wc.Record = co
		} else {
			s.logger.Debug("not a working copy", "path", wc.Path, "error", err)
		}
		copies = append(copies, wc)
	}
	return copies, nil
}

// partialPath returns a hidden sibling name in dir for building name before it is
// renamed into place.
func partialPath(dir, name string) string {
	return filepath.Join(dir, fmt.Sprintf(".%s.partial-%d-%d", name, os.Getpid(), time.Now().UnixNano()))
}

func lockDetail(lock bool) string {
	if lock {
		return "locked"
	}
	return "unlocked"
}
