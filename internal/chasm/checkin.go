package chasm

import (
	"context"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/all-in-one-of/chasm-version-system/internal/fs"
)

// CanCheckin reports whether the working copy wc may be checked in now.
func (s *Service) CanCheckin(wc string) (bool, error) {
	co, err := s.metadata.ReadCheckoutRecord(wc)
	if err != nil {
		return false, fmt.Errorf("reading checkout record: %w", err)
	}
	rec, err := s.readFolderRecord(co.CheckedOutFrom)
	if err != nil {
		return false, err
	}
	ok, _ := checkinAllowed(co, rec)
	return ok, nil
}

// checkinAllowed applies the lock and stale-version guards. The reason is set when
// the checkin is refused.
func checkinAllowed(co *CheckoutRecord, rec *FolderRecord) (bool, string) {
	if !co.LockedByMe {
		if rec.Locked {
			return false, "folder is locked by another checkout"
		}
		if co.Version < rec.LatestVersion {
			return false, fmt.Sprintf("working copy is at version %d but the folder is at version %d", co.Version, rec.LatestVersion)
		}
		return true, ""
	}
	if co.LockToken != "" && (!rec.Locked || rec.LockToken != co.LockToken) {
		return false, "the lock taken at checkout was released or reassigned"
	}
	return true, ""
}

// Checkin commits the working copy wc as the next version of the folder it was
// checked out from, clears the folder's lock, and deletes the working copy.
// The new version and the folder record are written before wc is removed, so an
// interrupted checkin leaves wc in place. Returns the new version number.
func (s *Service) Checkin(ctx context.Context, wc string) (version int, err error) {
	version = -1
	defer func() { s.record("checkin", wc, version, err, "") }()

	co, err := s.metadata.ReadCheckoutRecord(wc)
	if err != nil {
		return -1, fmt.Errorf("reading checkout record: %w", err)
	}
	dir := co.CheckedOutFrom

	unlock, err := s.metadata.Lock(ctx, dir)
	if err != nil {
		return -1, fmt.Errorf("locking folder: %w", err)
	}
	defer unlock()

	rec, err := s.readFolderRecord(dir)
	if err != nil {
		return -1, err
	}
	if ok, reason := checkinAllowed(co, rec); !ok {
		return -1, fmt.Errorf("%w: %s", ErrCheckinRejected, reason)
	}

	next, dest, err := s.allocateNextVersion(dir, rec)
	if err != nil {
		return -1, err
	}

	ignore, err := fs.LoadIgnoreMatcher(wc, s.ignore)
	if err != nil {
		return -1, fmt.Errorf("loading ignore rules: %w", err)
	}
	skip := func(rel string, d iofs.DirEntry) bool {
		if rel == CheckoutInfoFile {
			return true
		}
		if ignore.Match(rel) {
			s.logger.Debug("ignored", "path", filepath.Join(wc, rel))
			return true
		}
		return false
	}

	tmp := partialPath(filepath.Join(dir, SrcDir), filepath.Base(dest))
	if err := fs.CopyTree(wc, tmp, skip); err != nil {
		return -1, fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return -1, fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}

	rec.LatestVersion = next
	rec.Locked = false
	rec.LockToken = ""
	rec.LockOwner = ""
	rec.LastCheckinTime = s.clock.Now()
	rec.LastCheckinUser = s.project.Username
	if err := s.metadata.WriteFolderRecord(dir, rec); err != nil {
		return -1, fmt.Errorf("committing version %d: %w", next, err)
	}
	version = next

	if err := os.RemoveAll(wc); err != nil {
		s.logger.Warn("failed to remove working copy after checkin", "working_copy", wc, "error", err)
	}

	s.logger.Info("folder checked in", "folder", dir, "version", next)
	return next, nil
}
