package chasm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCorruptMetadata indicates a metadata file is missing a required section or key,
	// or that metadata and the directory layout disagree.
	ErrCorruptMetadata = errors.New("corrupt metadata")

	// ErrMissingVersion indicates the directory for the latest version is absent.
	ErrMissingVersion = errors.New("missing version")

	// ErrAlreadyLocked indicates a checkout was blocked by an existing lock.
	ErrAlreadyLocked = errors.New("already locked")

	// ErrCheckinRejected indicates a checkin (or lock release) was refused because of a
	// foreign lock or a stale version.
	ErrCheckinRejected = errors.New("checkin rejected")

	// ErrNotVersioned indicates the operation requires a versioned folder.
	ErrNotVersioned = errors.New("not a versioned folder")

	// ErrNotWorkingCopy indicates the path is not a checked out working copy.
	ErrNotWorkingCopy = errors.New("not a working copy")

	// ErrCopyFailed indicates a checkout or checkin copy could not complete.
	ErrCopyFailed = errors.New("copy failed")

	// ErrInstallFailed indicates an install could not produce its artifact.
	ErrInstallFailed = errors.New("install failed")

	// ErrIllegalStructureChange indicates a rename or remove was blocked.
	ErrIllegalStructureChange = errors.New("illegal structure change")

	// ErrDestinationExists indicates the target of a create or rename already exists.
	ErrDestinationExists = errors.New("destination exists")
)

// AlreadyLockedError reports who holds the lock on a folder and since when.
type AlreadyLockedError struct {
	Folder string
	User   string
	Time   time.Time
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("can not checkout %s: folder is locked by %s at %s",
		e.Folder, e.User, FormatTimestamp(e.Time))
}

func (e *AlreadyLockedError) Is(target error) bool {
	return target == ErrAlreadyLocked
}

// IllegalStructureChangeError reports why a rename or remove is not allowed.
type IllegalStructureChangeError struct {
	Path   string
	Reason string
}

func (e *IllegalStructureChangeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrIllegalStructureChange, e.Path, e.Reason)
}

func (e *IllegalStructureChangeError) Is(target error) bool {
	return target == ErrIllegalStructureChange
}
