package chasm

import "time"

// File and directory names that make up the on-disk layout of a project.
const (
	NodeInfoFile      = ".nodeInfo"
	CheckoutInfoFile  = ".checkoutInfo"
	NullReferenceFile = ".nullReference"
	IgnoreFile        = ".chasmignore"

	SrcDir        = "src"
	InstDir       = "inst"
	LatestPointer = "latest"
	StablePointer = "stable"
)

// TimestampLayout is the format used for every timestamp stored in metadata files,
// e.g. "Thu, 28 Jun 2001 02:17:15 PM".
const TimestampLayout = "Mon, 02 Jan 2006 03:04:05 PM"

// FormatTimestamp renders t in local time using TimestampLayout.
// The zero time renders as an empty string.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimestampLayout)
}

// ParseTimestamp parses a TimestampLayout string in local time.
// An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(TimestampLayout, s, time.Local)
}

// FolderRecord is the versioning state persisted in a versioned folder's .nodeInfo file.
type FolderRecord struct {
	Kind             string
	LatestVersion    int
	Locked           bool
	LastCheckoutTime time.Time
	LastCheckoutUser string
	LastCheckinTime  time.Time
	LastCheckinUser  string

	// LockToken identifies the checkout holding the lock. Empty when unlocked
	// or when the lock was taken by a tool that did not record tokens.
	LockToken string
	LockOwner string
}

// CheckoutRecord is persisted as .checkoutInfo inside a working copy.
type CheckoutRecord struct {
	CheckedOutFrom string
	CheckoutTime   time.Time
	Version        int
	LockedByMe     bool
	LockToken      string
}
