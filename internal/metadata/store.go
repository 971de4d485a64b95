// Package metadata persists FolderRecord and CheckoutRecord values as the INI-style
// .nodeInfo and .checkoutInfo files kept inside versioned folders and working copies.
package metadata

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/ini.v1"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
)

const (
	sectionNode       = "Node"
	sectionVersioning = "Versioning"
	sectionCheckout   = "Checkout"

	keyType             = "Type"
	keyLatestVersion    = "LatestVersion"
	keyLocked           = "Locked"
	keyLastCheckoutTime = "LastCheckoutTime"
	keyLastCheckoutUser = "LastCheckoutUser"
	keyLastCheckinTime  = "LastCheckinTime"
	keyLastCheckinUser  = "LastCheckinUser"
	keyLockToken        = "LockToken"
	keyLockOwner        = "LockOwner"

	keyCheckedOutFrom = "CheckedOutFrom"
	keyCheckoutTime   = "CheckoutTime"
	keyVersion        = "Version"
	keyLockedByMe     = "LockedByMe"
)

// DefaultLockTimeout bounds how long Lock waits for another process.
const DefaultLockTimeout = 10 * time.Second

const lockFileName = chasm.NodeInfoFile + ".lock"

// FileStore is the filesystem implementation of chasm.MetadataStore.
//
// Records are written to a temp file in the same directory and renamed into place,
// so a reader never sees a half-written file. Section and key names are
// matched case-insensitively on read; older tools wrote them in lowercase.
type FileStore struct {
	lockTimeout time.Duration
}

// NewFileStore creates a FileStore. A non-positive lockTimeout uses DefaultLockTimeout.
func NewFileStore(lockTimeout time.Duration) *FileStore {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &FileStore{lockTimeout: lockTimeout}
}

// HasFolderRecord reports whether dir contains a .nodeInfo file.
func (s *FileStore) HasFolderRecord(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, chasm.NodeInfoFile))
	return err == nil && info.Mode().IsRegular()
}

// ReadFolderRecord loads dir/.nodeInfo.
func (s *FileStore) ReadFolderRecord(dir string) (*chasm.FolderRecord, error) {
	path := filepath.Join(dir, chasm.NodeInfoFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", chasm.ErrNotVersioned, dir)
		}
		return nil, fmt.Errorf("stat folder record: %w", err)
	}

	f, err := load(path)
	if err != nil {
		return nil, err
	}

	sec, err := f.GetSection(sectionVersioning)
	if err != nil {
		return nil, corrupt(path, "missing [%s] section", sectionVersioning)
	}

	rec := &chasm.FolderRecord{}
	if node, err := f.GetSection(sectionNode); err == nil {
		rec.Kind = node.Key(keyType).String()
	}

	if rec.LatestVersion, err = requiredInt(sec, keyLatestVersion); err != nil {
		return nil, corrupt(path, "%v", err)
	}
	if rec.LatestVersion < 0 {
		return nil, corrupt(path, "negative %s %d", keyLatestVersion, rec.LatestVersion)
	}
	if rec.Locked, err = requiredBool(sec, keyLocked); err != nil {
		return nil, corrupt(path, "%v", err)
	}

	rec.LastCheckoutTime = optionalTime(sec, keyLastCheckoutTime)
	rec.LastCheckoutUser = sec.Key(keyLastCheckoutUser).String()
	rec.LastCheckinTime = optionalTime(sec, keyLastCheckinTime)
	rec.LastCheckinUser = sec.Key(keyLastCheckinUser).String()
	rec.LockToken = sec.Key(keyLockToken).String()
	rec.LockOwner = sec.Key(keyLockOwner).String()

	return rec, nil
}

// WriteFolderRecord replaces dir/.nodeInfo with rec.
func (s *FileStore) WriteFolderRecord(dir string, rec *chasm.FolderRecord) error {
	f := ini.Empty()

	node := f.Section(sectionNode)
	node.Key(keyType).SetValue(rec.Kind)

	sec := f.Section(sectionVersioning)
	sec.Key(keyLatestVersion).SetValue(strconv.Itoa(rec.LatestVersion))
	sec.Key(keyLocked).SetValue(formatBool(rec.Locked))
	sec.Key(keyLastCheckoutTime).SetValue(chasm.FormatTimestamp(rec.LastCheckoutTime))
	sec.Key(keyLastCheckoutUser).SetValue(rec.LastCheckoutUser)
	sec.Key(keyLastCheckinTime).SetValue(chasm.FormatTimestamp(rec.LastCheckinTime))
	sec.Key(keyLastCheckinUser).SetValue(rec.LastCheckinUser)
	if rec.LockToken != "" || rec.LockOwner != "" {
		sec.Key(keyLockToken).SetValue(rec.LockToken)
		sec.Key(keyLockOwner).SetValue(rec.LockOwner)
	}

	if err := save(filepath.Join(dir, chasm.NodeInfoFile), f); err != nil {
		return fmt.Errorf("writing folder record: %w", err)
	}
	return nil
}

// ReadCheckoutRecord loads dir/.checkoutInfo.
func (s *FileStore) ReadCheckoutRecord(dir string) (*chasm.CheckoutRecord, error) {
	path := filepath.Join(dir, chasm.CheckoutInfoFile)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", chasm.ErrNotWorkingCopy, dir)
		}
		return nil, fmt.Errorf("stat checkout record: %w", err)
	}

	f, err := load(path)
	if err != nil {
		return nil, err
	}

	sec, err := f.GetSection(sectionCheckout)
	if err != nil {
		return nil, corrupt(path, "missing [%s] section", sectionCheckout)
	}

	rec := &chasm.CheckoutRecord{}
	if !sec.HasKey(keyCheckedOutFrom) || sec.Key(keyCheckedOutFrom).String() == "" {
		return nil, corrupt(path, "missing %s", keyCheckedOutFrom)
	}
	rec.CheckedOutFrom = sec.Key(keyCheckedOutFrom).String()

	if rec.Version, err = requiredInt(sec, keyVersion); err != nil {
		return nil, corrupt(path, "%v", err)
	}
	if rec.LockedByMe, err = requiredBool(sec, keyLockedByMe); err != nil {
		return nil, corrupt(path, "%v", err)
	}
	rec.CheckoutTime = optionalTime(sec, keyCheckoutTime)
	rec.LockToken = sec.Key(keyLockToken).String()

	return rec, nil
}

// WriteCheckoutRecord replaces dir/.checkoutInfo with rec.
func (s *FileStore) WriteCheckoutRecord(dir string, rec *chasm.CheckoutRecord) error {
	f := ini.Empty()

	sec := f.Section(sectionCheckout)
	sec.Key(keyCheckedOutFrom).SetValue(rec.CheckedOutFrom)
	sec.Key(keyCheckoutTime).SetValue(chasm.FormatTimestamp(rec.CheckoutTime))
	sec.Key(keyVersion).SetValue(strconv.Itoa(rec.Version))
	sec.Key(keyLockedByMe).SetValue(formatBool(rec.LockedByMe))
	if rec.LockToken != "" {
		sec.Key(keyLockToken).SetValue(rec.LockToken)
	}

	if err := save(filepath.Join(dir, chasm.CheckoutInfoFile), f); err != nil {
		return fmt.Errorf("writing checkout record: %w", err)
	}
	return nil
}

func load(path string) (*ini.File, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", chasm.ErrCorruptMetadata, path, err)
	}
	return f, nil
}

// save writes f to path using atomic write (temp file + rename).
func save(path string, f *ini.File) error {
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(buf.Bytes()); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Chmod(0644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

func corrupt(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", chasm.ErrCorruptMetadata, path, fmt.Sprintf(format, args...))
}

func requiredInt(sec *ini.Section, key string) (int, error) {
	if !sec.HasKey(key) {
		return 0, fmt.Errorf("missing %s", key)
	}
	n, err := sec.Key(key).Int()
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, sec.Key(key).String())
	}
	return n, nil
}

func requiredBool(sec *ini.Section, key string) (bool, error) {
	if !sec.HasKey(key) {
		return false, fmt.Errorf("missing %s", key)
	}
	b, err := sec.Key(key).Bool()
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, sec.Key(key).String())
	}
	return b, nil
}

// optionalTime returns the zero time for a missing or unparsable timestamp;
// timestamps are informational and never gate an operation.
func optionalTime(sec *ini.Section, key string) time.Time {
	t, err := chasm.ParseTimestamp(sec.Key(key).String())
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Compile-time check that FileStore implements chasm.MetadataStore.
var _ chasm.MetadataStore = (*FileStore)(nil)
