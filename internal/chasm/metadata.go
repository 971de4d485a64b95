package chasm

import "context"

// MetadataStore reads and writes the per-folder and per-checkout metadata files.
// Writes are whole-file replacements: the last writer wins and nothing is merged.
type MetadataStore interface {
	// HasFolderRecord reports whether dir contains a .nodeInfo file.
	HasFolderRecord(dir string) bool

	// ReadFolderRecord loads dir/.nodeInfo.
	// Returns ErrCorruptMetadata if the [Versioning] section or a required key is absent.
	ReadFolderRecord(dir string) (*FolderRecord, error)

	// WriteFolderRecord replaces dir/.nodeInfo with rec.
	WriteFolderRecord(dir string, rec *FolderRecord) error

	// ReadCheckoutRecord loads dir/.checkoutInfo.
	// Returns ErrNotWorkingCopy if the file does not exist and ErrCorruptMetadata
	// if the [Checkout] section or a required key is absent.
	ReadCheckoutRecord(dir string) (*CheckoutRecord, error)

	// WriteCheckoutRecord replaces dir/.checkoutInfo with rec.
	WriteCheckoutRecord(dir string, rec *CheckoutRecord) error

	// Lock takes an exclusive advisory lock on the versioned folder dir, waiting
	// until it is available, the store's timeout elapses, or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context, dir string) (unlock func(), err error)
}
