package chasm

import "time"

// JournalEntry records one engine operation in the user's local activity journal.
type JournalEntry struct {
	ID        int64
	Operation string
	Path      string
	Version   int // -1 when the operation has no version
	User      string
	Status    string // "success" or "error"
	Detail    string
	CreatedAt time.Time
}

// Journal is the per-user local history of engine operations.
// It is informational only; the project tree never depends on it.
type Journal interface {
	// Record appends an entry. The entry's ID is set on success.
	Record(entry *JournalEntry) error

	// List returns the most recent entries, newest first.
	List(limit int) ([]*JournalEntry, error)

	// Close releases the underlying storage.
	Close() error
}
