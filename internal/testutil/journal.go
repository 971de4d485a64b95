package testutil

import (
	"testing"

	"github.com/all-in-one-of/chasm-version-system/internal/journal"
)

// NewTestJournal creates a new in-memory SQLite journal with schema applied.
// The journal is automatically closed when the test completes.
func NewTestJournal(t *testing.T) *journal.SQLiteJournal {
	t.Helper()

	j, err := journal.NewSQLiteJournal(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}

	t.Cleanup(func() {
		j.Close()
	})

	return j
}
