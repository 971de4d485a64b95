package journal

import (
	"fmt"
	"path/filepath"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/config"
)

// NewJournalFromConfig creates a Journal implementation based on the journal config type.
// Each user gets their own database file, <data_dir>/<username>.db.
func NewJournalFromConfig(cfg config.JournalConfig, username string) (chasm.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite journal")
		}
		if username == "" {
			return nil, fmt.Errorf("username required for sqlite journal")
		}
		return open(filepath.Join(cfg.DataDir, username+".db"))
	case "memory":
		return open(":memory:")
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}

func open(path string) (chasm.Journal, error) {
	j, err := NewSQLiteJournal(path)
	if err != nil {
		return nil, err
	}
	return j, nil
}
