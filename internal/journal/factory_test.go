package journal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/all-in-one-of/chasm-version-system/internal/config"
)

func TestNewJournalFromConfig(t *testing.T) {
	t.Run("memory journal", func(t *testing.T) {
		got, err := NewJournalFromConfig(config.JournalConfig{Type: "memory"}, "alice")
		if err != nil {
			t.Fatalf("NewJournalFromConfig() unexpected error: %v", err)
		}
		got.Close()
	})

	t.Run("sqlite journal", func(t *testing.T) {
		dir := t.TempDir()
		got, err := NewJournalFromConfig(config.JournalConfig{Type: "sqlite", DataDir: dir}, "alice")
		if err != nil {
			t.Fatalf("NewJournalFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dir, "alice.db")); err != nil {
			t.Errorf("expected per-user database file: %v", err)
		}
	})

	t.Run("sqlite journal without data_dir", func(t *testing.T) {
		got, err := NewJournalFromConfig(config.JournalConfig{Type: "sqlite"}, "alice")
		if err == nil {
			t.Error("NewJournalFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewJournalFromConfig() should return nil on error")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		got, err := NewJournalFromConfig(config.JournalConfig{Type: "postgres"}, "alice")
		if err == nil {
			t.Error("NewJournalFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewJournalFromConfig() should return nil on error")
		}
	})
}
