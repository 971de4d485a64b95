package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
)

func writeNodeInfo(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, chasm.NodeInfoFile), []byte(content), 0644); err != nil {
		t.Fatalf("writing .nodeInfo: %v", err)
	}
}

func TestFileStore_FolderRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(0)

	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.Local)
	want := &chasm.FolderRecord{
		Kind:             "animation",
		LatestVersion:    3,
		Locked:           true,
		LastCheckoutTime: at,
		LastCheckoutUser: "alice",
		LastCheckinTime:  at.Add(-time.Hour),
		LastCheckinUser:  "bob",
		LockToken:        "tok-1",
		LockOwner:        "alice",
	}

	if err := s.WriteFolderRecord(dir, want); err != nil {
		t.Fatalf("WriteFolderRecord() error = %v", err)
	}
	if !s.HasFolderRecord(dir) {
		t.Fatal("HasFolderRecord() = false after write")
	}

	got, err := s.ReadFolderRecord(dir)
	if err != nil {
		t.Fatalf("ReadFolderRecord() error = %v", err)
	}
	if got.Kind != want.Kind || got.LatestVersion != want.LatestVersion || got.Locked != want.Locked {
		t.Errorf("record = %+v, want %+v", got, want)
	}
	if !got.LastCheckoutTime.Equal(want.LastCheckoutTime) || got.LastCheckoutUser != "alice" {
		t.Errorf("checkout fields = %v/%s", got.LastCheckoutTime, got.LastCheckoutUser)
	}
	if !got.LastCheckinTime.Equal(want.LastCheckinTime) || got.LastCheckinUser != "bob" {
		t.Errorf("checkin fields = %v/%s", got.LastCheckinTime, got.LastCheckinUser)
	}
	if got.LockToken != "tok-1" || got.LockOwner != "alice" {
		t.Errorf("lock fields = %s/%s", got.LockToken, got.LockOwner)
	}

	// No temp files left behind.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only .nodeInfo in dir, got %d entries", len(entries))
	}
}

func TestFileStore_WriteFolderRecordFormat(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(0)

	if err := s.WriteFolderRecord(dir, &chasm.FolderRecord{LatestVersion: 0}); err != nil {
		t.Fatalf("WriteFolderRecord() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, chasm.NodeInfoFile))
	if err != nil {
		t.Fatalf("reading .nodeInfo: %v", err)
	}
	content := string(data)
	for _, want := range []string{"[Versioning]", "LatestVersion", "Locked", "False"} {
		if !strings.Contains(content, want) {
			t.Errorf(".nodeInfo missing %q:\n%s", want, content)
		}
	}
	if strings.Contains(content, "LockToken") {
		t.Errorf("unlocked record should not carry a lock token:\n%s", content)
	}
}

func TestFileStore_ReadFolderRecord(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  error
		wantRec  *chasm.FolderRecord
		noRecord bool
	}{
		{
			name:    "lowercase keys",
			content: "[versioning]\nlatestversion = 2\nlocked = true\nlastcheckinuser = carol\n",
			wantRec: &chasm.FolderRecord{LatestVersion: 2, Locked: true, LastCheckinUser: "carol"},
		},
		{
			name:    "missing versioning section",
			content: "[Node]\nType = animation\n",
			wantErr: chasm.ErrCorruptMetadata,
		},
		{
			name:    "missing latest version",
			content: "[Versioning]\nLocked = False\n",
			wantErr: chasm.ErrCorruptMetadata,
		},
		{
			name:    "missing locked",
			content: "[Versioning]\nLatestVersion = 1\n",
			wantErr: chasm.ErrCorruptMetadata,
		},
		{
			name:    "non numeric version",
			content: "[Versioning]\nLatestVersion = three\nLocked = False\n",
			wantErr: chasm.ErrCorruptMetadata,
		},
		{
			name:    "negative version",
			content: "[Versioning]\nLatestVersion = -1\nLocked = False\n",
			wantErr: chasm.ErrCorruptMetadata,
		},
		{
			name:    "unparsable timestamp is ignored",
			content: "[Versioning]\nLatestVersion = 0\nLocked = False\nLastCheckoutTime = yesterday\n",
			wantRec: &chasm.FolderRecord{},
		},
		{
			name:     "missing file",
			noRecord: true,
			wantErr:  chasm.ErrNotVersioned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.noRecord {
				writeNodeInfo(t, dir, tt.content)
			}

			got, err := NewFileStore(0).ReadFolderRecord(dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadFolderRecord() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadFolderRecord() error = %v", err)
			}
			if got.LatestVersion != tt.wantRec.LatestVersion || got.Locked != tt.wantRec.Locked ||
				got.LastCheckinUser != tt.wantRec.LastCheckinUser {
				t.Errorf("ReadFolderRecord() = %+v, want %+v", got, tt.wantRec)
			}
			if !got.LastCheckoutTime.IsZero() {
				t.Errorf("LastCheckoutTime = %v, want zero", got.LastCheckoutTime)
			}
		})
	}
}

func TestFileStore_CheckoutRecord(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		s := NewFileStore(0)
		want := &chasm.CheckoutRecord{
			CheckedOutFrom: "/proj/Shot010/anim",
			CheckoutTime:   time.Date(2024, 1, 2, 9, 5, 7, 0, time.Local),
			Version:        4,
			LockedByMe:     true,
			LockToken:      "tok-9",
		}
		if err := s.WriteCheckoutRecord(dir, want); err != nil {
			t.Fatalf("WriteCheckoutRecord() error = %v", err)
		}
		got, err := s.ReadCheckoutRecord(dir)
		if err != nil {
			t.Fatalf("ReadCheckoutRecord() error = %v", err)
		}
		if got.CheckedOutFrom != want.CheckedOutFrom || got.Version != 4 || !got.LockedByMe || got.LockToken != "tok-9" {
			t.Errorf("ReadCheckoutRecord() = %+v, want %+v", got, want)
		}
		if !got.CheckoutTime.Equal(want.CheckoutTime) {
			t.Errorf("CheckoutTime = %v, want %v", got.CheckoutTime, want.CheckoutTime)
		}
	})

	t.Run("missing file is not a working copy", func(t *testing.T) {
		_, err := NewFileStore(0).ReadCheckoutRecord(t.TempDir())
		if !errors.Is(err, chasm.ErrNotWorkingCopy) {
			t.Fatalf("ReadCheckoutRecord() error = %v, want ErrNotWorkingCopy", err)
		}
	})

	t.Run("missing section is corrupt", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, chasm.CheckoutInfoFile), []byte("[Other]\nx = 1\n"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewFileStore(0).ReadCheckoutRecord(dir)
		if !errors.Is(err, chasm.ErrCorruptMetadata) {
			t.Fatalf("ReadCheckoutRecord() error = %v, want ErrCorruptMetadata", err)
		}
	})

	t.Run("lowercase keys", func(t *testing.T) {
		dir := t.TempDir()
		content := "[checkout]\ncheckedoutfrom = /proj/a\nversion = 2\nlockedbyme = false\n"
		if err := os.WriteFile(filepath.Join(dir, chasm.CheckoutInfoFile), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := NewFileStore(0).ReadCheckoutRecord(dir)
		if err != nil {
			t.Fatalf("ReadCheckoutRecord() error = %v", err)
		}
		if got.CheckedOutFrom != "/proj/a" || got.Version != 2 || got.LockedByMe {
			t.Errorf("ReadCheckoutRecord() = %+v", got)
		}
	})
}

func TestFileStore_Lock(t *testing.T) {
	t.Run("lock and release", func(t *testing.T) {
		dir := t.TempDir()
		s := NewFileStore(time.Second)

		unlock, err := s.Lock(context.Background(), dir)
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		unlock()

		unlock, err = s.Lock(context.Background(), dir)
		if err != nil {
			t.Fatalf("second Lock() error = %v", err)
		}
		unlock()
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		dir := t.TempDir()
		s := NewFileStore(time.Second)
		unlock, err := s.Lock(context.Background(), dir)
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		defer unlock()

		if _, err := s.Lock(ctx, dir); err == nil {
			t.Fatal("expected error locking a held folder with a cancelled context")
		}
	})
}
