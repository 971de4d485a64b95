package chasm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/testutil"
)

// newShot creates <root>/Seq/Shot010 as a versioned folder of kind.
func newShot(t *testing.T, p *testutil.TestProject, kind string) string {
	t.Helper()
	seq := p.Path("Seq")
	if !exists(seq) {
		if _, err := p.Service.AddProjectFolder(p.Project.Root, "Seq"); err != nil {
			t.Fatalf("AddProjectFolder() error = %v", err)
		}
	}
	shot, err := p.Service.AddVersionedFolder(seq, "Shot010", kind)
	if err != nil {
		t.Fatalf("AddVersionedFolder() error = %v", err)
	}
	return shot
}

func folderRecord(t *testing.T, p *testutil.TestProject, dir string) *chasm.FolderRecord {
	t.Helper()
	rec, err := p.Metadata.ReadFolderRecord(dir)
	if err != nil {
		t.Fatalf("ReadFolderRecord() error = %v", err)
	}
	return rec
}

func checkoutRecord(t *testing.T, p *testutil.TestProject, wc string) *chasm.CheckoutRecord {
	t.Helper()
	co, err := p.Metadata.ReadCheckoutRecord(wc)
	if err != nil {
		t.Fatalf("ReadCheckoutRecord() error = %v", err)
	}
	return co
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func payloadFile(dir string, version int, name string) string {
	return filepath.Join(chasm.VersionPath(dir, version), name)
}
