package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestCopyTree(t *testing.T) {
	t.Run("copies nested files and links", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "src")
		writeFile(t, filepath.Join(src, "scene.ma"), "scene")
		writeFile(t, filepath.Join(src, "cache", "frame.0001.bgeo"), "frame")
		if err := os.Symlink("scene.ma", filepath.Join(src, "current")); err != nil {
			t.Fatalf("Symlink() error = %v", err)
		}

		dst := filepath.Join(t.TempDir(), "dst")
		if err := CopyTree(src, dst, nil); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}

		if got := readFile(t, filepath.Join(dst, "scene.ma")); got != "scene" {
			t.Errorf("scene.ma = %q, want %q", got, "scene")
		}
		if got := readFile(t, filepath.Join(dst, "cache", "frame.0001.bgeo")); got != "frame" {
			t.Errorf("frame = %q, want %q", got, "frame")
		}
		link, err := os.Readlink(filepath.Join(dst, "current"))
		if err != nil {
			t.Fatalf("Readlink() error = %v", err)
		}
		if link != "scene.ma" {
			t.Errorf("link target = %q, want %q", link, "scene.ma")
		}
	})

	t.Run("honors skip", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "src")
		writeFile(t, filepath.Join(src, "keep.txt"), "keep")
		writeFile(t, filepath.Join(src, ".checkoutInfo"), "meta")
		writeFile(t, filepath.Join(src, "tmp", "junk.txt"), "junk")

		dst := filepath.Join(t.TempDir(), "dst")
		skip := func(rel string, d fs.DirEntry) bool {
			return rel == ".checkoutInfo" || rel == "tmp"
		}
		if err := CopyTree(src, dst, skip); err != nil {
			t.Fatalf("CopyTree() error = %v", err)
		}

		if _, err := os.Stat(filepath.Join(dst, "keep.txt")); err != nil {
			t.Errorf("keep.txt missing: %v", err)
		}
		for _, name := range []string{".checkoutInfo", "tmp"} {
			if _, err := os.Stat(filepath.Join(dst, name)); !os.IsNotExist(err) {
				t.Errorf("%s should have been skipped", name)
			}
		}
	})

	t.Run("refuses existing destination and leaves it alone", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "src")
		writeFile(t, filepath.Join(src, "a.txt"), "new")
		dst := filepath.Join(t.TempDir(), "dst")
		writeFile(t, filepath.Join(dst, "a.txt"), "old")

		if err := CopyTree(src, dst, nil); err == nil {
			t.Fatal("CopyTree() expected error for existing destination")
		}
		if got := readFile(t, filepath.Join(dst, "a.txt")); got != "old" {
			t.Errorf("existing destination modified: a.txt = %q", got)
		}
	})

	t.Run("missing source", func(t *testing.T) {
		dst := filepath.Join(t.TempDir(), "dst")
		if err := CopyTree(filepath.Join(t.TempDir(), "nope"), dst, nil); err == nil {
			t.Fatal("CopyTree() expected error for missing source")
		}
		if _, err := os.Stat(dst); !os.IsNotExist(err) {
			t.Error("destination should not exist")
		}
	})
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.hip")
	writeFile(t, src, "houdini")

	dst := filepath.Join(dir, "a_0.hip")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile() error = %v", err)
	}
	if got := readFile(t, dst); got != "houdini" {
		t.Errorf("content = %q, want %q", got, "houdini")
	}

	if err := CopyFile(src, dst); err == nil {
		t.Error("CopyFile() expected error when destination exists")
	}
	if err := CopyFile(dir, filepath.Join(dir, "x")); err == nil {
		t.Error("CopyFile() expected error for directory source")
	}
}

func TestListVisibleAndIsEmptyDir(t *testing.T) {
	dir := t.TempDir()

	empty, err := IsEmptyDir(dir)
	if err != nil {
		t.Fatalf("IsEmptyDir() error = %v", err)
	}
	if !empty {
		t.Error("new directory should be empty")
	}

	writeFile(t, filepath.Join(dir, ".nodeInfo"), "")
	if empty, _ := IsEmptyDir(dir); !empty {
		t.Error("dot files should not count")
	}

	writeFile(t, filepath.Join(dir, "b.txt"), "")
	writeFile(t, filepath.Join(dir, "a.txt"), "")
	entries, err := ListVisible(dir)
	if err != nil {
		t.Fatalf("ListVisible() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "a.txt" || entries[1].Name() != "b.txt" {
		t.Errorf("ListVisible() = %v, want [a.txt b.txt]", entries)
	}
	if empty, _ := IsEmptyDir(dir); empty {
		t.Error("directory with files should not be empty")
	}
}

func TestResolveDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	writeFile(t, file, "")
	link := filepath.Join(dir, "l")
	if err := os.Symlink(dir, link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	got, err := ResolveDir(dir)
	if err != nil {
		t.Fatalf("ResolveDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("ResolveDir() = %q, want %q", got, dir)
	}

	for _, p := range []string{file, link, filepath.Join(dir, "missing")} {
		if _, err := ResolveDir(p); err == nil {
			t.Errorf("ResolveDir(%q) expected error", p)
		}
	}
}
