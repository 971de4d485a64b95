package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SwapLink makes link point at target. The new link is created under a temporary
// name next to link and then renamed over it, so link always resolves to either
// the old target or the new one.
func SwapLink(target, link string) error {
	tmp, err := StageLink(target, link)
	if err != nil {
		return err
	}
	return CommitLink(tmp, link)
}

// StageLink creates a symlink to target under a temporary name in link's directory
// and returns that name. link itself is untouched until CommitLink.
func StageLink(target, link string) (string, error) {
	tmp := filepath.Join(filepath.Dir(link),
		fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(link), os.Getpid(), time.Now().UnixNano()))
	if err := os.Symlink(target, tmp); err != nil {
		return "", fmt.Errorf("creating link: %w", err)
	}
	return tmp, nil
}

// CommitLink renames the staged link tmp over link.
func CommitLink(tmp, link string) error {
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing link %s: %w", link, err)
	}
	return nil
}

// ResolveLink returns the absolute, cleaned target of the symlink at link.
// Relative targets are resolved against link's directory. The target may not exist.
func ResolveLink(link string) (string, error) {
	target, err := os.Readlink(link)
	if err != nil {
		return "", fmt.Errorf("reading link: %w", err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(link), target)
	}
	return filepath.Clean(target), nil
}

// IsLink reports whether path is a symlink.
func IsLink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}
