package chasm

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/all-in-one-of/chasm-version-system/internal/fs"
)

const nullReferenceContent = "# chasm null reference\n# publish pointers that resolve here mean nothing is installed\n"

// artifactIndex matches the _<n> suffix of an install artifact name, before the extension.
var artifactIndex = regexp.MustCompile(`_(\d+)(\.[^.]*)?$`)

// NullReference returns the project's null reference sentinel, creating it if absent.
func (s *Service) NullReference() (string, error) {
	path := filepath.Join(s.project.Root, NullReferenceFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return path, nil
		}
		return "", fmt.Errorf("creating null reference: %w", err)
	}
	if _, err := f.WriteString(nullReferenceContent); err != nil {
		f.Close()
		return "", fmt.Errorf("writing null reference: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing null reference: %w", err)
	}
	return path, nil
}

// InitPointers points latest and stable in instDir at the null reference.
func (s *Service) InitPointers(instDir string) error {
	null, err := s.NullReference()
	if err != nil {
		return err
	}
	for _, name := range []string{LatestPointer, StablePointer} {
		if err := pointAt(instDir, name, null); err != nil {
			return fmt.Errorf("initializing %s pointer: %w", name, err)
		}
	}
	return nil
}

// ListArtifacts returns the names of the files in the latest version of dir that
// can be installed.
func (s *Service) ListArtifacts(dir string) ([]string, error) {
	payload, err := s.LatestPayloadPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ListVisible(payload)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Publish adds a new artifact for src to instDir. The artifact is named
// <stem>_<n><ext> with n one past the highest index already in the slot, produce
// writes it, and latest (and stable, if setStable) are repointed to it.
// Returns the artifact path.
func (s *Service) Publish(instDir, src string, setStable bool, produce func(dst string) error) (string, error) {
	n, err := nextArtifactIndex(instDir)
	if err != nil {
		return "", err
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	artifact := filepath.Join(instDir, strings.TrimSuffix(base, ext)+"_"+strconv.Itoa(n)+ext)

	if err := produce(artifact); err != nil {
		os.RemoveAll(artifact)
		return "", err
	}
	if _, err := os.Lstat(artifact); err != nil {
		return "", fmt.Errorf("artifact %s was not produced: %w", artifact, err)
	}

	if err := pointAt(instDir, LatestPointer, artifact); err != nil {
		return "", fmt.Errorf("repointing latest: %w", err)
	}
	if setStable {
		if err := pointAt(instDir, StablePointer, artifact); err != nil {
			return "", fmt.Errorf("repointing stable: %w", err)
		}
	}

	s.logger.Info("artifact published", "artifact", artifact, "stable", setStable)
	return artifact, nil
}

// ResolvePointer returns the artifact the named pointer of the versioned folder dir
// resolves to, or "" when it resolves to the null reference.
func (s *Service) ResolvePointer(dir, name string) (string, error) {
	target, err := fs.ResolveLink(filepath.Join(dir, InstDir, name))
	if err != nil {
		return "", err
	}
	if filepath.Base(target) == NullReferenceFile {
		return "", nil
	}
	return target, nil
}

// IsInstalled reports whether the stable pointer of dir resolves to an existing artifact.
func (s *Service) IsInstalled(dir string) bool {
	target, err := s.ResolvePointer(dir, StablePointer)
	if err != nil || target == "" {
		return false
	}
	_, err = os.Stat(target)
	return err == nil
}

// pointAt repoints instDir/name at target. The link is stored relative to instDir.
func pointAt(instDir, name, target string) error {
	rel, err := filepath.Rel(instDir, target)
	if err != nil {
		rel = target
	}
	return fs.SwapLink(rel, filepath.Join(instDir, name))
}

func nextArtifactIndex(instDir string) (int, error) {
	entries, err := fs.ListVisible(instDir)
	if err != nil {
		return 0, err
	}
	next := 0
	for _, e := range entries {
		if e.Type()&os.ModeSymlink != 0 {
			continue
		}
		m := artifactIndex.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}
