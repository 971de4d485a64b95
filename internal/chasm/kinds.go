package chasm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Content kinds recorded in a versioned folder's [Node] Type.
const (
	KindGeneric   = ""
	KindAnimation = "animation"
)

// kindHook holds the extra rules a content kind imposes on a versioned folder.
// A nil field means the kind adds nothing for that step.
type kindHook struct {
	// init runs once after the standard layout has been created.
	init func(dir string) error
	// check reports a kind-specific integrity problem, or nil.
	check func(dir string) error
}

var kindHooks = map[string]kindHook{
	KindGeneric: {},
	KindAnimation: {
		init:  makeSubfolder("cache"),
		check: requireSubfolder("cache"),
	},
}

// Kinds returns the content kinds with registered rules, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(kindHooks))
	for k := range kindHooks {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// hookFor returns the rules for kind. Unknown kinds get no extra rules.
func hookFor(kind string) kindHook {
	return kindHooks[kind]
}

func makeSubfolder(name string) func(string) error {
	return func(dir string) error {
		if err := os.Mkdir(filepath.Join(dir, name), 0755); err != nil && !os.IsExist(err) {
			return fmt.Errorf("creating %s folder: %w", name, err)
		}
		return nil
	}
}

func requireSubfolder(name string) func(string) error {
	return func(dir string) error {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.IsDir() {
			return fmt.Errorf("missing its %s folder", name)
		}
		return nil
	}
}
