package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/journal"
	"github.com/all-in-one-of/chasm-version-system/internal/metadata"
)

// TestProject is a project tree in a temp directory with a service for one user.
type TestProject struct {
	Project  chasm.Project
	Service  *chasm.Service
	Metadata chasm.MetadataStore
	Journal  *journal.SQLiteJournal
	Clock    *StubClock
	IDs      *StubIDGenerator

	opts options
}

type options struct {
	user      string
	flattener chasm.Flattener
	ignore    []string
	wrap      func(chasm.MetadataStore) chasm.MetadataStore
}

// Option customizes NewTestProject.
type Option func(*options)

// WithUser sets the username of the service. The default is "alice".
func WithUser(name string) Option {
	return func(o *options) { o.user = name }
}

// WithFlattener installs f as the service's flattener.
func WithFlattener(f chasm.Flattener) Option {
	return func(o *options) { o.flattener = f }
}

// WithIgnore sets the configured ignore patterns.
func WithIgnore(patterns ...string) Option {
	return func(o *options) { o.ignore = patterns }
}

// WithMetadata wraps the metadata store the service uses, e.g. to inject faults.
func WithMetadata(wrap func(chasm.MetadataStore) chasm.MetadataStore) Option {
	return func(o *options) { o.wrap = wrap }
}

// NewTestProject creates an empty project root and a local working directory for
// the user, both under t.TempDir().
func NewTestProject(t *testing.T, opts ...Option) *TestProject {
	t.Helper()

	o := options{user: "alice"}
	for _, opt := range opts {
		opt(&o)
	}

	root := filepath.Join(t.TempDir(), "project")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("creating project root: %v", err)
	}
	return newTestProject(t, root, FixedClock(), NewStubIDGenerator(), o)
}

// As returns a service for another user working on the same project tree, with
// their own local directory and journal. The clock and lock tokens are shared with
// p. Options not given are inherited.
func (p *TestProject) As(t *testing.T, user string, opts ...Option) *TestProject {
	t.Helper()

	o := p.opts
	o.user = user
	o.wrap = nil
	for _, opt := range opts {
		opt(&o)
	}
	return newTestProject(t, p.Project.Root, p.Clock, p.IDs, o)
}

func newTestProject(t *testing.T, root string, clock *StubClock, ids *StubIDGenerator, o options) *TestProject {
	t.Helper()

	local := filepath.Join(t.TempDir(), "work-"+o.user)
	project := chasm.Project{
		Name:     "Test",
		Root:     root,
		Username: o.user,
		LocalDir: local,
	}

	var store chasm.MetadataStore = metadata.NewFileStore(time.Second)
	if o.wrap != nil {
		store = o.wrap(store)
	}
	j := NewTestJournal(t)
	svc := chasm.NewService(project, store, j, o.flattener, o.ignore, chasm.NewNopLogger(), clock, ids)

	return &TestProject{
		Project:  project,
		Service:  svc,
		Metadata: store,
		Journal:  j,
		Clock:    clock,
		IDs:      ids,
		opts:     o,
	}
}

// Path joins elems onto the project root.
func (p *TestProject) Path(elems ...string) string {
	return filepath.Join(append([]string{p.Project.Root}, elems...)...)
}

// WriteFile creates path with content, making parent directories as needed.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating parent of %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// ReadFile returns the content of path.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}
