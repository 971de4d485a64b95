package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StubFlattener claims files by extension and writes a marker artifact instead of
// running an external program. Safe for concurrent use.
type StubFlattener struct {
	mu    sync.Mutex
	tools map[string]string // extension -> tool name
	fail  error
	calls []FlattenCall
}

// FlattenCall records one Flatten invocation.
type FlattenCall struct {
	Tool, Src, Dst string
}

// NewStubFlattener creates a StubFlattener handling ext with tool, given as
// alternating pairs: NewStubFlattener(".ma", "maya", ".hip", "houdini").
func NewStubFlattener(pairs ...string) *StubFlattener {
	f := &StubFlattener{tools: make(map[string]string)}
	for i := 0; i+1 < len(pairs); i += 2 {
		f.tools[pairs[i]] = pairs[i+1]
	}
	return f
}

// FailWith makes every later Flatten call fail with err without writing anything.
func (f *StubFlattener) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

// Calls returns the recorded invocations.
func (f *StubFlattener) Calls() []FlattenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FlattenCall(nil), f.calls...)
}

func (f *StubFlattener) Match(filename string) string {
	return f.tools[filepath.Ext(filename)]
}

// Flatten writes "flattened by <tool> from <src>" to dst.
func (f *StubFlattener) Flatten(_ context.Context, tool, src, dst string) error {
	f.mu.Lock()
	f.calls = append(f.calls, FlattenCall{Tool: tool, Src: src, Dst: dst})
	fail := f.fail
	f.mu.Unlock()

	if fail != nil {
		return fail
	}
	return os.WriteFile(dst, []byte(fmt.Sprintf("flattened by %s from %s", tool, filepath.Base(src))), 0644)
}
