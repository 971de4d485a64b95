package chasm

import "context"

// Flattener runs the external tools that resolve scene-graph dependencies for
// proprietary content kinds during install.
type Flattener interface {
	// Match returns the name of the tool responsible for filename,
	// or "" when the file should be copied byte for byte.
	Match(filename string) string

	// Flatten runs tool with (src, dst). Any failure, including a non-zero exit
	// or a timeout, is returned as an error; tool output is not interpreted.
	Flatten(ctx context.Context, tool, src, dst string) error
}
