package app

import "time"

// Operation tracks the CLI command being run. Its ID tags every log line the
// command writes, so lines from concurrent invocations can be told apart.
type Operation struct {
	ID        string
	Name      string
	Status    string // "success" or "error"
	StartedAt time.Time
}

// NewOperation creates an operation started at now.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:        now.UTC().Format("20060102T150405.000Z"),
		Name:      name,
		Status:    "success",
		StartedAt: now,
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(now time.Time) time.Duration {
	return now.Sub(op.StartedAt)
}
