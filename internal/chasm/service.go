package chasm

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Project holds the resolved per-process configuration the engine works against.
type Project struct {
	Name     string
	Root     string // absolute path of the shared project tree
	Username string
	LocalDir string // absolute path of this user's working area
}

// Service is the engine. It coordinates metadata, version storage, the publish slot,
// checkout sessions and installs for a single project.
type Service struct {
	project   Project
	metadata  MetadataStore
	journal   Journal
	flattener Flattener
	ignore    []string
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewService creates a Service with the provided dependencies.
// journal and flattener may be nil: operations are then not journaled and every
// install is a plain copy.
func NewService(project Project, metadata MetadataStore, journal Journal, flattener Flattener, ignore []string, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &Service{
		project:   project,
		metadata:  metadata,
		journal:   journal,
		flattener: flattener,
		ignore:    ignore,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Project returns the project the service operates on.
func (s *Service) Project() Project {
	return s.project
}

// GetHistory returns the most recent journaled operations, newest first.
func (s *Service) GetHistory(limit int) ([]*JournalEntry, error) {
	if s.journal == nil {
		return nil, nil
	}
	entries, err := s.journal.List(limit)
	if err != nil {
		return nil, fmt.Errorf("listing journal entries: %w", err)
	}
	return entries, nil
}

// record appends an operation outcome to the journal. Journal failures are logged
// and never fail the operation.
func (s *Service) record(op, path string, version int, opErr error, detail string) {
	if s.journal == nil {
		return
	}
	entry := &JournalEntry{
		Operation: op,
		Path:      s.displayPath(path),
		Version:   version,
		User:      s.project.Username,
		Status:    "success",
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	}
	if opErr != nil {
		entry.Status = "error"
		entry.Detail = opErr.Error()
	}
	if err := s.journal.Record(entry); err != nil {
		s.logger.Warn("failed to journal operation", "op", op, "path", path, "error", err)
	}
}

// displayPath returns path relative to the project root or local dir when it is
// inside one of them.
func (s *Service) displayPath(path string) string {
	for _, base := range []string{s.project.Root, s.project.LocalDir} {
		if base == "" {
			continue
		}
		if rel, ok := within(base, path); ok {
			return rel
		}
	}
	return path
}

// within reports whether path is base or below it, and returns the relative path.
func within(base, path string) (string, bool) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// readFolderRecord loads the record of a versioned folder, failing with
// ErrNotVersioned when dir has none.
func (s *Service) readFolderRecord(dir string) (*FolderRecord, error) {
	if !s.metadata.HasFolderRecord(dir) {
		return nil, fmt.Errorf("%w: %s", ErrNotVersioned, dir)
	}
	rec, err := s.metadata.ReadFolderRecord(dir)
	if err != nil {
		return nil, fmt.Errorf("reading folder record: %w", err)
	}
	return rec, nil
}
