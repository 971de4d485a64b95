package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/all-in-one-of/chasm-version-system/internal/chasm"
	"github.com/all-in-one-of/chasm-version-system/internal/config"
	"github.com/all-in-one-of/chasm-version-system/internal/flatten"
	"github.com/all-in-one-of/chasm-version-system/internal/journal"
	"github.com/all-in-one-of/chasm-version-system/internal/metadata"
)

// ChasmApp is the application layer between the CLI and chasm.Service.
// It constructs all dependencies from config, exposes the engine operations over
// raw string paths, and closes the journal and log file on Close.
type ChasmApp struct {
	cfg     *config.Config
	project chasm.Project
	journal chasm.Journal
	service *chasm.Service
	op      *Operation
	logger  chasm.Logger
	logFile *os.File
}

// NewChasmApp creates a fully wired ChasmApp from the given config.
// operation identifies the CLI command being run (e.g. "checkout", "install").
// With verbose set, every log line is also written to stderr; otherwise only
// warnings and errors are. The caller must call Close when done.
func NewChasmApp(cfg *config.Config, operation string, verbose bool) (*ChasmApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	root := filepath.Clean(cfg.ProjectDir)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project directory is not a directory: %s", root)
	}

	lockTimeout, err := cfg.LockTimeoutDuration()
	if err != nil {
		return nil, err
	}
	flattenTimeout, err := cfg.FlattenTimeoutDuration()
	if err != nil {
		return nil, err
	}

	op := NewOperation(operation, time.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	j, err := journal.NewJournalFromConfig(cfg.Journal, cfg.Username)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating journal: %w", err)
	}

	tools := make([]flatten.Tool, 0, len(cfg.Install.Flatteners))
	for _, f := range cfg.Install.Flatteners {
		tools = append(tools, flatten.Tool{Name: f.Name, Extensions: f.Extensions, Command: f.Command})
	}
	runner := flatten.NewRunner(tools, flattenTimeout, logger)

	project := chasm.Project{
		Name:     cfg.ProjectName,
		Root:     root,
		Username: cfg.Username,
		LocalDir: filepath.Clean(cfg.LocalDir),
	}
	svc := chasm.NewService(project, metadata.NewFileStore(lockTimeout), j, runner,
		cfg.Filesystem.Ignore, logger, chasm.RealClock{}, chasm.UUIDGenerator{})

	logger.Debug("operation started", "op", operation, "project", project.Name, "user", project.Username)

	return &ChasmApp{
		cfg:     cfg,
		project: project,
		journal: j,
		service: svc,
		op:      op,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Project returns the project the app operates on.
func (a *ChasmApp) Project() chasm.Project {
	return a.project
}

// Fail marks the running operation as failed; Close logs the outcome.
func (a *ChasmApp) Fail(err error) {
	a.op.Fail()
	a.logger.Error("operation failed", "op", a.op.Name, "error", err)
}

// ProjectPath resolves raw against the project root. Absolute paths are accepted
// when they lie inside the project.
func (a *ChasmApp) ProjectPath(raw string) (string, error) {
	return resolveWithin(a.project.Root, raw, "project")
}

// LocalPath resolves raw against the local working directory. Absolute paths are
// accepted when they lie inside it.
func (a *ChasmApp) LocalPath(raw string) (string, error) {
	return resolveWithin(a.project.LocalDir, raw, "local directory")
}

// Display returns path relative to the project root or local directory when it
// lies inside one of them.
func (a *ChasmApp) Display(path string) string {
	for _, base := range []string{a.project.Root, a.project.LocalDir} {
		if rel, err := filepath.Rel(base, path); err == nil && !escapes(rel) {
			return rel
		}
	}
	return path
}

func resolveWithin(base, raw, what string) (string, error) {
	if raw == "" {
		return base, nil
	}
	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(base, path)
	if err != nil || escapes(rel) {
		return "", fmt.Errorf("%s is outside the %s (%s)", raw, what, base)
	}
	return path, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// NewFolder creates NAME under PARENT, either plain or versioned with the given kind.
func (a *ChasmApp) NewFolder(rawParent, name string, versioned bool, kind string) (string, error) {
	parent, err := a.ProjectPath(rawParent)
	if err != nil {
		return "", err
	}
	if versioned {
		return a.service.AddVersionedFolder(parent, name, kind)
	}
	return a.service.AddProjectFolder(parent, name)
}

// Checkout checks out the versioned folder and returns the working copy path.
func (a *ChasmApp) Checkout(ctx context.Context, rawFolder string, lock bool) (string, error) {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return "", err
	}
	return a.service.Checkout(ctx, folder, lock)
}

// CanCheckin reports whether the working copy can be checked in.
func (a *ChasmApp) CanCheckin(rawWorkingCopy string) (bool, error) {
	wc, err := a.LocalPath(rawWorkingCopy)
	if err != nil {
		return false, err
	}
	return a.service.CanCheckin(wc)
}

// Checkin checks in the working copy and returns the new version number.
func (a *ChasmApp) Checkin(ctx context.Context, rawWorkingCopy string) (int, error) {
	wc, err := a.LocalPath(rawWorkingCopy)
	if err != nil {
		return 0, err
	}
	return a.service.Checkin(ctx, wc)
}

// Discard deletes the working copy, first releasing its lock when release is set.
func (a *ChasmApp) Discard(ctx context.Context, rawWorkingCopy string, release bool) error {
	wc, err := a.LocalPath(rawWorkingCopy)
	if err != nil {
		return err
	}
	if release {
		if err := a.service.ReleaseLock(ctx, wc); err != nil {
			return err
		}
	}
	return a.service.Discard(wc)
}

// Release clears the lock the working copy holds without checking in.
func (a *ChasmApp) Release(ctx context.Context, rawWorkingCopy string) error {
	wc, err := a.LocalPath(rawWorkingCopy)
	if err != nil {
		return err
	}
	return a.service.ReleaseLock(ctx, wc)
}

// WorkingCopies lists the directories in the local working area.
func (a *ChasmApp) WorkingCopies() ([]chasm.WorkingCopy, error) {
	return a.service.ListWorkingCopies()
}

// Files lists the installable files of the folder's latest version.
func (a *ChasmApp) Files(rawFolder string) ([]string, error) {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return nil, err
	}
	return a.service.ListArtifacts(folder)
}

// Install publishes file from the folder. A relative file is taken from the
// folder's latest version.
func (a *ChasmApp) Install(ctx context.Context, rawFolder, file string, stable bool) (string, error) {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return "", err
	}
	return a.service.Install(ctx, folder, file, stable)
}

// Info describes the folder.
func (a *ChasmApp) Info(rawFolder string) (*chasm.FolderInfo, error) {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return nil, err
	}
	return a.service.FolderInfo(folder)
}

// Check verifies the layout of the versioned folder.
func (a *ChasmApp) Check(rawFolder string) error {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return err
	}
	return a.service.CheckIntegrity(folder)
}

// Tree lists the folders below dir.
func (a *ChasmApp) Tree(rawDir string) ([]chasm.TreeNode, error) {
	dir, err := a.ProjectPath(rawDir)
	if err != nil {
		return nil, err
	}
	return a.service.Walk(dir)
}

// Rename renames the folder and returns its new path.
func (a *ChasmApp) Rename(rawFolder, newName string) (string, error) {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return "", err
	}
	return a.service.RenameFolder(folder, newName)
}

// CanRemove returns nil when the folder may be removed.
func (a *ChasmApp) CanRemove(rawFolder string) error {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return err
	}
	return a.service.CanRemove(folder)
}

// Remove deletes the folder and everything below it.
func (a *ChasmApp) Remove(rawFolder string) error {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return err
	}
	return a.service.RemoveFolder(folder)
}

// Versions lists the version numbers present in the folder.
func (a *ChasmApp) Versions(rawFolder string) ([]int, error) {
	folder, err := a.ProjectPath(rawFolder)
	if err != nil {
		return nil, err
	}
	return a.service.ListVersions(folder)
}

// History returns the most recent journaled operations.
func (a *ChasmApp) History(limit int) ([]*chasm.JournalEntry, error) {
	return a.service.GetHistory(limit)
}

// Close logs the operation outcome and closes the journal and log file.
func (a *ChasmApp) Close() error {
	a.logger.Debug("operation finished", "op", a.op.Name, "status", a.op.Status,
		"duration", a.op.Elapsed(time.Now()).Round(time.Millisecond).String())

	var firstErr error
	if err := a.journal.Close(); err != nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
