package plugin

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// SkippedEntry is a source entry the installer did not copy.
type SkippedEntry struct {
	Path   string // relative to the source root
	Reason string
	Err    error
}

// InstallReport collects the outcome of an installation. Copied holds the
// relative paths of files written to the destination.
type InstallReport struct {
	Copied  []string
	Skipped []SkippedEntry
}

// Installer copies bundled plugins into the install location.
//
// Symbolic links are never followed or copied. Per-entry failures are
// recorded in the report and never abort the rest of the copy. Callers are
// responsible for running it at most once per destination.
type Installer struct {
	// Parallelism > 1 copies top-level subdirectories concurrently.
	Parallelism int
	Logger      *slog.Logger
}

// installRun accumulates the report of one Install call.
type installRun struct {
	logger *slog.Logger
	mu     sync.Mutex
	report InstallReport
}

// NewInstaller creates a sequential installer.
func NewInstaller(logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{Parallelism: 1, Logger: logger}
}

// Install copies src into dst recursively.
func (i *Installer) Install(src, dst string) *InstallReport {
	run := &installRun{logger: i.Logger}
	if run.logger == nil {
		run.logger = slog.Default()
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		run.skip(".", "destination not writable", ouerrors.NewFilesystemError("mkdir", dst, err))
		return run.finish()
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		run.skip(".", "source not readable", ouerrors.NewFilesystemError("readdir", src, err))
		return run.finish()
	}

	var g errgroup.Group
	if i.Parallelism > 1 {
		g.SetLimit(i.Parallelism)
	}

	for _, entry := range entries {
		rel := entry.Name()
		if entry.IsDir() && i.Parallelism > 1 {
			g.Go(func() error {
				run.copyEntry(src, dst, rel, entry)
				return nil
			})
			continue
		}
		run.copyEntry(src, dst, rel, entry)
	}
	_ = g.Wait()

	return run.finish()
}

func (r *installRun) finish() *InstallReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Info("installed bundled plugins", "copied", len(r.report.Copied), "skipped", len(r.report.Skipped))
	report := r.report
	return &report
}

func (r *installRun) copyEntry(srcRoot, dstRoot, rel string, entry fs.DirEntry) {
	srcPath := filepath.Join(srcRoot, rel)
	dstPath := filepath.Join(dstRoot, rel)

	switch {
	case entry.Type()&fs.ModeSymlink != 0:
		r.skip(rel, "symbolic link", nil)
	case entry.IsDir():
		r.copyDir(srcRoot, dstRoot, rel, srcPath, dstPath)
	case entry.Type().IsRegular():
		if err := copyFile(srcPath, dstPath); err != nil {
			r.skip(rel, "copy failed", err)
			return
		}
		r.copied(rel)
	default:
		r.skip(rel, "not a regular file", nil)
	}
}

func (r *installRun) copyDir(srcRoot, dstRoot, rel, srcPath, dstPath string) {
	mode := fs.FileMode(0o755)
	if info, err := os.Lstat(srcPath); err == nil {
		mode = info.Mode().Perm() | 0o700
	}
	if err := os.MkdirAll(dstPath, mode); err != nil {
		r.skip(rel, "cannot create directory", ouerrors.NewFilesystemError("mkdir", dstPath, err))
		return
	}

	entries, err := os.ReadDir(srcPath)
	if err != nil {
		r.skip(rel, "directory not readable", ouerrors.NewFilesystemError("readdir", srcPath, err))
		return
	}
	for _, entry := range entries {
		r.copyEntry(srcRoot, dstRoot, filepath.Join(rel, entry.Name()), entry)
	}
}

func (r *installRun) copied(rel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Copied = append(r.report.Copied, rel)
}

func (r *installRun) skip(rel, reason string, err error) {
	if err != nil {
		r.logger.Warn("skipping plugin file", "path", rel, "reason", reason, "error", err)
	} else {
		r.logger.Debug("skipping plugin file", "path", rel, "reason", reason)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Skipped = append(r.report.Skipped, SkippedEntry{Path: rel, Reason: reason, Err: err})
}

// copyFile copies a regular file, preserving its permission bits.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ouerrors.NewFilesystemError("open", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return ouerrors.NewFilesystemError("stat", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return ouerrors.NewFilesystemError("create", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return ouerrors.NewFilesystemError("copy", dst, err)
	}
	if err := out.Close(); err != nil {
		return ouerrors.NewFilesystemError("close", dst, err)
	}
	// OpenFile applies the umask; restore the source bits exactly.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return ouerrors.NewFilesystemError("chmod", dst, err)
	}
	return nil
}
