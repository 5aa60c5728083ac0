// Package workspace lays out the evaluation directory of a run and guards a
// recording against concurrent runs.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"nica/internal/bundle"
	"nica/internal/config"
	"nica/internal/recording"
	"nica/internal/services"
)

// AnalysisDir is the directory below the analysis root holding per-run results.
const AnalysisDir = "Analysis"

// ExistsMessage is reported when the evaluation path of a run is taken.
const ExistsMessage = "Analysis Path already exists."

// Layout is the evaluation path of one run and the names of its outputs.
type Layout struct {
	Root  string
	Dir   string
	Files bundle.Files
}

// Plan derives the layout of a run on the recording at recordingPath:
// <root>/Analysis/<recording dir>/<recording stem>/<condition>, with outputs
// named <stem>_<task>_<condition>.
func Plan(root, recordingPath string, a config.Analysis) Layout {
	rec := &recording.Recording{Path: recordingPath}
	condition := a.ConditionLabel()
	dir := filepath.Join(root, AnalysisDir, rec.Directory(), rec.Stem(), condition)
	stem := strings.Join([]string{rec.Stem(), strings.TrimSpace(a.TaskName), condition}, "_")
	return Layout{
		Root:  root,
		Dir:   dir,
		Files: bundle.Files{Dir: dir, Stem: stem},
	}
}

// Create makes the evaluation directory. The root must be writable and the
// directory itself must not exist yet.
func (l Layout) Create() error {
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "workspace", "create root", l.Root, err)
	}
	if err := CheckDirectoryAccess(l.Root); err != nil {
		return err
	}
	if _, err := os.Stat(l.Dir); err == nil {
		return services.Wrap(services.ErrValidation, "workspace", "create evaluation path", ExistsMessage, nil)
	} else if !errors.Is(err, os.ErrNotExist) {
		return services.Wrap(services.ErrIO, "workspace", "stat evaluation path", l.Dir, err)
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "workspace", "create evaluation path", l.Dir, err)
	}
	return nil
}

// CheckDirectoryAccess verifies that path is a readable and writable directory.
func CheckDirectoryAccess(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrIO, "workspace", "stat", path, err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrValidation, "workspace", "check access", fmt.Sprintf("%s is not a directory", path), nil)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return services.Wrap(services.ErrIO, "workspace", "check access", fmt.Sprintf("%s: insufficient permissions", path), err)
	}
	return nil
}

// Lock serializes runs on one recording across processes.
type Lock struct {
	path string
	lock *flock.Flock
}

// Acquire takes the run lock of recordingPath in dir without blocking.
func Acquire(dir, recordingPath string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrIO, "workspace", "create lock dir", dir, err)
	}
	abs, err := filepath.Abs(recordingPath)
	if err != nil {
		abs = recordingPath
	}
	path := filepath.Join(dir, uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()+".lock")
	l := &Lock{path: path, lock: flock.New(path)}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrIO, "workspace", "acquire lock", path, err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workspace", "acquire lock",
			fmt.Sprintf("another run is in progress for %s", recordingPath), nil)
	}
	return l, nil
}

// Path is the lock file.
func (l *Lock) Path() string { return l.path }

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
