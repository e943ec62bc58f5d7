package artifacts

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/ncruces/go-strftime"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
)

// DefaultPattern names the artifacts directory when none is configured.
const DefaultPattern = "%Y-%m-%d_%H-%M-%S.%f"

// Manager hands out artifact paths inside a single directory. Paths it
// returns are reserved, so a later call never returns the same name even
// if the caller has not created the file yet.
//
// Manager is not safe for concurrent use.
type Manager struct {
	dir      string
	reserved map[string]struct{}
	logger   *slog.Logger
}

// NewManager creates a manager with no directory set.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		reserved: make(map[string]struct{}),
		logger:   logger.With(logfields.Component("artifacts")),
	}
}

// Dir returns the artifacts directory, or "" before CreateDir/SetDir.
func (m *Manager) Dir() string {
	return m.dir
}

// SetDir uses an existing directory as the artifacts directory.
func (m *Manager) SetDir(dir string) {
	m.dir = dir
}

// CreateDir resolves and creates the artifacts directory. An explicit
// directory wins; otherwise pattern is expanded as strftime against now,
// with %f standing for microseconds.
func (m *Manager) CreateDir(explicit, pattern string, now time.Time) (string, error) {
	dir := explicit
	if dir == "" {
		if pattern == "" {
			pattern = DefaultPattern
		}
		dir = FormatPattern(pattern, now)
	}

	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to expand artifacts dir").
			WithContext("dir", dir).
			Build()
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve artifacts dir").
			WithContext("dir", expanded).
			Build()
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create artifacts dir").
			WithContext("dir", abs).
			Build()
	}

	m.dir = abs
	m.logger.Info("Artifacts dir", logfields.Path(abs))
	return abs, nil
}

// FormatPattern expands a strftime pattern; %f is microseconds.
func FormatPattern(pattern string, t time.Time) string {
	return strftime.Format(pattern, t)
}

// CreateArtifact returns "<dir>/<prefix><d><suffix>" where d is empty,
// "-1", "-2" and so on: the first candidate that neither exists on disk
// nor was handed out before. The path is reserved before returning.
func (m *Manager) CreateArtifact(prefix, suffix string) (string, error) {
	if m.dir == "" {
		return "", ferrors.InternalError("cannot create artifact: no artifacts dir set").Build()
	}

	for i := 0; ; i++ {
		disambiguator := ""
		if i > 0 {
			disambiguator = "-" + strconv.Itoa(i)
		}
		candidate := filepath.Join(m.dir, prefix+disambiguator+suffix)
		if m.taken(candidate) {
			continue
		}
		m.reserved[candidate] = struct{}{}
		return candidate, nil
	}
}

// Reserved reports whether path was handed out by this manager.
func (m *Manager) Reserved(path string) bool {
	_, ok := m.reserved[filepath.Clean(path)]
	return ok
}

func (m *Manager) taken(path string) bool {
	if _, ok := m.reserved[path]; ok {
		return true
	}
	_, err := os.Lstat(path)
	return err == nil
}

// ExistingArtifact brings an existing file into the artifacts directory
// and returns its new path. A file already inside the directory is only
// reserved. A missing source is skipped with a warning and "" is
// returned. With move the source is renamed (falling back to copy and
// remove across devices), otherwise it is copied.
func (m *Manager) ExistingArtifact(path string, move bool) (string, error) {
	if m.dir == "" {
		return "", ferrors.InternalError("cannot absorb artifact: no artifacts dir set").Build()
	}

	src, err := filepath.Abs(path)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve artifact path").
			WithContext("path", path).
			Build()
	}
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("Artifact file not exists", logfields.Path(src))
		return "", nil
	}
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat artifact").
			WithContext("path", src).
			Build()
	}

	dst := filepath.Join(m.dir, filepath.Base(src))
	if dst == src || sameFile(info, dst) {
		m.reserved[dst] = struct{}{}
		m.logger.Debug("No need to copy artifact", logfields.Artifact(dst))
		return dst, nil
	}
	if m.taken(dst) {
		ext := filepath.Ext(dst)
		if dst, err = m.CreateArtifact(strings.TrimSuffix(filepath.Base(src), ext), ext); err != nil {
			return "", err
		}
	} else {
		m.reserved[dst] = struct{}{}
	}

	if move {
		m.logger.Debug("Moving artifact", logfields.Path(src), logfields.Artifact(dst))
		err = moveFile(src, dst, info)
	} else {
		m.logger.Debug("Copying artifact", logfields.Path(src), logfields.Artifact(dst))
		err = copyPath(src, dst, info)
	}
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to absorb artifact").
			WithContext("path", src).
			WithContext("artifact", dst).
			Build()
	}
	return dst, nil
}

// sameFile reports whether dst is the file described by info, seen
// through a symlinked directory or a hard link.
func sameFile(info fs.FileInfo, dst string) bool {
	dstInfo, err := os.Stat(dst)
	return err == nil && os.SameFile(info, dstInfo)
}

func moveFile(src, dst string, info fs.FileInfo) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyPath(src, dst, info); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyPath(src, dst string, info fs.FileInfo) error {
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	// #nosec G304 -- src comes from module-declared artifact paths
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	// #nosec G304 -- dst is inside the artifacts dir
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
