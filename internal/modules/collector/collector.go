// Package collector provides the collector service: it watches
// directories during the run and copies the files that appear there into
// the artifacts directory at post-process.
package collector

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Implementation is the catalog name of the collector.
const Implementation = "collector"

const (
	keyPaths = "paths"
	keyFiles = "files"
	keyMove  = "move"
)

// Collector watches "paths" (directories) and absorbs the files created
// or written there, plus the explicit "files", at post-process.
type Collector struct {
	module.Base

	dirs  []string
	files []string
	move  bool

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	wg       sync.WaitGroup
	baseline map[string]time.Time

	mu        sync.Mutex
	collected []string
}

var _ module.Module = (*Collector)(nil)

// New creates the collector.
func New() module.Module {
	return &Collector{}
}

// Prepare resolves the watched directories and explicit files.
func (c *Collector) Prepare(context.Context) error {
	var err error
	if c.dirs, err = c.pathList(keyPaths); err != nil {
		return err
	}
	if c.files, err = c.pathList(keyFiles); err != nil {
		return err
	}
	move, ok := c.Option(keyMove)
	c.move = ok && config.Truthy(move)

	for _, dir := range c.dirs {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create watched directory").
				WithContext("path", dir).
				Build()
		}
	}
	return nil
}

func (c *Collector) pathList(key string) ([]string, error) {
	value, ok := c.Option(key)
	if !ok || value == nil {
		return nil, nil
	}
	var items []any
	switch v := value.(type) {
	case []any:
		items = v
	case string:
		items = []any{v}
	default:
		return nil, ferrors.TypeMismatchError(key, "a list of paths", value)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, err := config.AsString(fmt.Sprintf("%s[%d]", key, i), item)
		if err != nil {
			return nil, err
		}
		expanded, err := homedir.Expand(s)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "cannot expand path").Build()
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot resolve path").Build()
		}
		out = append(out, abs)
	}
	return out, nil
}

// Startup begins watching.
func (c *Collector) Startup(context.Context) error {
	if len(c.dirs) == 0 {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create file watcher").Build()
	}
	for _, dir := range c.dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch directory").
				WithContext("path", dir).
				Build()
		}
		c.Log().Info("Watching directory", logfields.Path(dir))
	}

	c.baseline = c.snapshot()
	c.watcher = watcher
	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.watchLoop()
	return nil
}

func (c *Collector) watchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				c.record(event.Name)
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.Log().Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (c *Collector) record(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.collected, path) {
		return
	}
	c.collected = append(c.collected, path)
	c.Log().Debug("Collected file", logfields.Path(path))
}

// Collected returns the files seen so far, in order of appearance.
func (c *Collector) Collected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.collected)
}

// snapshot returns the modification times of the regular files directly
// inside the watched directories.
func (c *Collector) snapshot() map[string]time.Time {
	files := make(map[string]time.Time)
	for _, dir := range c.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files[filepath.Join(dir, entry.Name())] = info.ModTime()
		}
	}
	return files
}

// Shutdown stops watching. Files changed since startup whose events had
// not been delivered yet are picked up by a final scan.
func (c *Collector) Shutdown(context.Context) error {
	if c.watcher == nil {
		return nil
	}
	close(c.stop)
	err := c.watcher.Close()
	c.wg.Wait()
	c.watcher = nil

	current := c.snapshot()
	for _, path := range slices.Sorted(maps.Keys(current)) {
		if before, ok := c.baseline[path]; !ok || !before.Equal(current[path]) {
			c.record(path)
		}
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to close file watcher").Build()
	}
	return nil
}

// PostProcess absorbs the collected and explicit files into the artifacts
// directory. All files are attempted; the first failure is returned.
func (c *Collector) PostProcess(context.Context) error {
	var first error
	for _, path := range append(c.Collected(), c.files...) {
		dst, err := c.Host().Artifacts().ExistingArtifact(path, c.move)
		if err != nil {
			c.Log().Error("Failed to collect file", logfields.Path(path), logfields.Error(err))
			if first == nil {
				first = err
			}
			continue
		}
		if dst != "" {
			c.Log().Info("Collected artifact", logfields.Artifact(dst))
		}
	}
	return first
}
