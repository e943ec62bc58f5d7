package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
)

// Configuration is the layered configuration of one run: sources are
// merged in load order into a single tree that modules read and extend.
type Configuration struct {
	root     *Map
	dumpFile string
	logger   *slog.Logger
}

// New creates an empty configuration.
func New(logger *slog.Logger) *Configuration {
	if logger == nil {
		logger = slog.Default()
	}
	return &Configuration{root: NewMap(), logger: logger}
}

// Root returns the top-level mapping.
func (c *Configuration) Root() *Map {
	return c.root
}

// Load reads, format-detects and merges each file in order. onLoaded, if
// non-nil, is called after each file is merged.
func (c *Configuration) Load(paths []string, onLoaded func(path string)) error {
	c.logger.Debug("Loading configs", slog.Any("configs", paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("failed to read config file %s", path)).
				Fatal().
				WithContext("source", path).
				Build()
		}
		if err := c.LoadSource(path, data); err != nil {
			return err
		}
		if onLoaded != nil {
			onLoaded(path)
		}
	}
	return nil
}

// LoadSource parses data and merges it into the tree. name is used in
// errors and logs only.
func (c *Configuration) LoadSource(name string, data []byte) error {
	tree, format, err := Parse(name, data)
	if err != nil {
		return err
	}
	c.logger.Debug("Merging config", logfields.Path(name), slog.String("format", string(format)))
	c.root.Merge(tree)
	return nil
}

// Merge deep-merges src into the tree.
func (c *Configuration) Merge(src *Map) {
	c.root.Merge(src)
}

// Get returns the top-level value under key, materializing def when absent.
func (c *Configuration) Get(key string, def any) (any, error) {
	return c.root.Get(key, def)
}

// Sub returns the nested mapping at keys, materializing missing levels.
func (c *Configuration) Sub(keys ...string) (*Map, error) {
	return c.root.Sub(keys...)
}

// Settings returns the "settings" section.
func (c *Configuration) Settings() (*Map, error) {
	return c.root.GetMap("settings")
}

// Lookup reads the value at path without materializing anything.
func (c *Configuration) Lookup(path ...string) (any, bool) {
	var current any = c.root
	for _, key := range path {
		m, ok := current.(*Map)
		if !ok {
			return nil, false
		}
		if current, ok = m.Lookup(key); !ok {
			return nil, false
		}
	}
	return current, true
}

// Has reports whether the top-level key is present.
func (c *Configuration) Has(key string) bool {
	return c.root.Has(key)
}

// Set stores a top-level value.
func (c *Configuration) Set(key string, value any) {
	c.root.Set(key, value)
}

// SetPath stores value at path, creating intermediate mappings.
func (c *Configuration) SetPath(path []string, value any) error {
	if len(path) == 0 {
		return ferrors.ConfigError("empty configuration path").Build()
	}
	parent, err := c.root.Sub(path[:len(path)-1]...)
	if err != nil {
		return err
	}
	parent.Set(path[len(path)-1], value)
	return nil
}

// Pop removes a top-level key and returns its value.
func (c *Configuration) Pop(key string) (any, bool) {
	return c.root.Delete(key)
}

// Clone returns a deep copy sharing the logger and dump file.
func (c *Configuration) Clone() *Configuration {
	return &Configuration{root: c.root.Clone(), dumpFile: c.dumpFile, logger: c.logger}
}

// SetDumpFile sets the path stem used by Dump when called without a path.
func (c *Configuration) SetDumpFile(path string) {
	c.dumpFile = path
}

// DumpFile returns the stem set by SetDumpFile.
func (c *Configuration) DumpFile() string {
	return c.dumpFile
}

// Dump writes a masked copy of the tree. With an empty format both
// "<path>.yml" and "<path>.json" are written. With an empty path the dump
// file stem is used; when none is known Dump does nothing.
func (c *Configuration) Dump(path string, format Format) error {
	if path == "" {
		path = c.dumpFile
	}
	if path == "" {
		return nil
	}
	if format == "" {
		for _, f := range []Format{FormatYAML, FormatJSON} {
			if err := c.Dump(path+f.Extension(), f); err != nil {
				return err
			}
		}
		return nil
	}

	fd, err := os.Create(path)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, fmt.Sprintf("failed to create dump file %s", path)).Build()
	}
	defer func() {
		_ = fd.Close()
	}()

	c.logger.Debug("Dumping config", slog.String("format", string(format)), logfields.Path(path))
	if err := c.Write(fd, format); err != nil {
		return err
	}
	return fd.Close()
}

// Write serializes a masked copy of the tree to w.
func (c *Configuration) Write(w io.Writer, format Format) error {
	masked := Masked(c.root)
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatYAML:
		data, err = EncodeYAML(masked)
	case FormatJSON:
		data, err = EncodeJSON(masked)
	default:
		return ferrors.InternalError(fmt.Sprintf("unknown dump format: %s", format)).Build()
	}
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, fmt.Sprintf("failed to encode config as %s", format)).Build()
	}
	_, err = w.Write(data)
	return err
}
