package engine

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/mitchellh/go-homedir"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/transport"
	"git.home.luguber.info/inful/loadcore/internal/version"
)

const (
	// ConfigDirEnv overrides the machine-local config directory.
	ConfigDirEnv = "LOADCORE_CONFIG_DIR"
	// DefaultPersonalConfig is loaded after machine-local configs when present.
	DefaultPersonalConfig = "~/.loadcore-rc"

	defaultConfigDir   = "/etc/loadcore/conf.d"
	keyIncludedConfigs = "included-configs"
	keyVersion         = "version"
)

// DefaultConfigDir returns $LOADCORE_CONFIG_DIR or /etc/loadcore/conf.d.
func DefaultConfigDir() string {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir
	}
	return defaultConfigDir
}

// Configure builds the effective configuration: base layers (embedded
// defaults, machine-local directory, personal file) when readBase is set,
// then userConfigs, then included-configs, then overrides. It returns a
// separate configuration holding the user layers only.
func (e *Engine) Configure(ctx context.Context, userConfigs []string, readBase bool) (*config.Configuration, error) {
	if err := e.requireStage("Configure", stageNew); err != nil {
		return nil, err
	}
	start := e.now()
	merged, err := e.configure(ctx, userConfigs, readBase)
	e.observe(StageConfigure, start, err)
	if err != nil {
		e.recordStop(err)
		return nil, err
	}
	e.stage = stageConfigured
	return merged, nil
}

func (e *Engine) configure(ctx context.Context, userConfigs []string, readBase bool) (*config.Configuration, error) {
	if readBase {
		if err := e.loadBaseConfigs(); err != nil {
			return nil, err
		}
	}

	merged := config.New(e.logger.With(logfields.Component("config")))
	onUserConfig := func(path string) {
		e.addSearchPath(filepath.Dir(path))
	}
	if err := e.cfg.Load(userConfigs, onUserConfig); err != nil {
		return nil, err
	}
	if err := merged.Load(userConfigs, nil); err != nil {
		return nil, err
	}

	if err := e.loadIncludes(); err != nil {
		return nil, err
	}

	if err := e.cfg.Apply(e.overrides); err != nil {
		return nil, err
	}
	if err := merged.Apply(e.overrides); err != nil {
		return nil, err
	}

	e.cfg.Set(keyVersion, version.Version)

	settings, err := e.cfg.Settings()
	if err != nil {
		return nil, err
	}
	if err := e.setupHTTPClient(settings); err != nil {
		return nil, err
	}
	if err := e.checkForUpdates(ctx, settings); err != nil {
		return nil, err
	}
	return merged, nil
}

func (e *Engine) loadBaseConfigs() error {
	if err := e.cfg.LoadSource("base.yml", baseConfig); err != nil {
		return err
	}

	machine, err := listConfigDir(e.configDir)
	if err != nil {
		return err
	}
	if err := e.cfg.Load(machine, nil); err != nil {
		return err
	}

	if e.personalConfig == "" {
		return nil
	}
	personal, err := homedir.Expand(e.personalConfig)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "cannot expand personal config path").Build()
	}
	if info, err := os.Stat(personal); err == nil && info.Mode().IsRegular() {
		return e.cfg.Load([]string{personal}, nil)
	}
	e.logger.Debug("No personal config", logfields.Path(personal))
	return nil
}

// listConfigDir returns the regular files of dir sorted by name. A missing
// directory yields nothing.
func listConfigDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot read config directory").
			WithContext("path", dir).
			Build()
	}
	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

func (e *Engine) loadIncludes() error {
	raw, ok := e.cfg.Pop(keyIncludedConfigs)
	if !ok || raw == nil {
		return nil
	}
	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case string:
		entries = []any{v}
	default:
		return ferrors.TypeMismatchError(keyIncludedConfigs, "a list", raw)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		name, err := config.AsString(keyIncludedConfigs, entry)
		if err != nil {
			return err
		}
		expanded, err := homedir.Expand(name)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "cannot expand included config path").Build()
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot resolve included config path").Build()
		}
		paths = append(paths, abs)
	}
	e.logger.Debug("Loading included configs", slog.Any("configs", paths))
	return e.cfg.Load(paths, func(path string) { e.addSearchPath(filepath.Dir(path)) })
}

func (e *Engine) addSearchPath(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if !slices.Contains(e.searchPaths, dir) {
		e.searchPaths = append(e.searchPaths, dir)
	}
}

func (e *Engine) setupHTTPClient(settings *config.Map) error {
	proxyMap, err := settings.GetMap("proxy")
	if err != nil {
		return err
	}
	var ps transport.ProxySettings
	if ps.Address, err = proxyMap.GetString("address", ""); err != nil {
		return err
	}
	if ps.Username, err = proxyMap.GetString("username", ""); err != nil {
		return err
	}
	if ps.Password, err = proxyMap.GetString("password", ""); err != nil {
		return err
	}
	client, err := transport.NewClient(ps)
	if err != nil {
		return err
	}
	if ps.Address != "" {
		e.logger.Info("Using proxy", slog.String("address", ps.Address))
	}
	e.httpClient = client
	return nil
}

func (e *Engine) checkForUpdates(ctx context.Context, settings *config.Map) error {
	enabled, err := settings.GetBool("check-updates", false)
	if err != nil || !enabled || e.checkFn == nil {
		return err
	}
	endpoint, err := settings.GetString("update-url", "")
	if err != nil || endpoint == "" {
		return err
	}
	installID, err := settings.GetString("install-id", "N/A")
	if err != nil {
		return err
	}

	result, err := e.checkFn(ctx, e.HTTPClient(), endpoint, version.Version, installID)
	if err != nil {
		e.logger.Warn("Failed to check for updates", logfields.Error(err))
		return nil
	}
	if result.Newer {
		e.logger.Warn("There is newer version available",
			slog.String("current", result.Current),
			slog.String("latest", result.Latest))
	} else {
		e.logger.Info("Installation is up-to-date", slog.String("version", result.Current))
	}
	return nil
}
