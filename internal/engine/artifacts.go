package engine

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
)

const keyArtifactsDir = "artifacts-dir"

// CreateArtifactsDir creates the run's artifacts directory, starts dumping
// the effective configuration there, stores the merged user configuration
// as merged.yml and merged.json, and absorbs the existing files given.
func (e *Engine) CreateArtifactsDir(existing []string, merged *config.Configuration) error {
	err := e.createArtifactsDir(existing, merged)
	if err != nil {
		e.recordStop(err)
	}
	return err
}

func (e *Engine) createArtifactsDir(existing []string, merged *config.Configuration) error {
	settings, err := e.cfg.Settings()
	if err != nil {
		return err
	}
	pattern, err := settings.GetString(keyArtifactsDir, "")
	if err != nil {
		return err
	}
	if _, err := e.artifacts.CreateDir(e.artifactsDir, pattern, e.now()); err != nil {
		return err
	}

	effective, err := e.artifacts.CreateArtifact("effective", "")
	if err != nil {
		return err
	}
	e.cfg.SetDumpFile(effective)
	if err := e.cfg.Dump("", ""); err != nil {
		return err
	}

	if merged != nil {
		for _, format := range []config.Format{config.FormatYAML, config.FormatJSON} {
			path, err := e.artifacts.CreateArtifact("merged", format.Extension())
			if err != nil {
				return err
			}
			if err := merged.Dump(path, format); err != nil {
				return err
			}
		}
	}

	for _, path := range existing {
		if _, err := e.artifacts.ExistingArtifact(path, false); err != nil {
			return err
		}
	}
	return nil
}

// FindFile resolves a file a module refers to: the path itself when it
// exists, else its base name inside the directories of loaded user
// configs.
func (e *Engine) FindFile(name string) (string, error) {
	expanded, err := homedir.Expand(name)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot expand file path").
			WithContext("path", name).
			Build()
	}
	if _, err := os.Stat(expanded); err == nil {
		return expanded, nil
	}

	base := filepath.Base(expanded)
	for _, dir := range e.searchPaths {
		candidate := filepath.Join(dir, base)
		if _, err := os.Stat(candidate); err == nil {
			e.logger.Warn("Guessed location of file",
				logfields.Path(name),
				logfields.Artifact(candidate))
			return candidate, nil
		}
	}
	return "", ferrors.FileSystemError("file not found: "+name).
		WithContext("path", name).
		Build()
}
