package module

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/loadcore/internal/config"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
)

// Execution entry keys.
const (
	KeyConcurrency = "concurrency"
	KeyThroughput  = "throughput"
	KeyRampUp      = "ramp-up"
	KeyHoldFor     = "hold-for"
	KeyIterations  = "iterations"
	KeySteps       = "steps"
	KeyEnv         = "env"
	KeyEnvFile     = "env-file"
	KeyFiles       = "files"
	KeyHostAliases = "hostaliases"

	// ArtifactsDirEnv names the artifacts directory in executor environments.
	ArtifactsDirEnv = "LOADCORE_ARTIFACTS_DIR"
)

// Executor runs one execution entry.
type Executor interface {
	Module
	BindExecution(provisioning Provisioning, execution *config.Map)
	Execution() *config.Map
	Provisioning() Provisioning
}

// Load is the load profile read from an execution entry. Nil pointers
// mean the option was not given.
type Load struct {
	Concurrency float64
	Throughput  float64
	RampUp      *time.Duration
	Hold        time.Duration
	Iterations  *int64
	Steps       *int64
	// Duration is Hold plus RampUp.
	Duration time.Duration
}

// ExecutorBase implements the execution binding and the helpers shared by
// executors.
type ExecutorBase struct {
	Base
	provisioning Provisioning
	execution    *config.Map
}

func (e *ExecutorBase) BindExecution(provisioning Provisioning, execution *config.Map) {
	e.provisioning = provisioning
	e.execution = execution
}

func (e *ExecutorBase) Provisioning() Provisioning { return e.provisioning }

// Execution returns the bound execution entry.
func (e *ExecutorBase) Execution() *config.Map {
	if e.execution == nil {
		e.execution = config.NewMap()
	}
	return e.execution
}

// GetLoad reads the load profile. Concurrency and throughput may be keyed
// by provisioning type; a bare number applies to the current one. With a
// duration and no iterations, Iterations is 0, meaning unbounded.
func (e *ExecutorBase) GetLoad() (Load, error) {
	var load Load
	execution := e.Execution()

	provType, err := e.Host().Config().Root().RequireString(KeyProvisioning, "There must be provisioning type set")
	if err != nil {
		return load, err
	}

	if load.Throughput, err = perProvisioning(execution, KeyThroughput, provType); err != nil {
		return load, err
	}
	if load.Concurrency, err = perProvisioning(execution, KeyConcurrency, provType); err != nil {
		return load, err
	}
	if load.Iterations, err = optionalInt(execution, KeyIterations); err != nil {
		return load, err
	}
	if load.Steps, err = optionalInt(execution, KeySteps); err != nil {
		return load, err
	}

	if load.Hold, err = execution.GetDuration(KeyHoldFor, 0); err != nil {
		return load, err
	}
	load.Duration = load.Hold
	if value, ok := execution.Lookup(KeyRampUp); ok && value != nil {
		rampUp, err := config.ParseDuration(value)
		if err != nil {
			return load, ferrors.TypeMismatchError(KeyRampUp, "a duration", value)
		}
		load.RampUp = &rampUp
		load.Duration += rampUp
	}

	if load.Duration > 0 && (load.Iterations == nil || *load.Iterations == 0) {
		zero := int64(0)
		load.Iterations = &zero
	}
	return load, nil
}

func perProvisioning(execution *config.Map, key, provType string) (float64, error) {
	if _, err := execution.EnsureMap(key, provType); err != nil {
		return 0, err
	}
	byType, err := execution.GetMap(key)
	if err != nil {
		return 0, err
	}
	value, ok := byType.Lookup(provType)
	if !ok || value == nil {
		return 0, nil
	}
	return config.AsFloat(key, value)
}

func optionalInt(execution *config.Map, key string) (*int64, error) {
	value, ok := execution.Lookup(key)
	if !ok || value == nil {
		return nil, nil
	}
	n, err := config.AsInt(key, value)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ResourceFiles returns the execution's "files" list plus whatever the
// executor itself reports through FileLister.
func ResourceFiles(e Executor) ([]string, error) {
	list, err := e.Execution().GetList(KeyFiles)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(list))
	for i, item := range list {
		s, err := config.AsString(fmt.Sprintf("%s[%d]", KeyFiles, i), item)
		if err != nil {
			return nil, err
		}
		files = append(files, s)
	}
	if lister, ok := e.(FileLister); ok {
		extra, err := lister.ResourceFiles()
		if err != nil {
			return nil, err
		}
		files = append(files, extra...)
	}
	return files, nil
}

// HostAliases writes settings.hostaliases to a fresh artifact in hosts
// file format and returns its path, or "" when no aliases are set.
func (e *ExecutorBase) HostAliases() (string, error) {
	settings, err := e.Host().Config().Root().GetMap(KeySettings)
	if err != nil {
		return "", err
	}
	aliases, err := settings.GetMap(KeyHostAliases)
	if err != nil {
		return "", err
	}
	if aliases.Len() == 0 {
		return "", nil
	}

	var b strings.Builder
	var ferr error
	aliases.Each(func(host string, value any) {
		target, err := config.AsString(KeyHostAliases+"."+host, value)
		if err != nil && ferr == nil {
			ferr = err
		}
		fmt.Fprintf(&b, "%s %s\n", host, target)
	})
	if ferr != nil {
		return "", ferr
	}

	path, err := e.Host().Artifacts().CreateArtifact("hostaliases", "")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write hostaliases").
			WithContext("path", path).
			Build()
	}
	return path, nil
}

// Environment builds the subprocess environment: the process environment,
// then execution.env-file, then execution.env, then HOSTALIASES and the
// artifacts dir. A null value in execution.env removes the variable.
// The result is sorted "KEY=value" pairs.
func (e *ExecutorBase) Environment() ([]string, error) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			env[key] = value
		}
	}

	execution := e.Execution()
	envFile, err := execution.GetString(KeyEnvFile, "")
	if err != nil {
		return nil, err
	}
	if envFile != "" {
		path, err := e.Host().FindFile(envFile)
		if err != nil {
			return nil, err
		}
		fileEnv, err := config.ReadEnvFile(path)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read env file").
				WithContext("path", path).
				Build()
		}
		for key, value := range fileEnv {
			env[key] = value
		}
	}

	extra, err := execution.GetMap(KeyEnv)
	if err != nil {
		return nil, err
	}
	extra.Each(func(key string, value any) {
		if value == nil {
			delete(env, key)
			return
		}
		env[key] = fmt.Sprint(value)
	})

	hosts, err := e.HostAliases()
	if err != nil {
		return nil, err
	}
	if hosts != "" {
		env["HOSTALIASES"] = hosts
	}
	env[ArtifactsDirEnv] = e.Host().Artifacts().Dir()

	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, key+"="+value)
	}
	sort.Strings(out)
	return out, nil
}
