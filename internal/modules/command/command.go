// Package command provides the exec executor: it runs the execution's
// command as a subprocess for the duration of the run.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/module"
)

// Implementation is the catalog name of the exec executor.
const Implementation = "exec"

const (
	keyCommand = "command"
	keyScript  = "script"
	keyCwd     = "cwd"
	keyShell   = "shell"

	defaultShell = "/bin/sh"
)

// Executor runs execution.command (a string run through the shell, or an
// argument list) or execution.script. Check is done once the process exits
// or hold-for has elapsed. Shutdown kills a live process.
type Executor struct {
	module.ExecutorBase

	argv []string
	dir  string
	hold time.Duration
	now  func() time.Time

	cmd     *exec.Cmd
	stdout  *os.File
	stderr  *os.File
	started time.Time
	exited  chan struct{}

	mu      sync.Mutex
	waitErr error
	killed  bool
}

var (
	_ module.Executor   = (*Executor)(nil)
	_ module.FileLister = (*Executor)(nil)
)

// New creates the executor.
func New() module.Module {
	return &Executor{now: time.Now}
}

// Prepare reads the command and the load profile.
func (e *Executor) Prepare(ctx context.Context) error {
	load, err := e.GetLoad()
	if err != nil {
		return err
	}
	e.hold = load.Duration

	if e.argv, err = e.commandLine(); err != nil {
		return err
	}
	if e.dir, err = e.Execution().GetString(keyCwd, ""); err != nil {
		return err
	}
	e.Log().Debug("Prepared command", slog.Any("argv", e.argv), slog.Duration("hold", e.hold))
	return ctx.Err()
}

func (e *Executor) commandLine() ([]string, error) {
	execution := e.Execution()
	value, ok := execution.Lookup(keyCommand)
	if ok && value != nil {
		switch v := value.(type) {
		case string:
			shell, err := e.OptionString(keyShell, defaultShell)
			if err != nil {
				return nil, err
			}
			return []string{shell, "-c", v}, nil
		case []any:
			argv := make([]string, 0, len(v))
			for i, item := range v {
				if item == nil {
					return nil, ferrors.TypeMismatchError(fmt.Sprintf("%s[%d]", keyCommand, i), "a scalar", item)
				}
				argv = append(argv, fmt.Sprint(item))
			}
			if len(argv) == 0 {
				return nil, ferrors.MissingConfigError("exec executor needs a non-empty command")
			}
			return argv, nil
		default:
			return nil, ferrors.TypeMismatchError(keyCommand, "a string or a list", value)
		}
	}

	script, err := execution.GetString(keyScript, "")
	if err != nil {
		return nil, err
	}
	if script == "" {
		return nil, ferrors.MissingConfigError("exec executor needs execution.command or execution.script")
	}
	path, err := e.Host().FindFile(script)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// ResourceFiles reports the script, if one is configured.
func (e *Executor) ResourceFiles() ([]string, error) {
	script, err := e.Execution().GetString(keyScript, "")
	if err != nil || script == "" {
		return nil, err
	}
	return []string{script}, nil
}

// Startup launches the process with the executor environment. Output goes
// to "<alias>.out" and "<alias>.err" artifacts.
func (e *Executor) Startup(context.Context) error {
	env, err := e.Environment()
	if err != nil {
		return err
	}
	if e.stdout, err = e.createLog(".out"); err != nil {
		return err
	}
	if e.stderr, err = e.createLog(".err"); err != nil {
		return err
	}

	// The process outlives Startup's context; Shutdown owns its lifetime.
	cmd := exec.Command(e.argv[0], e.argv[1:]...) //nolint:gosec // command comes from the run configuration
	cmd.Env = env
	cmd.Dir = e.dir
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	if err := cmd.Start(); err != nil {
		e.closeLogs()
		return ferrors.ModuleError(e.Alias(), "startup", err)
	}

	e.cmd = cmd
	e.started = e.now()
	e.exited = make(chan struct{})
	e.Log().Info("Started process", slog.Int("pid", cmd.Process.Pid))
	go func() {
		err := cmd.Wait()
		e.mu.Lock()
		e.waitErr = err
		e.mu.Unlock()
		close(e.exited)
	}()
	return nil
}

func (e *Executor) createLog(suffix string) (*os.File, error) {
	path, err := e.Host().Artifacts().CreateArtifact(e.Alias(), suffix)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create output artifact").
			WithContext("path", path).
			Build()
	}
	return f, nil
}

// Check reports the process exit or the expiry of hold-for.
func (e *Executor) Check(context.Context) (bool, error) {
	if e.cmd == nil {
		return false, nil
	}
	select {
	case <-e.exited:
		return true, nil
	default:
	}
	if e.hold > 0 && e.now().Sub(e.started) >= e.hold {
		e.Log().Info("Hold time elapsed", slog.Duration("hold", e.hold))
		return true, nil
	}
	return false, nil
}

// Shutdown kills the process if it is still running and waits for it.
func (e *Executor) Shutdown(ctx context.Context) error {
	if e.cmd == nil {
		return nil
	}
	defer e.closeLogs()

	select {
	case <-e.exited:
		return nil
	default:
	}

	e.mu.Lock()
	e.killed = true
	e.mu.Unlock()
	e.Log().Info("Killing process", slog.Int("pid", e.cmd.Process.Pid))
	if err := e.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return ferrors.ModuleError(e.Alias(), "shutdown", err)
	}
	select {
	case <-e.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PostProcess fails when the process exited on its own with an error.
func (e *Executor) PostProcess(context.Context) error {
	if e.cmd == nil {
		return nil
	}
	e.mu.Lock()
	waitErr, killed := e.waitErr, e.killed
	e.mu.Unlock()

	if waitErr == nil || killed {
		return nil
	}
	e.Log().Warn("Process failed", logfields.Error(waitErr))
	return ferrors.ModuleError(e.Alias(), "post-process", waitErr).
		WithContext("exit_code", e.cmd.ProcessState.ExitCode())
}

// ExitCode returns the exit code of the process once it has exited, or -1.
func (e *Executor) ExitCode() int {
	if e.cmd == nil {
		return -1
	}
	select {
	case <-e.exited:
		return e.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

func (e *Executor) closeLogs() {
	for _, f := range []*os.File{e.stdout, e.stderr} {
		if f != nil {
			_ = f.Close()
		}
	}
}
