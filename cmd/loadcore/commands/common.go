package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/loadcore/internal/config"
	"git.home.luguber.info/inful/loadcore/internal/engine"
	ferrors "git.home.luguber.info/inful/loadcore/internal/foundation/errors"
	"git.home.luguber.info/inful/loadcore/internal/logfields"
	"git.home.luguber.info/inful/loadcore/internal/metrics"
	"git.home.luguber.info/inful/loadcore/internal/modules"
	"git.home.luguber.info/inful/loadcore/internal/registry"
)

// Global carries process-wide state shared with subcommands.
type Global struct {
	Logger  *slog.Logger
	Stdout  io.Writer
	Stderr  io.Writer
	Catalog *registry.Catalog
	// Extra engine options, appended after the ones derived from flags.
	EngineOptions []engine.Option
}

func (g *Global) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Global) stdout() io.Writer {
	if g.Stdout != nil {
		return g.Stdout
	}
	return os.Stdout
}

func (g *Global) catalog() *registry.Catalog {
	if g.Catalog == nil {
		g.Catalog = modules.NewCatalog()
	}
	return g.Catalog
}

// CLI definition & global flags.
type CLI struct {
	Verbose         bool             `short:"v" help:"Enable verbose logging"`
	Quiet           bool             `short:"q" help:"Only log warnings and errors"`
	LogFormat       string           `name:"log-format" enum:"text,json" default:"text" help:"Log output format (text|json)"`
	Option          []string         `short:"o" name:"option" sep:"none" placeholder:"PATH=VALUE" help:"Override a config value after all files are loaded"`
	NoSystemConfigs bool             `short:"n" name:"no-system-configs" help:"Skip built-in, machine and personal configs"`
	EnvFile         []string         `name:"env-file" help:"Dotenv files to load (default .env, .env.local)"`
	Version         kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Execute a run from the given configs"`
	Config  ConfigCmd  `cmd:"" help:"Print the effective configuration"`
	Modules ModulesCmd `cmd:"" help:"List module implementations and configured aliases"`
}

// AfterApply runs after flag parsing; setup logging and the environment once.
func (c *CLI) AfterApply() error {
	slog.SetDefault(config.NewLogger(os.Stderr, c.LogLevel(), config.NormalizeLogFormat(c.LogFormat)))
	path, err := config.LoadDotEnv(c.EnvFile...)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load environment file").Build()
	}
	if path != "" {
		slog.Debug("Loaded environment file", logfields.Path(path))
	}
	return nil
}

// LogLevel resolves --verbose and --quiet; verbose wins.
func (c *CLI) LogLevel() config.LogLevel {
	switch {
	case c.Verbose:
		return config.LogLevelDebug
	case c.Quiet:
		return config.LogLevelWarn
	default:
		return config.LogLevelInfo
	}
}

// Overrides parses every -o flag.
func (c *CLI) Overrides() ([]config.Override, error) {
	overrides := make([]config.Override, 0, len(c.Option))
	for _, spec := range c.Option {
		override, err := config.ParseOverride(spec)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid override").
				WithContext("option", spec).
				Build()
		}
		overrides = append(overrides, override)
	}
	return overrides, nil
}

// NewEngine builds an engine from the global flags.
func (c *CLI) NewEngine(g *Global, extra ...engine.Option) (*engine.Engine, error) {
	overrides, err := c.Overrides()
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts := []engine.Option{
		engine.WithLogger(g.logger()),
		engine.WithCatalog(g.catalog()),
		engine.WithMetrics(reg, metrics.NewPrometheusRecorder(reg)),
		engine.WithOverrides(overrides...),
	}
	opts = append(opts, extra...)
	opts = append(opts, g.EngineOptions...)
	return engine.New(opts...), nil
}

// Report prints err and returns the process exit code.
func (c *CLI) Report(g *Global, err error) int {
	stderr := g.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	return ferrors.NewCLIErrorAdapter(c.Verbose, g.logger()).Report(stderr, err)
}
