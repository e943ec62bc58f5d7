package commands

import (
	"context"

	"git.home.luguber.info/inful/loadcore/internal/config"
	"git.home.luguber.info/inful/loadcore/internal/engine"
)

// ConfigCmd implements the 'config' command: configure only, then print
// the masked effective configuration.
type ConfigCmd struct {
	Configs []string `arg:"" optional:"" help:"Config files (YAML or JSON), merged in order"`
	Format  string   `short:"f" enum:"yaml,json" default:"yaml" help:"Output format (yaml|json)"`
	Merged  bool     `help:"Print only the user configs merged, without base layers and modules"`
}

func (c *ConfigCmd) Run(g *Global, root *CLI) error {
	eng, err := root.NewEngine(g, engine.WithUpdateChecker(nil))
	if err != nil {
		return err
	}
	merged, err := eng.Configure(context.Background(), c.Configs, !root.NoSystemConfigs)
	if err != nil {
		return err
	}
	out := eng.Config()
	if c.Merged {
		out = merged
	}
	return out.Write(g.stdout(), config.Format(c.Format))
}
