package commands

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"

	"git.home.luguber.info/inful/loadcore/internal/config"
	"git.home.luguber.info/inful/loadcore/internal/engine"
)

// ModulesCmd implements the 'modules' command: configure, then list every
// alias under modules with the implementation it resolves to.
type ModulesCmd struct {
	Configs []string `arg:"" optional:"" help:"Config files (YAML or JSON), merged in order"`
}

func (m *ModulesCmd) Run(g *Global, root *CLI) error {
	eng, err := root.NewEngine(g, engine.WithUpdateChecker(nil))
	if err != nil {
		return err
	}
	if _, err := eng.Configure(context.Background(), m.Configs, !root.NoSystemConfigs); err != nil {
		return err
	}
	aliases, err := eng.Config().Sub("modules")
	if err != nil {
		return err
	}

	catalog := g.catalog()
	t := table.NewWriter()
	t.SetOutputMirror(g.stdout())
	t.AppendHeader(table.Row{"Alias", "Implementation", "Available"})
	for _, alias := range aliases.Keys() {
		impl := "-"
		if entry, err := aliases.GetMap(alias); err == nil {
			if value, ok := entry.Lookup("implementation"); ok {
				if s, err := config.AsString("implementation", value); err == nil {
					impl = s
				}
			}
		}
		t.AppendRow(table.Row{alias, impl, availability(catalog.Has(impl))})
	}
	t.Render()
	return nil
}

func availability(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
