package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/loadcore/cmd/loadcore/commands"
	"git.home.luguber.info/inful/loadcore/internal/version"
)

func main() {
	cli := &commands.CLI{}
	global := &commands.Global{Stdout: os.Stdout, Stderr: os.Stderr}
	parser := kong.Parse(cli,
		kong.Name("loadcore"),
		kong.Description("Run load-testing tool modules through one orchestrated lifecycle."),
		kong.Vars{"version": version.String()},
		kong.UsageOnError(),
	)
	err := parser.Run(global, cli)
	os.Exit(cli.Report(global, err))
}
