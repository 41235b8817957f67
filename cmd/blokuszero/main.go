package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Server  ServerCmd        `cmd:"" help:"Run the training server"`
	Bench   BenchCmd         `cmd:"" help:"Run a swarm of synthetic self-play clients against a server"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("blokuszero"),
		kong.Description("Self-play training coordination server for Blokus"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
