package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/courier/types"
)

// NewApp assembles the courier command tree. The caller sets the exit
// handler.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "courier",
		Usage:   "Encrypted JSON to XML store-and-forward relay",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			SendCommand(),
			ReceiveCommand(),
			StatsCommand(),
			KeygenCommand(),
			VersionCommand(commit),
		},
	}
}
