package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/courier/cli/render"
	"github.com/pithecene-io/courier/seal"
)

// KeygenResponse is the response for the keygen command.
type KeygenResponse struct {
	Key    string `json:"key" yaml:"key"`
	Cipher string `json:"cipher" yaml:"cipher"`
}

// KeygenCommand returns the keygen command. The printed key is suitable
// for PRIVATE_KEY on both sides.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:   "keygen",
		Usage:  "Generate a random shared key for PRIVATE_KEY",
		Flags:  ReadOnlyFlags(),
		Action: keygenAction,
	}
}

func keygenAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for keygen command", 1)
	}

	key, err := seal.GenerateKey()
	if err != nil {
		return err
	}
	return r.Render(KeygenResponse{Key: key, Cipher: string(seal.KindXChaCha)})
}
