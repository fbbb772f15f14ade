package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/courier/receiver"
	"github.com/pithecene-io/courier/spool"
	"github.com/pithecene-io/courier/types"
)

// ReceiveCommand returns the receive command: listen on host:port and
// persist every message under received/.
func ReceiveCommand() *cli.Command {
	return &cli.Command{
		Name:   "receive",
		Usage:  "Listen for messages and write each payload to received/",
		Flags:  relayFlags(),
		Action: receiveAction,
	}
}

func receiveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return configExit(err)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	rl, err := newRelay(ctx, c, cfg, types.SideReceiver)
	if err != nil {
		return configExit(err)
	}
	defer rl.close()

	layout := cfg.Layout()
	if err := spool.Ensure(layout.ReceiverDirs()...); err != nil {
		return failureExit(err)
	}

	collision, err := spool.ParseNaming(cfg.ReceivedCollision, spool.NamingOverwrite)
	if err != nil {
		return configExit(err)
	}

	srv, err := receiver.New(receiver.Config{
		ReceivedDir:    layout.Received,
		ErrorDir:       layout.ReceivedError,
		BufferSize:     cfg.BufferSize,
		ReadTimeout:    cfg.Timeouts.Read.Duration,
		MaxMessageSize: cfg.MaxMessageSize,
		Collision:      collision,
	}, receiver.Options{
		Codec:      rl.codec,
		Cipher:     rl.cipher,
		Compressor: rl.compressor,
		Logger:     rl.logger("receiver"),
		Recorder:   rl.reporter,
		Metrics:    rl.reporter.Collector(),
	})
	if err != nil {
		return configExit(err)
	}

	return failureExit(srv.ListenAndServe(ctx, cfg.Address()))
}
