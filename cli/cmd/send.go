package cmd

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/courier/sender"
	"github.com/pithecene-io/courier/spool"
	"github.com/pithecene-io/courier/types"
	"github.com/pithecene-io/courier/watcher"
)

// SendCommand returns the send command: watch to_send/ and transmit every
// file to the receiver.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Watch to_send/ and transmit each JSON file as XML to the receiver",
		Flags: append(relayFlags(),
			&cli.DurationFlag{Name: "poll-interval", Usage: "Directory scan interval"},
			&cli.BoolFlag{Name: "watch", Usage: "Wake on filesystem events in addition to polling"},
			&cli.BoolFlag{Name: "once", Usage: "Scan to_send/ once and exit"},
		),
		Action: sendAction,
	}
}

func sendAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return configExit(err)
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	rl, err := newRelay(ctx, c, cfg, types.SideSender)
	if err != nil {
		return configExit(err)
	}
	defer rl.close()

	layout := cfg.Layout()
	if err := spool.Ensure(layout.SenderDirs()...); err != nil {
		return failureExit(err)
	}

	quarantine, err := spool.ParseNaming(cfg.QuarantineNaming, spool.NamingTimestamped)
	if err != nil {
		return configExit(err)
	}

	pipeline, err := sender.New(sender.Config{
		SourceDir:        layout.ToSend,
		SentDir:          layout.Sent,
		ErrorDir:         layout.SentError,
		Address:          cfg.Address(),
		BufferSize:       cfg.BufferSize,
		ConnectTimeout:   cfg.Timeouts.Connect.Duration,
		WriteTimeout:     cfg.Timeouts.Write.Duration,
		QuarantineNaming: quarantine,
	}, sender.Options{
		Codec:      rl.codec,
		Cipher:     rl.cipher,
		Compressor: rl.compressor,
		Logger:     rl.logger("sender"),
		Recorder:   rl.reporter,
	})
	if err != nil {
		return configExit(err)
	}

	w, err := watcher.New(watcher.Config{
		Dir:          layout.ToSend,
		PollInterval: cfg.PollInterval.Duration,
		Notify:       cfg.Watch,
	}, func(ctx context.Context, name string) {
		pipeline.Execute(ctx, name)
	}, rl.logger("watcher"))
	if err != nil {
		return configExit(err)
	}

	rl.logger("sender").Sugar().Infof("Sending to %s from %s", cfg.Address(), layout.ToSend)

	if c.Bool("once") {
		_, err := w.Scan(ctx)
		return failureExit(err)
	}
	return failureExit(w.Run(ctx))
}
