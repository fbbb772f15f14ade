// Package cmd provides CLI commands for the courier binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode (stats only).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can give an explicit error
// instead of a generic "flag not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// GlobalFlags apply to every command.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to courier.yaml",
			EnvVars: []string{"COURIER_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
	}
}

// relayFlags are shared by send and receive. Each overrides the matching
// config file or environment value only when set.
func relayFlags() []cli.Flag {
	return []cli.Flag{
		// Addressing and layout
		&cli.StringFlag{Name: "mount-path", Usage: "Root of the spool directories (MOUNT_PATH)"},
		&cli.StringFlag{Name: "host", Usage: "Receiver host (SERVER_HOST)"},
		&cli.IntFlag{Name: "port", Usage: "Receiver port (SERVER_PORT)"},
		&cli.IntFlag{Name: "buffer-size", Usage: "Socket chunk size in bytes (BUFFER_SIZE)"},
		// Wire format
		&cli.StringFlag{Name: "separator", Usage: "Filename/payload separator (SEPARATOR)"},
		&cli.StringFlag{Name: "framing", Usage: "Framing: separator or length_prefixed"},
		&cli.StringFlag{Name: "compression", Usage: "Payload compression: none or zstd"},
		&cli.BoolFlag{Name: "encrypt", Usage: "Encrypt messages with the shared key (PRIVATE_KEY)"},
		&cli.StringFlag{Name: "cipher", Usage: "Cipher: xchacha20poly1305 or age"},
		// Limits
		&cli.DurationFlag{Name: "connect-timeout", Usage: "Dial timeout (0 = none)"},
		&cli.DurationFlag{Name: "read-timeout", Usage: "Per-connection read timeout (0 = none)"},
		&cli.DurationFlag{Name: "write-timeout", Usage: "Per-message write timeout (0 = none)"},
		&cli.Int64Flag{Name: "max-message-size", Usage: "Largest accepted message in bytes (0 = unlimited)"},
		// File naming
		&cli.StringFlag{Name: "quarantine-naming", Usage: "Error directory naming: plain or timestamped"},
		&cli.StringFlag{Name: "received-collision", Usage: "Existing received file: overwrite or timestamped"},
		// Ledger
		&cli.StringFlag{Name: "ledger-path", Usage: "Delivery ledger path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "ledger-backend", Usage: "Delivery ledger backend: fs or s3"},
		&cli.StringFlag{Name: "ledger-dataset", Usage: "Delivery ledger dataset id"},
		&cli.StringFlag{Name: "ledger-s3-region", Usage: "AWS region for the S3 ledger"},
		&cli.StringFlag{Name: "ledger-s3-endpoint", Usage: "Custom S3 endpoint (e.g. MinIO)"},
		&cli.BoolFlag{Name: "ledger-s3-path-style", Usage: "Use path-style S3 addressing"},
		// Notifications
		&cli.StringFlag{Name: "notify-type", Usage: "Delivery notifications: webhook or redis"},
		&cli.StringFlag{Name: "notify-url", Usage: "Webhook URL or redis:// URL"},
		&cli.StringFlag{Name: "notify-channel", Usage: "Redis channel for delivery events"},
	}
}

// ledgerReadFlags locate the ledger for the stats commands.
func ledgerReadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "ledger-path", Usage: "Delivery ledger path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "ledger-backend", Usage: "Delivery ledger backend: fs or s3"},
		&cli.StringFlag{Name: "ledger-dataset", Usage: "Delivery ledger dataset id"},
		&cli.StringFlag{Name: "ledger-s3-region", Usage: "AWS region for the S3 ledger"},
		&cli.StringFlag{Name: "ledger-s3-endpoint", Usage: "Custom S3 endpoint (e.g. MinIO)"},
		&cli.BoolFlag{Name: "ledger-s3-path-style", Usage: "Use path-style S3 addressing"},
		&cli.StringFlag{Name: "side", Usage: "Only records written by sender or receiver"},
	}
}
