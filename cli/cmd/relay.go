package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/courier/adapter"
	"github.com/pithecene-io/courier/adapter/redis"
	"github.com/pithecene-io/courier/adapter/webhook"
	"github.com/pithecene-io/courier/cli/config"
	"github.com/pithecene-io/courier/codec"
	"github.com/pithecene-io/courier/iox"
	"github.com/pithecene-io/courier/ledger"
	"github.com/pithecene-io/courier/log"
	"github.com/pithecene-io/courier/metrics"
	"github.com/pithecene-io/courier/report"
	"github.com/pithecene-io/courier/seal"
	"github.com/pithecene-io/courier/types"
)

// Exit codes.
const (
	exitFailure = 1 // runtime failure (bind, watch directory)
	exitConfig  = 2 // configuration could not be resolved or is invalid
)

// loadConfig resolves defaults, then the config file, then the environment,
// then flags, and validates the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Resolve(c.String("config"), nil)
	if err != nil {
		return nil, err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(c *cli.Context, cfg *config.Config) {
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setDuration := func(name string, dst *config.Duration) {
		if c.IsSet(name) {
			dst.Duration = c.Duration(name)
		}
	}

	setString("log-level", &cfg.LogLevel)
	setString("mount-path", &cfg.MountPath)
	setString("host", &cfg.Server.Host)
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("buffer-size") {
		cfg.BufferSize = c.Int("buffer-size")
	}
	setString("separator", &cfg.Separator)
	setString("framing", &cfg.Framing)
	setString("compression", &cfg.Compression)
	if c.IsSet("encrypt") {
		cfg.Encryption.Enabled = c.Bool("encrypt")
	}
	setString("cipher", &cfg.Encryption.Cipher)

	setDuration("connect-timeout", &cfg.Timeouts.Connect)
	setDuration("read-timeout", &cfg.Timeouts.Read)
	setDuration("write-timeout", &cfg.Timeouts.Write)
	setDuration("poll-interval", &cfg.PollInterval)
	if c.IsSet("max-message-size") {
		cfg.MaxMessageSize = c.Int64("max-message-size")
	}
	if c.IsSet("watch") {
		cfg.Watch = c.Bool("watch")
	}

	setString("quarantine-naming", &cfg.QuarantineNaming)
	setString("received-collision", &cfg.ReceivedCollision)

	applyLedgerFlags(c, cfg)

	setString("notify-type", &cfg.Notify.Type)
	setString("notify-url", &cfg.Notify.URL)
	setString("notify-channel", &cfg.Notify.Channel)
}

func applyLedgerFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("ledger-path") {
		cfg.Ledger.Path = c.String("ledger-path")
	}
	if c.IsSet("ledger-backend") {
		cfg.Ledger.Backend = c.String("ledger-backend")
	}
	if c.IsSet("ledger-dataset") {
		cfg.Ledger.Dataset = c.String("ledger-dataset")
	}
	if c.IsSet("ledger-s3-region") {
		cfg.Ledger.Region = c.String("ledger-s3-region")
	}
	if c.IsSet("ledger-s3-endpoint") {
		cfg.Ledger.Endpoint = c.String("ledger-s3-endpoint")
	}
	if c.IsSet("ledger-s3-path-style") {
		cfg.Ledger.S3PathStyle = c.Bool("ledger-s3-path-style")
	}
}

// relay holds the collaborators shared by the send and receive commands.
type relay struct {
	cfg        *config.Config
	side       types.Side
	level      zapcore.Level
	logOut     io.Writer
	codec      codec.Codec
	cipher     seal.Cipher
	compressor *codec.Compressor
	reporter   *report.Reporter
}

// newRelay builds the codec, cipher, compressor and reporter for side.
// The caller must call close.
func newRelay(ctx context.Context, c *cli.Context, cfg *config.Config, side types.Side) (*relay, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	rl := &relay{
		cfg:    cfg,
		side:   side,
		level:  level,
		logOut: c.App.ErrWriter,
	}
	if rl.logOut == nil {
		rl.logOut = os.Stderr
	}

	mode, err := codec.ParseMode(cfg.Framing)
	if err != nil {
		return nil, err
	}
	if rl.codec, err = codec.New(mode, cfg.Separator); err != nil {
		return nil, err
	}

	comp, err := codec.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if rl.compressor, err = codec.NewCompressor(comp); err != nil {
		return nil, err
	}

	// Everything opened below is released if construction fails.
	var lg *ledger.Ledger
	built := false
	defer func() {
		if built {
			return
		}
		iox.DiscardClose(rl.compressor)
		if lg != nil {
			iox.DiscardClose(lg)
		}
	}()

	cipherName := "none"
	if cfg.Encryption.Enabled {
		kind, err := seal.ParseKind(cfg.Encryption.Cipher)
		if err != nil {
			return nil, err
		}
		rl.cipher, err = seal.New(kind, cfg.Encryption.Key, seal.Options{WorkFactor: cfg.Encryption.WorkFactor})
		if err != nil {
			return nil, fmt.Errorf("building cipher: %w", err)
		}
		cipherName = string(kind)
	}

	backend := "none"
	var opts []report.Option
	if cfg.Ledger.Path != "" {
		if lg, err = buildLedger(ctx, cfg.Ledger, side); err != nil {
			return nil, fmt.Errorf("opening ledger: %w", err)
		}
		backend = ledgerBackend(cfg.Ledger)
		opts = append(opts, report.WithLedger(lg))
	}
	if cfg.Notify.Type != "" {
		n, err := buildNotifier(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("configuring notifications: %w", err)
		}
		opts = append(opts, report.WithNotifier(n))
	}

	collector := metrics.NewCollector(string(side), string(mode), cipherName, backend)
	rl.reporter = report.New(rl.logger("report"), collector, opts...)
	built = true
	return rl, nil
}

// logger returns a JSON logger for component at the configured level.
func (r *relay) logger(component string) *log.Logger {
	return log.New(component, r.logOut, r.level)
}

// close flushes the final metrics and releases every sink.
func (r *relay) close() {
	if err := r.reporter.Close(context.Background()); err != nil {
		r.logger("report").Warn("closing reporter", map[string]any{"error": err})
	}
	r.compressor.Close()
}

func ledgerBackend(cfg config.LedgerConfig) string {
	if cfg.Backend == "" {
		return "fs"
	}
	return cfg.Backend
}

// buildLedger opens the delivery ledger. The host name labels every record.
func buildLedger(ctx context.Context, cfg config.LedgerConfig, side types.Side) (*ledger.Ledger, error) {
	node, _ := os.Hostname()
	lcfg := ledger.Config{Dataset: cfg.Dataset, Side: side, Node: node}

	switch ledgerBackend(cfg) {
	case "fs":
		return ledger.NewFS(lcfg, cfg.Path)
	case "s3":
		bucket, prefix := ledger.ParseS3Path(cfg.Path)
		return ledger.NewS3(ctx, lcfg, ledger.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported ledger backend %q (must be fs or s3)", cfg.Backend)
	}
}

// buildNotifier creates the delivery notifier selected by cfg.Type.
func buildNotifier(cfg config.NotifyConfig) (adapter.Adapter, error) {
	retries := webhook.DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}

	switch cfg.Type {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:         cfg.URL,
			Channel:     cfg.Channel,
			FailureList: cfg.FailureList,
			Timeout:     cfg.Timeout.Duration,
			Retries:     retries,
		})
	default:
		return nil, fmt.Errorf("unsupported notify type %q (must be webhook or redis)", cfg.Type)
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// configExit maps a configuration failure to its exit code.
func configExit(err error) error {
	return cli.Exit(err.Error(), exitConfig)
}

// failureExit maps a runtime failure to its exit code. A nil err stays nil.
func failureExit(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return cli.Exit(err.Error(), exitFailure)
}
