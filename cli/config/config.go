package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pithecene-io/courier/codec"
	"github.com/pithecene-io/courier/seal"
	"github.com/pithecene-io/courier/spool"
)

// DefaultMountPath is the data root when neither the file nor MOUNT_PATH
// sets one.
const DefaultMountPath = "/var/app/data"

// Config represents a courier.yaml configuration file merged with the
// environment. One Config is resolved at startup and passed to both
// pipelines; CLI flags override it.
type Config struct {
	MountPath         string           `yaml:"mount_path"`
	Server            ServerConfig     `yaml:"server"`
	BufferSize        int              `yaml:"buffer_size"`
	Separator         string           `yaml:"separator"`
	Framing           string           `yaml:"framing"`
	Compression       string           `yaml:"compression"`
	Encryption        EncryptionConfig `yaml:"encryption"`
	QuarantineNaming  string           `yaml:"quarantine_naming"`
	ReceivedCollision string           `yaml:"received_collision"`
	Timeouts          TimeoutsConfig   `yaml:"timeouts"`
	PollInterval      Duration         `yaml:"poll_interval"`
	Watch             bool             `yaml:"watch"`
	MaxMessageSize    int64            `yaml:"max_message_size"`
	Ledger            LedgerConfig     `yaml:"ledger"`
	Notify            NotifyConfig     `yaml:"notify"`
	LogLevel          string           `yaml:"log_level"`
}

// ServerConfig is the receiver's bind address and the sender's target.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EncryptionConfig selects the shared-key cipher.
type EncryptionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cipher     string `yaml:"cipher"`
	Key        string `yaml:"key"`
	WorkFactor int    `yaml:"work_factor,omitempty"`
}

// TimeoutsConfig bounds socket operations. Zero means no timeout.
type TimeoutsConfig struct {
	Connect Duration `yaml:"connect"`
	Read    Duration `yaml:"read"`
	Write   Duration `yaml:"write"`
}

// LedgerConfig holds delivery ledger settings. An empty Path disables
// the ledger.
type LedgerConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// NotifyConfig holds delivery notification settings. An empty Type
// disables notifications.
type NotifyConfig struct {
	Type        string            `yaml:"type"`
	URL         string            `yaml:"url"`
	Channel     string            `yaml:"channel,omitempty"`
	FailureList string            `yaml:"failure_list,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Timeout     Duration          `yaml:"timeout,omitempty"`
	Retries     *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns a Config carrying every built-in default. Host and
// port have no default and must come from the file, the environment or
// flags.
func Default() *Config {
	return &Config{
		MountPath:         DefaultMountPath,
		BufferSize:        4096,
		Separator:         codec.DefaultSeparator,
		Framing:           string(codec.ModeSeparator),
		Compression:       string(codec.CompressionNone),
		Encryption:        EncryptionConfig{Cipher: string(seal.KindXChaCha)},
		QuarantineNaming:  string(spool.NamingTimestamped),
		ReceivedCollision: string(spool.NamingOverwrite),
		PollInterval:      Duration{time.Second},
		LogLevel:          "info",
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides c with the relay's environment variables:
// SERVER_HOST, SERVER_PORT, BUFFER_SIZE, SEPARATOR, PRIVATE_KEY,
// MOUNT_PATH and LOG_LEVEL. A non-empty PRIVATE_KEY also enables
// encryption.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup("SERVER_HOST"); ok && v != "" {
		c.Server.Host = v
	}
	if v, ok := lookup("SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("SERVER_PORT: invalid integer %q", v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("BUFFER_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BUFFER_SIZE: invalid integer %q", v)
		}
		c.BufferSize = n
	}
	if v, ok := lookup("SEPARATOR"); ok && v != "" {
		c.Separator = v
	}
	if v, ok := lookup("PRIVATE_KEY"); ok && v != "" {
		c.Encryption.Key = v
		c.Encryption.Enabled = true
	}
	if v, ok := lookup("MOUNT_PATH"); ok && v != "" {
		c.MountPath = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Layout returns the well-known directories under MountPath.
func (c *Config) Layout() spool.Layout {
	return spool.NewLayout(c.MountPath)
}

// Validate reports every problem with c. It is called once after the
// file, the environment and flags have been merged.
func (c *Config) Validate() error {
	var errs []error
	if c.MountPath == "" {
		errs = append(errs, errors.New("mount path is required"))
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		errs = append(errs, errors.New("server host is required (SERVER_HOST)"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer size must be > 0, got %d", c.BufferSize))
	}
	if c.MaxMessageSize < 0 {
		errs = append(errs, fmt.Errorf("max message size must not be negative, got %d", c.MaxMessageSize))
	}

	mode, err := codec.ParseMode(c.Framing)
	if err != nil {
		errs = append(errs, err)
	}
	if mode == codec.ModeSeparator && c.Separator == "" {
		errs = append(errs, errors.New("separator must not be empty"))
	}
	if _, err := codec.ParseCompression(c.Compression); err != nil {
		errs = append(errs, err)
	}
	quarantine, err := spool.ParseNaming(c.QuarantineNaming, spool.NamingTimestamped)
	if err != nil {
		errs = append(errs, fmt.Errorf("quarantine_naming: %w", err))
	} else if quarantine == spool.NamingOverwrite {
		errs = append(errs, errors.New("quarantine_naming must be plain or timestamped"))
	}
	collision, err := spool.ParseNaming(c.ReceivedCollision, spool.NamingOverwrite)
	if err != nil {
		errs = append(errs, fmt.Errorf("received_collision: %w", err))
	} else if collision == spool.NamingPlain {
		errs = append(errs, errors.New("received_collision must be overwrite or timestamped"))
	}

	if c.Encryption.Enabled {
		if _, err := seal.ParseKind(c.Encryption.Cipher); err != nil {
			errs = append(errs, err)
		}
		if c.Encryption.Key == "" {
			errs = append(errs, errors.New("encryption is enabled but no key is set (PRIVATE_KEY)"))
		}
	}

	for _, dur := range []struct {
		name string
		d    time.Duration
	}{
		{"timeouts.connect", c.Timeouts.Connect.Duration},
		{"timeouts.read", c.Timeouts.Read.Duration},
		{"timeouts.write", c.Timeouts.Write.Duration},
		{"poll_interval", c.PollInterval.Duration},
	} {
		if dur.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", dur.name, dur.d))
		}
	}

	if c.Ledger.Path != "" {
		switch c.Ledger.Backend {
		case "", "fs", "s3":
		default:
			errs = append(errs, fmt.Errorf("ledger.backend must be fs or s3, got %q", c.Ledger.Backend))
		}
	}
	switch c.Notify.Type {
	case "":
	case "webhook", "redis":
		if c.Notify.URL == "" {
			errs = append(errs, fmt.Errorf("notify.url is required for %s notifications", c.Notify.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.type must be webhook or redis, got %q", c.Notify.Type))
	}
	if c.Notify.Retries != nil && *c.Notify.Retries < 0 {
		errs = append(errs, errors.New("notify.retries must not be negative"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy of c that is safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Encryption.Key != "" {
		out.Encryption.Key = "<redacted>"
	}
	if len(out.Notify.Headers) > 0 {
		h := make(map[string]string, len(out.Notify.Headers))
		for k := range out.Notify.Headers {
			h[k] = "<redacted>"
		}
		out.Notify.Headers = h
	}
	return out
}
