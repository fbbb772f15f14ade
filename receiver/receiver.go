// Package receiver accepts one connection at a time and drives each
// through the receive pipeline:
//
//	accepting -> buffering -> (decrypting) -> extracting_metadata
//	  -> (decompressing) -> writing -> persisted
//
// One connection carries exactly one message, terminated by the peer
// closing its write side. Any failure writes the raw bytes that arrived
// to the error directory. Per-connection failures never stop the server.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/courier/codec"
	"github.com/pithecene-io/courier/iox"
	"github.com/pithecene-io/courier/log"
	"github.com/pithecene-io/courier/metrics"
	"github.com/pithecene-io/courier/report"
	"github.com/pithecene-io/courier/seal"
	"github.com/pithecene-io/courier/spool"
	"github.com/pithecene-io/courier/types"
)

// DefaultBufferSize is the read chunk size when none is configured.
const DefaultBufferSize = 4096

// maxAcceptDelay caps the backoff after a failed Accept.
const maxAcceptDelay = time.Second

// Config holds the receiver's filesystem layout and limits.
type Config struct {
	// ReceivedDir receives persisted payloads.
	ReceivedDir string
	// ErrorDir receives raw bytes of failed connections.
	ErrorDir string
	// BufferSize is the size of each socket read.
	BufferSize int
	// ReadTimeout bounds the whole read of one connection. Zero means
	// no timeout.
	ReadTimeout time.Duration
	// MaxMessageSize caps the bytes buffered per connection. Zero means
	// unlimited.
	MaxMessageSize int64
	// Collision selects how an existing file in ReceivedDir is handled.
	Collision spool.Naming
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.ReceivedDir == "" || c.ErrorDir == "" {
		return errors.New("receiver directories are required")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %d", c.BufferSize)
	}
	if c.MaxMessageSize < 0 {
		return fmt.Errorf("max message size must not be negative, got %d", c.MaxMessageSize)
	}
	return nil
}

// Options carries the server's collaborators.
type Options struct {
	// Codec decodes messages. Required.
	Codec codec.Codec
	// Cipher decrypts the wire bytes. Nil disables decryption.
	Cipher seal.Cipher
	// Compressor decompresses payloads. Nil disables decompression.
	Compressor *codec.Compressor
	// Logger receives stage logs. Nil discards them.
	Logger *log.Logger
	// Recorder receives every terminal outcome. Nil discards them.
	Recorder report.Recorder
	// Metrics counts accepted connections. May be nil.
	Metrics *metrics.Collector
	// Now is the clock used for timestamps. Nil uses time.Now.
	Now func() time.Time
}

// Server runs the accept loop.
type Server struct {
	cfg        Config
	codec      codec.Codec
	cipher     seal.Cipher
	compressor *codec.Compressor
	logger     *log.Logger
	recorder   report.Recorder
	metrics    *metrics.Collector
	now        func() time.Time
}

// New creates a receiver server.
func New(cfg Config, opts Options) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Codec == nil {
		return nil, errors.New("receiver requires a codec")
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Collision == "" {
		cfg.Collision = spool.NamingOverwrite
	}

	s := &Server{
		cfg:        cfg,
		codec:      opts.Codec,
		cipher:     opts.Cipher,
		compressor: opts.Compressor,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	if s.recorder == nil {
		s.recorder = report.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// ListenAndServe binds addr and serves until ctx is done. A bind failure
// is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln one at a time until ctx is done, then
// closes ln and returns nil. A connection in progress is finished first.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer iox.DiscardClose(ln)

	stop := context.AfterFunc(ctx, func() { iox.DiscardClose(ln) })
	defer stop()

	s.logger.Info(fmt.Sprintf("Listening on %s", ln.Addr()), nil)

	var delay time.Duration
	for {
		s.logger.Info("Waiting for xml files...", nil)
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = nextDelay(delay)
			s.logger.Warn("accept failed", map[string]any{
				"error":    err,
				"retry_in": delay.String(),
			})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0
		s.metrics.IncConnectionsAccepted()
		s.Handle(ctx, conn)
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}

// session is the state owned by one Handle call.
type session struct {
	raw      []byte
	wire     []byte
	name     string
	payload  []byte
	location string
}

// Handle reads one message from conn, persists or quarantines it, reports
// the outcome and closes conn. Cancellation of ctx does not interrupt it.
func (s *Server) Handle(ctx context.Context, conn net.Conn) *types.Delivery {
	ctx = context.WithoutCancel(ctx)
	defer iox.DiscardClose(conn)

	d := &types.Delivery{
		Side:       types.SideReceiver,
		TransferID: uuid.NewString(),
		Stage:      types.StageAccepting,
		Peer:       conn.RemoteAddr().String(),
		StartedAt:  s.now(),
	}
	logger := s.logger.With("transfer_id", d.TransferID).With("peer", d.Peer)
	logger.Info(fmt.Sprintf("Connection established with %s.", d.Peer), nil)

	ss := &session{}
	err := s.run(conn, ss, logger)
	d.Filename = ss.name
	d.Bytes = int64(len(ss.raw))
	d.Digest = codec.Digest(ss.raw)

	if err != nil {
		d.Fail(err)
		logger.Error("Unexpected error.", map[string]any{
			"stage":      string(d.Stage),
			"error_kind": string(d.ErrorKind),
			"error":      err,
		})
		s.quarantine(ss, d, logger)
	} else {
		d.Outcome = types.OutcomePersisted
		d.Stage = types.StagePersisted
		d.Location = ss.location
		d.OutputName = filepath.Base(ss.location)
		logger.Info("File received.", map[string]any{"location": d.Location})
	}

	d.Duration = s.now().Sub(d.StartedAt)
	s.recorder.Record(ctx, d)
	return d
}

// run executes the receive stages in order, stopping at the first failure.
// On success the payload has been written to ReceivedDir.
func (s *Server) run(conn net.Conn, ss *session, logger *log.Logger) error {
	if err := s.buffer(conn, ss); err != nil {
		return err
	}
	ss.wire = ss.raw

	if s.cipher != nil {
		plain, err := s.cipher.Decrypt(ss.wire)
		if err != nil {
			return types.NewStageError(types.KindDecryption, types.StageDecrypting, err)
		}
		ss.wire = plain
	}

	msg, err := s.codec.Decode(ss.wire)
	if err != nil {
		return types.NewStageError(types.KindMetadata, types.StageExtracting, err)
	}
	if !spool.IsBaseName(msg.Filename) {
		return types.NewStageError(types.KindMetadata, types.StageExtracting,
			fmt.Errorf("filename %q is not a base name", msg.Filename))
	}
	ss.name = msg.Filename
	ss.payload = msg.Payload
	logger.Info(fmt.Sprintf("Receiving file %s", ss.name), nil)

	if s.compressor.Enabled() {
		out, err := s.compressor.Decompress(ss.payload)
		if err != nil {
			return types.NewStageError(types.KindCompression, types.StageDecoding, err)
		}
		ss.payload = out
	}

	logger.Info("Processing file.", map[string]any{"file": ss.name})
	return s.persist(ss)
}

// persist writes the payload under ReceivedDir using the collision policy.
func (s *Server) persist(ss *session) error {
	dst := spool.Resolve(s.cfg.ReceivedDir, ss.name, s.cfg.Collision, s.now())
	if err := spool.WriteAtomic(dst, ss.payload); err != nil {
		return types.NewStageError(types.KindPersist, types.StageWriting, err)
	}
	ss.location = dst
	return nil
}

// quarantine writes the raw bytes that arrived to ErrorDir under the
// best-known filename and a timestamp. Failures are logged only.
func (s *Server) quarantine(ss *session, d *types.Delivery, logger *log.Logger) {
	name := ss.name
	if name == "" {
		name = spool.UnknownName
	}
	dst := spool.Resolve(s.cfg.ErrorDir, name, spool.NamingTimestamped, s.now())
	if err := spool.WriteAtomic(dst, ss.raw); err != nil {
		d.RelocateError = err.Error()
		logger.Error("Could not write quarantine file.", map[string]any{
			"destination": dst,
			"error":       err,
		})
		return
	}
	d.Location = dst
	d.OutputName = filepath.Base(dst)
	logger.Info(fmt.Sprintf("File moved to folder %q", s.cfg.ErrorDir), map[string]any{"location": dst})
}

// buffer reads the whole connection into memory.
func (s *Server) buffer(conn net.Conn, ss *session) error {
	if s.cfg.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return types.NewStageError(types.KindReceiveFailed, types.StageBuffering, err)
		}
	}
	raw, err := iox.ReadAllChunks(conn, s.cfg.BufferSize, s.cfg.MaxMessageSize)
	ss.raw = raw
	if err != nil {
		return types.NewStageError(types.KindReceiveFailed, types.StageBuffering, err)
	}
	return nil
}
