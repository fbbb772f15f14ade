// Package sender drives one source file at a time through the sender
// pipeline:
//
//	discovered -> validated -> parsed -> transformed -> (compressed)
//	  -> framed -> (encrypted) -> sent
//
// The first failing stage short-circuits the rest and the source file is
// moved to the error directory. Every Execute call ends in exactly one
// terminal outcome, sent or quarantined.
package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/courier/codec"
	"github.com/pithecene-io/courier/iox"
	"github.com/pithecene-io/courier/log"
	"github.com/pithecene-io/courier/report"
	"github.com/pithecene-io/courier/seal"
	"github.com/pithecene-io/courier/spool"
	"github.com/pithecene-io/courier/types"
	"github.com/pithecene-io/courier/xmlconv"
)

// DefaultBufferSize is the transmit chunk size when none is configured.
const DefaultBufferSize = 4096

// Config holds the sender's addressing and filesystem layout.
type Config struct {
	// SourceDir is the watched directory (to_send/).
	SourceDir string
	// SentDir receives source files after a successful transmit.
	SentDir string
	// ErrorDir receives source files after any stage failure.
	ErrorDir string
	// Address is the receiver's host:port.
	Address string
	// BufferSize bounds each socket write.
	BufferSize int
	// ConnectTimeout bounds the dial. Zero means no timeout.
	ConnectTimeout time.Duration
	// WriteTimeout bounds the whole transmit. Zero means no timeout.
	WriteTimeout time.Duration
	// QuarantineNaming selects how names are chosen in ErrorDir. It never
	// replaces an existing file, so NamingOverwrite is rejected.
	QuarantineNaming spool.Naming
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.SourceDir == "" || c.SentDir == "" || c.ErrorDir == "" {
		return errors.New("sender directories are required")
	}
	if c.Address == "" {
		return errors.New("receiver address is required")
	}
	if c.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %d", c.BufferSize)
	}
	if c.QuarantineNaming == spool.NamingOverwrite {
		return errors.New("quarantine naming must be plain or timestamped")
	}
	return nil
}

// Dialer opens connections to the receiver. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options carries the pipeline's collaborators.
type Options struct {
	// Codec frames messages. Required.
	Codec codec.Codec
	// Cipher encrypts the framed message. Nil disables encryption.
	Cipher seal.Cipher
	// Compressor compresses the XML payload. Nil disables compression.
	Compressor *codec.Compressor
	// Converter renders JSON as XML. Nil uses the default root element.
	Converter *xmlconv.Converter
	// Dialer opens connections. Nil uses a net.Dialer.
	Dialer Dialer
	// Logger receives stage logs. Nil discards them.
	Logger *log.Logger
	// Recorder receives every terminal outcome. Nil discards them.
	Recorder report.Recorder
	// Now is the clock used for timestamps. Nil uses time.Now.
	Now func() time.Time
}

// Pipeline executes the sender state machine for one file at a time.
// It is not safe for concurrent Execute calls on the same filename.
type Pipeline struct {
	cfg        Config
	codec      codec.Codec
	cipher     seal.Cipher
	compressor *codec.Compressor
	converter  *xmlconv.Converter
	dialer     Dialer
	logger     *log.Logger
	recorder   report.Recorder
	now        func() time.Time
}

// New creates a sender pipeline.
func New(cfg Config, opts Options) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Codec == nil {
		return nil, errors.New("sender requires a codec")
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.QuarantineNaming == "" {
		cfg.QuarantineNaming = spool.NamingTimestamped
	}

	p := &Pipeline{
		cfg:        cfg,
		codec:      opts.Codec,
		cipher:     opts.Cipher,
		compressor: opts.Compressor,
		converter:  opts.Converter,
		dialer:     opts.Dialer,
		logger:     opts.Logger,
		recorder:   opts.Recorder,
		now:        opts.Now,
	}
	if p.converter == nil {
		p.converter = xmlconv.NewConverter(xmlconv.DefaultRoot)
	}
	if p.dialer == nil {
		p.dialer = &net.Dialer{}
	}
	if p.logger == nil {
		p.logger = log.Nop()
	}
	if p.recorder == nil {
		p.recorder = report.Nop{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// pendingFile is the state owned by one Execute call.
type pendingFile struct {
	name       string
	path       string
	raw        []byte
	doc        any
	xml        []byte
	outputName string
	payload    []byte
	wire       []byte
	stage      types.Stage
}

// Execute drives filename (a name inside SourceDir) to a terminal outcome
// and reports it. Cancellation of ctx does not interrupt an attempt in
// progress; the file always ends up sent or quarantined.
func (p *Pipeline) Execute(ctx context.Context, filename string) *types.Delivery {
	ctx = context.WithoutCancel(ctx)

	d := &types.Delivery{
		Side:       types.SideSender,
		TransferID: uuid.NewString(),
		Filename:   filename,
		Stage:      types.StageDiscovered,
		Peer:       p.cfg.Address,
		StartedAt:  p.now(),
	}
	logger := p.logger.WithFile(filename).With("transfer_id", d.TransferID)
	logger.Info("Processing file.", nil)

	pf := &pendingFile{
		name:  filename,
		path:  filepath.Join(p.cfg.SourceDir, filename),
		stage: types.StageDiscovered,
	}

	err := p.run(ctx, pf, logger)
	d.OutputName = pf.outputName
	d.Digest = codec.Digest(pf.wire)

	if err != nil {
		d.Fail(err)
		logger.Error("Delivery failed.", map[string]any{
			"stage":      string(d.Stage),
			"error_kind": string(d.ErrorKind),
			"error":      err,
		})
		p.relocate(pf, d, p.cfg.ErrorDir, p.cfg.QuarantineNaming, logger)
	} else {
		d.Outcome = types.OutcomeSent
		d.Stage = types.StageSent
		d.Bytes = int64(len(pf.wire))
		p.relocate(pf, d, p.cfg.SentDir, spool.NamingPlain, logger)
	}

	d.Duration = p.now().Sub(d.StartedAt)
	p.recorder.Record(ctx, d)
	return d
}

// run executes the stages strictly in order, stopping at the first failure.
func (p *Pipeline) run(ctx context.Context, pf *pendingFile, logger *log.Logger) error {
	if err := p.validate(pf); err != nil {
		return err
	}
	if err := p.parse(pf); err != nil {
		return err
	}
	logger.Info("Json file loaded.", nil)

	if err := p.transform(pf); err != nil {
		return err
	}
	logger.Info("File converted to xml successfully.", nil)

	p.compress(pf)

	if err := p.frame(pf); err != nil {
		return err
	}
	logger.Info("Metadata added.", map[string]any{"output_name": pf.outputName})

	if p.cipher != nil {
		if err := p.encrypt(pf); err != nil {
			return err
		}
		logger.Info("File encrypted successfully.", nil)
	}

	return p.transmit(ctx, pf, logger)
}

// validate succeeds iff the source path resolves to a regular file.
func (p *Pipeline) validate(pf *pendingFile) error {
	info, err := os.Stat(pf.path)
	if err != nil {
		return types.NewStageError(types.KindNotAFile, types.StageValidated, err)
	}
	if !info.Mode().IsRegular() {
		return types.NewStageError(types.KindNotAFile, types.StageValidated,
			fmt.Errorf("path %q is not a file", pf.path))
	}
	pf.stage = types.StageValidated
	return nil
}

// parse loads and decodes the source file.
func (p *Pipeline) parse(pf *pendingFile) error {
	raw, err := os.ReadFile(pf.path)
	if err != nil {
		return types.NewStageError(types.KindNotAFile, types.StageParsed, err)
	}
	doc, err := xmlconv.Parse(raw)
	if err != nil {
		return types.NewStageError(types.KindMalformedJSON, types.StageParsed, err)
	}
	pf.raw = raw
	pf.doc = doc
	pf.stage = types.StageParsed
	return nil
}

// transform renders the parsed document as XML and derives the output name.
func (p *Pipeline) transform(pf *pendingFile) error {
	out, err := p.converter.Convert(pf.doc)
	if err != nil {
		return types.NewStageError(types.KindTransform, types.StageTransformed, err)
	}
	pf.xml = out
	pf.payload = out
	pf.outputName = DeriveOutputName(pf.name)
	pf.stage = types.StageTransformed
	return nil
}

// compress is a no-op unless a compressor is configured.
func (p *Pipeline) compress(pf *pendingFile) {
	if !p.compressor.Enabled() {
		return
	}
	pf.payload = p.compressor.Compress(pf.payload)
	pf.stage = types.StageCompressed
}

// frame encodes the output name and payload as one wire message.
func (p *Pipeline) frame(pf *pendingFile) error {
	wire, err := p.codec.Encode(codec.Message{Filename: pf.outputName, Payload: pf.payload})
	if err != nil {
		return types.NewStageError(types.KindMetadata, types.StageFramed, err)
	}
	pf.wire = wire
	pf.stage = types.StageFramed
	return nil
}

// encrypt seals the whole framed message.
func (p *Pipeline) encrypt(pf *pendingFile) error {
	blob, err := p.cipher.Encrypt(pf.wire)
	if err != nil {
		return types.NewStageError(types.KindEncryption, types.StageEncrypted, err)
	}
	pf.wire = blob
	pf.stage = types.StageEncrypted
	return nil
}

// transmit opens a fresh connection, writes the wire bytes in bounded
// chunks and half-closes to mark end of message. The connection is
// closed on every path.
func (p *Pipeline) transmit(ctx context.Context, pf *pendingFile, logger *log.Logger) error {
	logger.Info(fmt.Sprintf("Connecting to %s", p.cfg.Address), nil)

	dialCtx := ctx
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}
	conn, err := p.dialer.DialContext(dialCtx, "tcp", p.cfg.Address)
	if err != nil {
		return types.NewStageError(types.KindConnectFailed, types.StageSent, err)
	}
	defer iox.DiscardClose(conn)
	logger.Info("Connected.", nil)

	if p.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout)); err != nil {
			return types.NewStageError(types.KindSendFailed, types.StageSent, err)
		}
	}

	logger.Info(fmt.Sprintf("Sending file: %q", pf.outputName), map[string]any{"bytes": len(pf.wire)})
	if _, err := iox.WriteChunks(conn, pf.wire, p.cfg.BufferSize); err != nil {
		return types.NewStageError(types.KindSendFailed, types.StageSent, err)
	}
	if err := iox.CloseWrite(conn); err != nil {
		return types.NewStageError(types.KindSendFailed, types.StageSent, err)
	}
	pf.stage = types.StageSent
	logger.Info("File sent.", nil)
	return nil
}

// relocate moves the original source file into dir. Failures are logged
// and recorded on d but never retried.
func (p *Pipeline) relocate(pf *pendingFile, d *types.Delivery, dir string, naming spool.Naming, logger *log.Logger) {
	dst := spool.Resolve(dir, pf.name, naming, p.now())
	if err := spool.Move(pf.path, dst); err != nil {
		d.RelocateError = err.Error()
		logger.Error("Could not move file.", map[string]any{
			"destination": dst,
			"error":       err,
		})
		return
	}
	d.Location = dst
	logger.Info(fmt.Sprintf("File moved to folder %q", dir), map[string]any{"location": dst})
}
