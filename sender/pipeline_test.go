package sender

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/courier/codec"
	"github.com/pithecene-io/courier/iox"
	"github.com/pithecene-io/courier/seal"
	"github.com/pithecene-io/courier/spool"
	"github.com/pithecene-io/courier/types"
	"github.com/pithecene-io/courier/watcher"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC)

func clock() time.Time { return fixedNow }

// testEnv is a sender layout in a temp dir plus a one-shot TCP receiver.
type testEnv struct {
	layout spool.Layout
	addr   string
	got    chan []byte
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	layout := spool.NewLayout(t.TempDir())
	if err := spool.Ensure(layout.SenderDirs()...); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(iox.CloseFunc(ln))

	got := make(chan []byte, 8)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			data, _ := io.ReadAll(conn)
			iox.DiscardClose(conn)
			got <- data
		}
	}()

	return &testEnv{layout: layout, addr: ln.Addr().String(), got: got}
}

func (e *testEnv) config() Config {
	return Config{
		SourceDir:        e.layout.ToSend,
		SentDir:          e.layout.Sent,
		ErrorDir:         e.layout.SentError,
		Address:          e.addr,
		BufferSize:       16,
		QuarantineNaming: spool.NamingTimestamped,
	}
}

func (e *testEnv) put(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(e.layout.ToSend, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) receive(t *testing.T) []byte {
	t.Helper()
	select {
	case b := <-e.got:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for receiver")
		return nil
	}
}

func (e *testEnv) assertNothingReceived(t *testing.T) {
	t.Helper()
	select {
	case b := <-e.got:
		t.Fatalf("unexpected transmission of %d bytes", len(b))
	case <-time.After(50 * time.Millisecond):
	}
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

// countingDialer counts dials and delegates to a net.Dialer unless err is set.
type countingDialer struct {
	dials atomic.Int32
	err   error
	wrap  func(net.Conn) net.Conn
}

func (d *countingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, network, address)
	if err != nil || d.wrap == nil {
		return conn, err
	}
	return d.wrap(conn), nil
}

// recordingConn records the size of every Write and whether Close ran.
type recordingConn struct {
	net.Conn
	mu     sync.Mutex
	writes []int
	closed bool
}

func (c *recordingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.writes = append(c.writes, len(p))
	c.mu.Unlock()
	return c.Conn.Write(p)
}

func (c *recordingConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Conn.Close()
}

type recorderFunc func(*types.Delivery)

func (f recorderFunc) Record(_ context.Context, d *types.Delivery) { f(d) }

func newPipeline(t *testing.T, cfg Config, opts Options) *Pipeline {
	t.Helper()
	if opts.Codec == nil {
		c, err := codec.NewSeparatorCodec(codec.DefaultSeparator)
		if err != nil {
			t.Fatal(err)
		}
		opts.Codec = c
	}
	if opts.Now == nil {
		opts.Now = clock
	}
	p, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestExecute_SendsPlainMessage(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "orders.json", `{"id": 1, "items": ["a", "b"]}`)

	var recorded []*types.Delivery
	p := newPipeline(t, env.config(), Options{
		Recorder: recorderFunc(func(d *types.Delivery) { recorded = append(recorded, d) }),
	})

	d := p.Execute(t.Context(), "orders.json")

	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s: %s), want sent", d.Outcome, d.ErrorKind, d.Error)
	}
	wire := env.receive(t)
	if !bytes.HasPrefix(wire, []byte("orders.xml||<?xml")) {
		t.Errorf("wire = %q, want orders.xml||<?xml...", wire)
	}
	if !bytes.Contains(wire, []byte("<id>1</id>")) {
		t.Errorf("wire missing converted body: %q", wire)
	}
	if d.Bytes != int64(len(wire)) {
		t.Errorf("Bytes = %d, want %d", d.Bytes, len(wire))
	}
	if d.Digest != codec.Digest(wire) {
		t.Errorf("Digest = %q, want digest of wire bytes", d.Digest)
	}
	if d.OutputName != "orders.xml" {
		t.Errorf("OutputName = %q, want orders.xml", d.OutputName)
	}

	if exists(t, filepath.Join(env.layout.ToSend, "orders.json")) {
		t.Error("source file still in to_send")
	}
	archived, err := os.ReadFile(filepath.Join(env.layout.Sent, "orders.json"))
	if err != nil {
		t.Fatalf("source file not archived in sent under its original name: %v", err)
	}
	if string(archived) != `{"id": 1, "items": ["a", "b"]}` {
		t.Errorf("archived content = %q, want original bytes", archived)
	}
	if d.Location != filepath.Join(env.layout.Sent, "orders.json") {
		t.Errorf("Location = %q", d.Location)
	}
	if len(recorded) != 1 || recorded[0] != d {
		t.Errorf("recorder called %d times, want exactly once with the result", len(recorded))
	}
}

func TestExecute_EncryptsWholeFrame(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "orders.json", `{"id": 1}`)

	key, err := seal.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	cipher, err := seal.New(seal.KindXChaCha, key, seal.Options{})
	if err != nil {
		t.Fatal(err)
	}

	p := newPipeline(t, env.config(), Options{Cipher: cipher})
	d := p.Execute(t.Context(), "orders.json")
	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s), want sent", d.Outcome, d.Error)
	}

	wire := env.receive(t)
	if bytes.Contains(wire, []byte("||")) || bytes.Contains(wire, []byte("orders.xml")) {
		t.Error("separator or filename visible in cleartext on the wire")
	}
	plain, err := cipher.Decrypt(wire)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.HasPrefix(plain, []byte("orders.xml||")) {
		t.Errorf("decrypted frame = %q", plain)
	}
}

func TestExecute_LengthPrefixedWithCompression(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "big.json", `{"rows": [`+strings.Repeat(`{"v": "repeat"},`, 200)+`{"v": "end"}]}`)

	comp, err := codec.NewCompressor(codec.CompressionZstd)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = comp.Close() })

	lp := codec.NewLengthPrefixedCodec()
	p := newPipeline(t, env.config(), Options{Codec: lp, Compressor: comp})
	if d := p.Execute(t.Context(), "big.json"); d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s), want sent", d.Outcome, d.Error)
	}

	msg, err := lp.Decode(env.receive(t))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if msg.Filename != "big.xml" {
		t.Errorf("Filename = %q, want big.xml", msg.Filename)
	}
	out, err := comp.Decompress(msg.Payload)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Contains(out, []byte("<v>end</v>")) {
		t.Error("decompressed payload missing content")
	}
}

func TestExecute_WriteTimeoutIgnoresRecordingClock(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "orders.json", `{"id": 1}`)

	cfg := env.config()
	cfg.WriteTimeout = 5 * time.Second
	p := newPipeline(t, cfg, Options{})

	d := p.Execute(t.Context(), "orders.json")
	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s: %s), want sent", d.Outcome, d.ErrorKind, d.Error)
	}
	env.receive(t)
	if !d.StartedAt.Equal(fixedNow) {
		t.Errorf("StartedAt = %v, want recording clock %v", d.StartedAt, fixedNow)
	}
}

func TestExecute_MalformedJSONNeverDials(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "bad.json", `{not valid}`)

	dialer := &countingDialer{}
	p := newPipeline(t, env.config(), Options{Dialer: dialer})
	d := p.Execute(t.Context(), "bad.json")

	if d.Outcome != types.OutcomeQuarantined {
		t.Fatalf("Outcome = %s, want quarantined", d.Outcome)
	}
	if d.ErrorKind != types.KindMalformedJSON {
		t.Errorf("ErrorKind = %s, want %s", d.ErrorKind, types.KindMalformedJSON)
	}
	if d.Stage != types.StageParsed {
		t.Errorf("Stage = %s, want %s", d.Stage, types.StageParsed)
	}
	if got := dialer.dials.Load(); got != 0 {
		t.Errorf("dials = %d, want 0", got)
	}
	env.assertNothingReceived(t)

	want := filepath.Join(env.layout.SentError, "bad.json_20240309_140507.123456")
	quarantined, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("quarantined file not at %s: %v", want, err)
	}
	if string(quarantined) != `{not valid}` {
		t.Errorf("quarantined content = %q, want original bytes", quarantined)
	}
	if exists(t, filepath.Join(env.layout.ToSend, "bad.json")) {
		t.Error("source file still in to_send")
	}
}

func TestExecute_NotAFile(t *testing.T) {
	env := newTestEnv(t)
	if err := os.Mkdir(filepath.Join(env.layout.ToSend, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	dialer := &countingDialer{}
	p := newPipeline(t, env.config(), Options{Dialer: dialer})
	d := p.Execute(t.Context(), "subdir")

	if d.ErrorKind != types.KindNotAFile {
		t.Errorf("ErrorKind = %s, want %s", d.ErrorKind, types.KindNotAFile)
	}
	if d.Stage != types.StageValidated {
		t.Errorf("Stage = %s, want %s", d.Stage, types.StageValidated)
	}
	if dialer.dials.Load() != 0 {
		t.Error("validation failure must not dial")
	}
	if !exists(t, filepath.Join(env.layout.SentError, "subdir_20240309_140507.123456")) {
		t.Error("directory not moved to sent_error")
	}
}

func TestExecute_VanishedFile(t *testing.T) {
	env := newTestEnv(t)
	p := newPipeline(t, env.config(), Options{})

	d := p.Execute(t.Context(), "gone.json")

	if d.Outcome != types.OutcomeQuarantined || d.ErrorKind != types.KindNotAFile {
		t.Errorf("got %s/%s, want quarantined/not_a_file", d.Outcome, d.ErrorKind)
	}
	if d.RelocateError == "" {
		t.Error("RelocateError should record the failed move")
	}
	if d.Location != "" {
		t.Errorf("Location = %q, want empty", d.Location)
	}
}

func TestExecute_ConnectFailed(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "orders.json", `{"id": 1}`)

	dialer := &countingDialer{err: errors.New("connection refused")}
	cfg := env.config()
	cfg.QuarantineNaming = spool.NamingPlain
	p := newPipeline(t, cfg, Options{Dialer: dialer})
	d := p.Execute(t.Context(), "orders.json")

	if d.ErrorKind != types.KindConnectFailed {
		t.Errorf("ErrorKind = %s, want %s", d.ErrorKind, types.KindConnectFailed)
	}
	if dialer.dials.Load() != 1 {
		t.Errorf("dials = %d, want 1 (no retry)", dialer.dials.Load())
	}
	if !exists(t, filepath.Join(env.layout.SentError, "orders.json")) {
		t.Error("plain naming should keep the original name when free")
	}
	if d.OutputName != "orders.xml" {
		t.Errorf("OutputName = %q, want orders.xml", d.OutputName)
	}
}

func TestExecute_NameContainsSeparator(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "a||b.json", `{"id": 1}`)

	dialer := &countingDialer{}
	p := newPipeline(t, env.config(), Options{Dialer: dialer})
	d := p.Execute(t.Context(), "a||b.json")

	if d.ErrorKind != types.KindMetadata {
		t.Errorf("ErrorKind = %s, want %s", d.ErrorKind, types.KindMetadata)
	}
	if d.Stage != types.StageFramed {
		t.Errorf("Stage = %s, want %s", d.Stage, types.StageFramed)
	}
	if dialer.dials.Load() != 0 {
		t.Error("framing failure must not dial")
	}
}

func TestExecute_BoundedWritesAndClose(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "orders.json", `{"description": "`+strings.Repeat("x", 500)+`"}`)

	var conn *recordingConn
	dialer := &countingDialer{wrap: func(c net.Conn) net.Conn {
		conn = &recordingConn{Conn: c}
		return conn
	}}
	cfg := env.config()
	cfg.BufferSize = 64
	p := newPipeline(t, cfg, Options{Dialer: dialer})

	d := p.Execute(t.Context(), "orders.json")
	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s), want sent", d.Outcome, d.Error)
	}
	wire := env.receive(t)

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.closed {
		t.Error("connection not closed")
	}
	total := 0
	for _, n := range conn.writes {
		if n > 64 {
			t.Errorf("write of %d bytes exceeds buffer size 64", n)
		}
		total += n
	}
	if total != len(wire) {
		t.Errorf("wrote %d bytes, receiver got %d", total, len(wire))
	}
	if len(conn.writes) < 2 {
		t.Errorf("expected multiple chunked writes, got %d", len(conn.writes))
	}
}

func TestExecute_SentCollisionKeepsBothFiles(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(filepath.Join(env.layout.Sent, "orders.json"), []byte("earlier"), 0o644); err != nil {
		t.Fatal(err)
	}
	env.put(t, "orders.json", `{"id": 2}`)

	p := newPipeline(t, env.config(), Options{})
	d := p.Execute(t.Context(), "orders.json")
	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s, want sent", d.Outcome)
	}
	env.receive(t)

	earlier, _ := os.ReadFile(filepath.Join(env.layout.Sent, "orders.json"))
	if string(earlier) != "earlier" {
		t.Error("archived file was overwritten")
	}
	if !exists(t, filepath.Join(env.layout.Sent, "orders.json_20240309_140507.123456")) {
		t.Error("colliding archive should get a timestamp suffix")
	}
}

func TestExecute_CanceledContextStillCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "orders.json", `{"id": 1}`)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	p := newPipeline(t, env.config(), Options{})
	d := p.Execute(ctx, "orders.json")
	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s), want sent", d.Outcome, d.Error)
	}
	env.receive(t)
}

func TestNew_Validation(t *testing.T) {
	sep, _ := codec.NewSeparatorCodec("||")
	valid := Config{SourceDir: "a", SentDir: "b", ErrorDir: "c", Address: "localhost:1"}

	tests := []struct {
		name string
		cfg  Config
		opts Options
	}{
		{"missing dirs", Config{Address: "localhost:1"}, Options{Codec: sep}},
		{"missing address", Config{SourceDir: "a", SentDir: "b", ErrorDir: "c"}, Options{Codec: sep}},
		{"negative buffer", Config{SourceDir: "a", SentDir: "b", ErrorDir: "c", Address: "x:1", BufferSize: -1}, Options{Codec: sep}},
		{"missing codec", valid, Options{}},
		{"overwriting quarantine", Config{SourceDir: "a", SentDir: "b", ErrorDir: "c", Address: "x:1", QuarantineNaming: spool.NamingOverwrite}, Options{Codec: sep}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, tt.opts); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	p, err := New(valid, Options{Codec: sep})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.cfg.BufferSize != DefaultBufferSize {
		t.Errorf("BufferSize = %d, want default %d", p.cfg.BufferSize, DefaultBufferSize)
	}
}

func TestDeriveOutputName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a.json", "a.xml"},
		{"a.b.json", "a.b.xml"},
		{"a.json.json", "a.json.xml"},
		{"a.JSON", "a.JSON"},
		{"noext", "noext"},
		{"a.jsonx", "a.jsonx"},
		{"json", "json"},
	}
	for _, tt := range tests {
		if got := DeriveOutputName(tt.in); got != tt.want {
			t.Errorf("DeriveOutputName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExecute_EscapesSpecialCharacters(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "note.json", `{"note": "fish & chips < \"mains\" > 'sides'"}`)

	p := newPipeline(t, env.config(), Options{})
	d := p.Execute(t.Context(), "note.json")
	if d.Outcome != types.OutcomeSent {
		t.Fatalf("Outcome = %s (%s: %s), want sent", d.Outcome, d.ErrorKind, d.Error)
	}

	sep, err := codec.NewSeparatorCodec(codec.DefaultSeparator)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := sep.Decode(env.receive(t))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var doc struct {
		Note string `xml:"note"`
	}
	if err := xml.Unmarshal(msg.Payload, &doc); err != nil {
		t.Fatalf("payload is not valid XML: %v\n%s", err, msg.Payload)
	}
	if want := `fish & chips < "mains" > 'sides'`; doc.Note != want {
		t.Errorf("note = %q, want %q", doc.Note, want)
	}
}

// hookDialer calls before with the 1-based dial count, then dials.
type hookDialer struct {
	n      int
	before func(n int)
}

func (d *hookDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.n++
	d.before(d.n)
	var nd net.Dialer
	return nd.DialContext(ctx, network, address)
}

func TestExecute_ScanRelocatesEachFileBeforeTheNext(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "a.json", `{"id": 1}`)
	env.put(t, "b.json", `{not valid}`)
	env.put(t, "c.json", `{"id": 3}`)

	relocated := func(name string) bool {
		if exists(t, filepath.Join(env.layout.Sent, name)) {
			return true
		}
		matches, _ := filepath.Glob(filepath.Join(env.layout.SentError, name+"_*"))
		return len(matches) > 0
	}

	dialer := &hookDialer{before: func(n int) {
		// The second dial belongs to c.json, after its transform.
		if n != 2 {
			return
		}
		for _, prev := range []string{"a.json", "b.json"} {
			if !relocated(prev) {
				t.Errorf("%s not relocated when c.json was transmitted", prev)
			}
		}
	}}
	p := newPipeline(t, env.config(), Options{Dialer: dialer})

	var handled []string
	w, err := watcher.New(watcher.Config{Dir: env.layout.ToSend}, func(ctx context.Context, name string) {
		for _, prev := range handled {
			if !relocated(prev) {
				t.Errorf("%s not relocated before %s started", prev, name)
			}
		}
		p.Execute(ctx, name)
		handled = append(handled, name)
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	n, err := w.Scan(t.Context())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 3 {
		t.Errorf("handled %d files, want 3", n)
	}
	if dialer.n != 2 {
		t.Errorf("dials = %d, want 2", dialer.n)
	}
	for _, want := range []string{"a.xml||", "c.xml||"} {
		if wire := env.receive(t); !bytes.HasPrefix(wire, []byte(want)) {
			t.Errorf("wire = %q, want prefix %q", wire, want)
		}
	}
}
