// Package iox provides I/O helpers for resource cleanup and chunked
// socket transfers.
package iox

import (
	"errors"
	"fmt"
	"io"
)

// ErrTooLarge is returned by ReadAllChunks when the stream exceeds the limit.
var ErrTooLarge = errors.New("stream exceeds size limit")

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(ln))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
func DiscardErr(fn func() error) { _ = fn() }

// writeCloser is implemented by *net.TCPConn and *net.UnixConn.
type writeCloser interface {
	CloseWrite() error
}

// CloseWrite shuts down the write side of c if the connection supports
// half-close. It signals end-of-message to a peer reading until EOF.
// Connections without half-close support are left untouched; the caller's
// full Close delivers the same signal.
func CloseWrite(c any) error {
	if wc, ok := c.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return nil
}

// WriteChunks writes data to w in slices of at most chunkSize bytes until
// the data is exhausted. It returns the number of bytes written.
func WriteChunks(w io.Writer, data []byte, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	var written int64
	for len(data) > 0 {
		n := min(chunkSize, len(data))
		m, err := w.Write(data[:n])
		written += int64(m)
		if err != nil {
			return written, err
		}
		if m != n {
			return written, io.ErrShortWrite
		}
		data = data[n:]
	}
	return written, nil
}

// ReadAllChunks reads from r in chunkSize reads until a zero-length read
// (EOF), accumulating everything into one buffer. A limit > 0 caps the
// total size; exceeding it returns the bytes read so far and ErrTooLarge.
// On a read error the partial buffer is returned alongside the error so
// callers can still quarantine what arrived.
func ReadAllChunks(r io.Reader, chunkSize int, limit int64) ([]byte, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", chunkSize)
	}
	var out []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
			if limit > 0 && int64(len(out)) > limit {
				return out, fmt.Errorf("%w: read %d bytes, limit %d", ErrTooLarge, len(out), limit)
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}
