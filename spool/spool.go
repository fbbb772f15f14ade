// Package spool manages the relay's well-known directories: listing,
// relocation into the archive and error directories, and atomic writes.
package spool

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pithecene-io/courier/iox"
)

// Directory names under the mount root.
const (
	DirToSend        = "to_send"
	DirSent          = "sent"
	DirSentError     = "sent_error"
	DirReceived      = "received"
	DirReceivedError = "received_error"
)

// TimestampLayout is the collision suffix format: _YYYYMMDD_HHMMSS.ffffff.
const TimestampLayout = "20060102_150405.000000"

// UnknownName is used when a quarantined message has no recoverable filename.
const UnknownName = "unknown"

// Layout is the set of directories rooted at a mount path.
type Layout struct {
	Root          string
	ToSend        string
	Sent          string
	SentError     string
	Received      string
	ReceivedError string
}

// NewLayout returns the standard layout under root.
func NewLayout(root string) Layout {
	return Layout{
		Root:          root,
		ToSend:        filepath.Join(root, DirToSend),
		Sent:          filepath.Join(root, DirSent),
		SentError:     filepath.Join(root, DirSentError),
		Received:      filepath.Join(root, DirReceived),
		ReceivedError: filepath.Join(root, DirReceivedError),
	}
}

// SenderDirs returns the directories the sender reads and writes.
func (l Layout) SenderDirs() []string {
	return []string{l.ToSend, l.Sent, l.SentError}
}

// ReceiverDirs returns the directories the receiver writes.
func (l Layout) ReceiverDirs() []string {
	return []string{l.Received, l.ReceivedError}
}

// Ensure creates every directory in dirs if missing.
func Ensure(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Naming selects how a name is chosen inside a destination directory.
type Naming string

const (
	// NamingPlain keeps the original name and appends a timestamp only
	// when that name is already taken.
	NamingPlain Naming = "plain"
	// NamingTimestamped always appends a timestamp.
	NamingTimestamped Naming = "timestamped"
	// NamingOverwrite keeps the original name and replaces any existing file.
	NamingOverwrite Naming = "overwrite"
)

// ParseNaming parses a naming strategy. Empty selects def.
func ParseNaming(s string, def Naming) (Naming, error) {
	switch Naming(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case NamingPlain:
		return NamingPlain, nil
	case NamingTimestamped:
		return NamingTimestamped, nil
	case NamingOverwrite:
		return NamingOverwrite, nil
	default:
		return "", fmt.Errorf("unknown naming strategy %q", s)
	}
}

// Stamp appends the collision suffix for now to name.
func Stamp(name string, now time.Time) string {
	return name + "_" + now.Format(TimestampLayout)
}

// Resolve picks the destination path for name in dir under strategy.
// NamingPlain falls back to a stamped name when name exists; a stamped
// name that is still taken gets a numeric suffix.
func Resolve(dir, name string, strategy Naming, now time.Time) string {
	switch strategy {
	case NamingOverwrite:
		return filepath.Join(dir, name)
	case NamingPlain:
		p := filepath.Join(dir, name)
		if !exists(p) {
			return p
		}
	}
	stamped := Stamp(name, now)
	p := filepath.Join(dir, stamped)
	for i := 1; exists(p); i++ {
		p = filepath.Join(dir, fmt.Sprintf("%s_%d", stamped, i))
	}
	return p
}

func exists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// Move relocates src to dst. A cross-device rename falls back to
// copy and remove.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(in)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		iox.DiscardClose(out)
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

// WriteAtomic writes data to path through a temp file in the same
// directory followed by a rename, so readers never see a partial file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		iox.DiscardClose(tmp)
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// List returns the names of entries in dir, sorted, excluding hidden
// entries (leading dot). Directories are included; the sender rejects
// them at validation.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	// os.ReadDir already sorts by filename.
	return names, nil
}

// IsBaseName reports whether name is usable as a single path element.
func IsBaseName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return filepath.Base(name) == name
}
