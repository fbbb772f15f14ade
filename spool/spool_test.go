package spool

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC)

func TestStamp(t *testing.T) {
	got := Stamp("orders.json", fixedNow)
	want := "orders.json_20240309_140507.123456"
	if got != want {
		t.Errorf("Stamp() = %q, want %q", got, want)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "taken.json"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		file     string
		strategy Naming
		want     string
	}{
		{"plain free", "free.json", NamingPlain, "free.json"},
		{"plain taken", "taken.json", NamingPlain, "taken.json_20240309_140507.123456"},
		{"timestamped free", "free.json", NamingTimestamped, "free.json_20240309_140507.123456"},
		{"overwrite taken", "taken.json", NamingOverwrite, "taken.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(dir, tt.file, tt.strategy, fixedNow)
			if got != filepath.Join(dir, tt.want) {
				t.Errorf("Resolve() = %q, want %q", got, filepath.Join(dir, tt.want))
			}
		})
	}
}

func TestResolve_StampedCollision(t *testing.T) {
	dir := t.TempDir()
	stamped := Stamp("a.json", fixedNow)
	for _, n := range []string{"a.json", stamped} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got := Resolve(dir, "a.json", NamingPlain, fixedNow)
	if want := filepath.Join(dir, stamped+"_1"); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestParseNaming(t *testing.T) {
	if n, err := ParseNaming("", NamingPlain); err != nil || n != NamingPlain {
		t.Errorf("ParseNaming(\"\") = %q, %v", n, err)
	}
	if n, err := ParseNaming(" Timestamped ", NamingPlain); err != nil || n != NamingTimestamped {
		t.Errorf("ParseNaming(Timestamped) = %q, %v", n, err)
	}
	if _, err := ParseNaming("random", NamingPlain); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.json")
	dst := filepath.Join(dir, "dst.json")
	if err := os.WriteFile(src, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Move(src, dst); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still present: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("dst = %q", got)
	}
}

func TestMove_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := Move(filepath.Join(dir, "nope"), filepath.Join(dir, "dst")); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.xml")
	if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteAtomic(p, []byte("new")); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}
	got, _ := os.ReadFile(p)
	if string(got) != "new" {
		t.Errorf("content = %q, want new", got)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("leftover temp files: %d entries", len(entries))
	}
}

func TestWriteAtomic_MissingDir(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing", "out.xml")
	if err := WriteAtomic(p, []byte("x")); err == nil {
		t.Error("expected error writing into missing directory")
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.json", "a.json", ".hidden.json", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"a.json", "b.json", "c.txt", "sub"}
	if !slices.Equal(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func TestIsBaseName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"orders.xml", true},
		{"a.b.xml", true},
		{"", false},
		{".", false},
		{"..", false},
		{"../etc/passwd", false},
		{"dir/file.xml", false},
		{`dir\file.xml`, false},
		{"nul\x00byte", false},
	}
	for _, tt := range tests {
		if got := IsBaseName(tt.name); got != tt.want {
			t.Errorf("IsBaseName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	l := NewLayout(root)
	if err := Ensure(append(l.SenderDirs(), l.ReceiverDirs()...)...); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	for _, d := range []string{DirToSend, DirSent, DirSentError, DirReceived, DirReceivedError} {
		info, err := os.Stat(filepath.Join(root, d))
		if err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", d, err)
		}
	}
}
