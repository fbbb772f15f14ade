package codec

import "testing"

func TestDigest(t *testing.T) {
	if Digest(nil) != "" {
		t.Error("Digest(nil) should be empty")
	}
	a := Digest([]byte("orders.xml||<root/>"))
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(a))
	}
	if a != Digest([]byte("orders.xml||<root/>")) {
		t.Error("digest must be deterministic")
	}
	if a == Digest([]byte("orders.xml||<root />")) {
		t.Error("different input must give a different digest")
	}
}
