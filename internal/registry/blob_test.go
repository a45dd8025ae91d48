package registry

import "testing"

func TestEncodeDecodeBlobRoundTrip(t *testing.T) {
	r := New("peerA")
	if _, err := r.Create("notes/a.md", "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Create("notes/b.md", "doc2"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Delete("notes/b.md"); err != nil {
		t.Fatal(err)
	}

	blob, err := r.EncodeBlob()
	if err != nil {
		t.Fatalf("EncodeBlob failed: %v", err)
	}

	reloaded, err := DecodeBlob("peerA", blob)
	if err != nil {
		t.Fatalf("DecodeBlob failed: %v", err)
	}

	docID, ok := reloaded.Lookup("notes/a.md")
	if !ok || docID != "doc1" {
		t.Errorf("expected doc1 at notes/a.md, got %q (ok=%v)", docID, ok)
	}
	if _, ok := reloaded.Lookup("notes/b.md"); ok {
		t.Error("expected notes/b.md to remain tombstoned after reload")
	}
}

func TestDecodeBlobCorrupt(t *testing.T) {
	_, err := DecodeBlob("peerA", []byte("garbage"))
	if err == nil {
		t.Fatal("expected error decoding corrupt registry blob")
	}
}
