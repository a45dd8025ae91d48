package fs

import (
	"context"
	"errors"
	"testing"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

func TestMemBridgeWriteReadRoundTrip(t *testing.T) {
	b := NewMemBridge()
	ctx := context.Background()

	if err := b.Write(ctx, "notes/a.md", []byte("hello")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := b.Read(ctx, "notes/a.md")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}

func TestMemBridgeReadMissing(t *testing.T) {
	b := NewMemBridge()
	_, err := b.Read(context.Background(), "missing.md")
	if !errors.Is(err, vaulterrors.IoFailure) {
		t.Errorf("expected IoFailure, got %v", err)
	}
}

func TestMemBridgeRejectsTraversal(t *testing.T) {
	b := NewMemBridge()
	_, err := b.Read(context.Background(), "../escape.md")
	if !errors.Is(err, vaulterrors.InvalidPath) {
		t.Errorf("expected InvalidPath, got %v", err)
	}
}

func TestMemBridgeListReflectsParents(t *testing.T) {
	b := NewMemBridge()
	ctx := context.Background()
	if err := b.Write(ctx, "notes/a.md", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if err := b.Write(ctx, "notes/b.md", []byte("b")); err != nil {
		t.Fatal(err)
	}
	names, err := b.List(ctx, "notes")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 entries, got %v", names)
	}
}

func TestMemBridgeDeleteThenExists(t *testing.T) {
	b := NewMemBridge()
	ctx := context.Background()
	if err := b.Write(ctx, "a.md", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete(ctx, "a.md"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err := b.Exists(ctx, "a.md")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected file to no longer exist")
	}
}

func TestMemBridgeStat(t *testing.T) {
	b := NewMemBridge()
	ctx := context.Background()
	if err := b.Write(ctx, "a.md", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	info, err := b.Stat(ctx, "a.md")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != 5 || info.IsDir {
		t.Errorf("unexpected info: %+v", info)
	}
}
