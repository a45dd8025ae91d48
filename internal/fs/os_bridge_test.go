package fs

import (
	"context"
	"errors"
	"testing"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

func TestOSBridgeWriteReadRoundTrip(t *testing.T) {
	b, err := NewOSBridge(t.TempDir())
	if err != nil {
		t.Fatalf("NewOSBridge failed: %v", err)
	}
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

func TestOSBridgeRejectsTraversal(t *testing.T) {
	b, err := NewOSBridge(t.TempDir())
	if err != nil {
		t.Fatalf("NewOSBridge failed: %v", err)
	}
	_, err = b.Read(context.Background(), "../escape.md")
	if !errors.Is(err, vaulterrors.InvalidPath) {
		t.Errorf("expected InvalidPath, got %v", err)
	}
}

func TestOSBridgeListAndDelete(t *testing.T) {
	b, err := NewOSBridge(t.TempDir())
	if err != nil {
		t.Fatalf("NewOSBridge failed: %v", err)
	}
	ctx := context.Background()
	if err := b.Write(ctx, "notes/a.md", []byte("a")); err != nil {
		t.Fatal(err)
	}
	names, err := b.List(ctx, "notes")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 || names[0] != "a.md" {
		t.Errorf("unexpected listing: %v", names)
	}

	if err := b.Delete(ctx, "notes/a.md"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err := b.Exists(ctx, "notes/a.md")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected file to be gone after Delete")
	}
}

func TestOSBridgeStat(t *testing.T) {
	b, err := NewOSBridge(t.TempDir())
	if err != nil {
		t.Fatalf("NewOSBridge failed: %v", err)
	}
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
