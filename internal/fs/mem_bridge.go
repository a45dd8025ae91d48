package fs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

type memEntry struct {
	data    []byte
	isDir   bool
	modTime int64
}

// MemBridge is an in-memory Bridge for tests and the integration
// scenario suite, avoiding real disk I/O while honoring the same
// traversal-rejection and not-found semantics as OSBridge.
type MemBridge struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	clock   int64
}

// NewMemBridge returns an empty in-memory bridge.
func NewMemBridge() *MemBridge {
	return &MemBridge{entries: make(map[string]*memEntry)}
}

func clean(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%q: %w", p, vaulterrors.InvalidPath)
	}
	c := path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%q: %w", p, vaulterrors.InvalidPath)
	}
	return strings.TrimPrefix(c, "./"), nil
}

func (b *MemBridge) tick() int64 {
	b.clock++
	return b.clock
}

func (b *MemBridge) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean, err := clean(p)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[clean]
	if !ok || e.isDir {
		return nil, fmt.Errorf("read %q: %w", p, vaulterrors.IoFailure)
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

func (b *MemBridge) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := clean(p)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mkdirParents(clean)
	cp := make([]byte, len(data))
	copy(cp, data)
	b.entries[clean] = &memEntry{data: cp, modTime: b.tick()}
	return nil
}

// mkdirParents records every ancestor directory of p as a dir entry, so
// List sees it. Caller holds the lock.
func (b *MemBridge) mkdirParents(p string) {
	dir := path.Dir(p)
	for dir != "." && dir != "/" && dir != "" {
		if e, ok := b.entries[dir]; !ok {
			b.entries[dir] = &memEntry{isDir: true, modTime: b.tick()}
		} else if !e.isDir {
			break
		}
		dir = path.Dir(dir)
	}
}

func (b *MemBridge) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanDir, err := clean(dir)
	if err != nil {
		return nil, err
	}
	if cleanDir == "." {
		cleanDir = ""
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{})
	var names []string
	for p := range b.entries {
		parent := path.Dir(p)
		if parent == "." {
			parent = ""
		}
		if parent != cleanDir {
			continue
		}
		name := path.Base(p)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

func (b *MemBridge) Delete(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := clean(p)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, clean)
	return nil
}

func (b *MemBridge) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	clean, err := clean(p)
	if err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.entries[clean]
	return ok, nil
}

func (b *MemBridge) Stat(ctx context.Context, p string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	clean, err := clean(p)
	if err != nil {
		return Info{}, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[clean]
	if !ok {
		return Info{}, fmt.Errorf("stat %q: %w", p, vaulterrors.IoFailure)
	}
	return Info{Size: int64(len(e.data)), IsDir: e.isDir, ModTime: e.modTime}, nil
}

func (b *MemBridge) Mkdir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clean, err := clean(p)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if clean != "" {
		if e, ok := b.entries[clean]; ok && !e.isDir {
			return fmt.Errorf("mkdir %q: %w", p, vaulterrors.InvalidPath)
		}
		b.entries[clean] = &memEntry{isDir: true, modTime: b.tick()}
	}
	b.mkdirParents(clean)
	return nil
}
