package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// OSBridge roots every operation at baseDir and rejects any path that
// would escape it, mirroring the teacher's FileStorage's collection-dir
// scoping but guarding against traversal instead of trusting callers.
type OSBridge struct {
	baseDir string
}

// NewOSBridge returns a Bridge rooted at baseDir, creating it if absent.
func NewOSBridge(baseDir string) (*OSBridge, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w: %w", vaulterrors.IoFailure, err)
	}
	return &OSBridge{baseDir: baseDir}, nil
}

func (b *OSBridge) resolve(path string) (string, error) {
	if path == "" || strings.Contains(filepath.ToSlash(path), "..") {
		return "", fmt.Errorf("%q: %w", path, vaulterrors.InvalidPath)
	}
	full := filepath.Join(b.baseDir, filepath.FromSlash(path))
	rel, err := filepath.Rel(b.baseDir, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%q: %w", path, vaulterrors.InvalidPath)
	}
	return full, nil
}

func (b *OSBridge) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w: %w", path, vaulterrors.IoFailure, err)
	}
	return data, nil
}

func (b *OSBridge) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("mkdir for %q: %w: %w", path, vaulterrors.IoFailure, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w: %w", path, vaulterrors.IoFailure, err)
	}
	return nil
}

func (b *OSBridge) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := b.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %q: %w: %w", dir, vaulterrors.IoFailure, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (b *OSBridge) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w: %w", path, vaulterrors.IoFailure, err)
	}
	return nil
}

func (b *OSBridge) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := b.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %q: %w: %w", path, vaulterrors.IoFailure, err)
}

func (b *OSBridge) Stat(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	full, err := b.resolve(path)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return Info{}, fmt.Errorf("stat %q: %w: %w", path, vaulterrors.IoFailure, err)
	}
	return Info{Size: fi.Size(), IsDir: fi.IsDir(), ModTime: fi.ModTime().UnixNano()}, nil
}

func (b *OSBridge) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w: %w", path, vaulterrors.IoFailure, err)
	}
	return nil
}
