// Package fs implements the Filesystem Bridge: the capability interface
// the Vault and Host Adapter use to read and write vault files, plus two
// implementations — one backed by the real filesystem, one in-memory for
// tests.
package fs

import "context"

// Bridge is the capability every vault storage backend exposes. All
// methods are context-aware so a caller can cancel a slow disk or a
// blocked test double.
type Bridge interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, dir string) ([]string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Stat(ctx context.Context, path string) (Info, error)
	Mkdir(ctx context.Context, path string) error
}

// Info is the subset of file metadata the sync core needs: enough to
// detect external changes without depending on os.FileInfo directly.
type Info struct {
	Size    int64
	IsDir   bool
	ModTime int64 // unix nanoseconds
}
