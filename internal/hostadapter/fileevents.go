package hostadapter

import (
	"context"
	"errors"

	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// FileEventKind mirrors the host editor's file-watcher event shape
// (spec.md §4.I): create, modify, delete, rename.
type FileEventKind int

const (
	EventCreate FileEventKind = iota
	EventModify
	EventDelete
	EventRename
)

func (k FileEventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// OnFileEvent is the Host Adapter's single entry point for host file
// events. Non-Markdown files are skipped before ever reaching the
// Vault; everything else is serialized through the FIFO queue and, on
// success, handed to the Sync Engine to broadcast.
func (a *Adapter) OnFileEvent(ctx context.Context, kind FileEventKind, path, newPath string) error {
	if !a.filter.ShouldSync(path) {
		return nil
	}

	return a.Enqueue(func() error {
		switch kind {
		case EventCreate, EventModify:
			return a.applyLocalEdit(ctx, path)
		case EventDelete:
			return a.applyLocalDelete(ctx, path)
		case EventRename:
			if !a.filter.ShouldSync(newPath) {
				return a.applyLocalDelete(ctx, path)
			}
			return a.applyLocalRename(ctx, path, newPath)
		default:
			return nil
		}
	})
}

func (a *Adapter) applyLocalEdit(ctx context.Context, path string) error {
	shouldBroadcast, err := a.vault.OnFileChanged(ctx, path)
	if err != nil {
		if errors.Is(err, vaulterrors.OversizedFile) {
			a.notify(Notice{Kind: "OversizedFile", Path: path, Err: err})
			return nil
		}
		if errors.Is(err, vaulterrors.NotInitialized) {
			a.notify(Notice{Kind: "NotInitialized", Path: path, Err: err})
		}
		return err
	}
	if shouldBroadcast {
		a.engine.BroadcastLocalChange(ctx, path)
	}
	return nil
}

func (a *Adapter) applyLocalDelete(ctx context.Context, path string) error {
	op, err := a.vault.DeleteFile(ctx, path)
	if err != nil {
		return err
	}
	frame, err := a.vault.PrepareFileDeleted(op)
	if err != nil {
		return err
	}
	a.engine.BroadcastFileOp(ctx, frame)
	return nil
}

func (a *Adapter) applyLocalRename(ctx context.Context, oldPath, newPath string) error {
	op, err := a.vault.RenameFile(ctx, oldPath, newPath)
	if err != nil {
		return err
	}
	frame, err := a.vault.PrepareFileRenamed(op)
	if err != nil {
		return err
	}
	a.engine.BroadcastFileOp(ctx, frame)
	return nil
}
