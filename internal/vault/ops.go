package vault

import (
	"context"

	"github.com/google/uuid"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/registry"
)

// OnFileChanged reads path's current bytes, routes them to the
// document registered at path (creating one through the registry if
// this is the first time path has been seen), and applies the content
// as a local change. It returns whether the change should be broadcast:
// false means loop suppression identified this as a pure sync echo.
func (v *Vault) OnFileChanged(ctx context.Context, path string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return false, err
	}

	data, err := v.bridge.Read(ctx, path)
	if err != nil {
		return false, err
	}

	docID, ok := v.registry.Lookup(path)
	if !ok {
		docID = newDocID()
		if _, err := v.registry.Create(path, docID); err != nil {
			return false, err
		}
	}
	v.docPath[docID] = path

	doc, err := v.loadOrCreateDocLocked(ctx, docID)
	if err != nil {
		return false, err
	}

	synced, hadSynced := v.lastSyncedVersion[path]
	delete(v.lastSyncedVersion, path)

	if _, err := doc.ApplyLocalChange(string(data)); err != nil {
		return false, err
	}

	if err := v.persistDocLocked(ctx, doc); err != nil {
		return false, err
	}
	if err := v.persistRegistryLocked(ctx); err != nil {
		return false, err
	}

	if v.metrics != nil {
		v.metrics.DocumentsStored.Set(float64(len(v.docs)))
		v.metrics.RegistryEntries.Set(float64(len(v.registry.AllPaths())))
	}

	if hadSynced && isSyncEcho(doc.Version(), synced, v.peerID) {
		return false, nil
	}

	v.pendingBroadcast[path] = true
	evictIfOverLocked(v.pendingBroadcast, maxTrackedPaths)
	return true, nil
}

// isSyncEcho implements the loop-suppression rule: current must
// pointwise include synced, and no new op may have been authored by
// localPeer since the snapshot was captured.
func isSyncEcho(current, synced clock.VersionVector, localPeer string) bool {
	return clock.Includes(current, synced) && current[localPeer] == synced[localPeer]
}

func newDocID() string {
	return uuid.NewString()
}

// DeleteFile tombstones path in the registry, returning the emitted Op
// for the caller to hand to PrepareFileDeleted. The document body is
// left intact on disk and in the blob; only the path mapping dies.
func (v *Vault) DeleteFile(ctx context.Context, path string) (registry.Op, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return registry.Op{}, err
	}
	op, err := v.registry.Delete(path)
	if err != nil {
		return registry.Op{}, err
	}
	delete(v.lastSyncedVersion, path)
	delete(v.pendingBroadcast, path)
	if err := v.persistRegistryLocked(ctx); err != nil {
		return registry.Op{}, err
	}
	return op, nil
}

// RenameFile moves a path's registry entry, preserving the underlying
// document's identity, and returns the emitted Op for PrepareFileRenamed.
func (v *Vault) RenameFile(ctx context.Context, oldPath, newPath string) (registry.Op, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return registry.Op{}, err
	}
	op, err := v.registry.Rename(oldPath, newPath)
	if err != nil {
		return registry.Op{}, err
	}
	if synced, ok := v.lastSyncedVersion[oldPath]; ok {
		v.lastSyncedVersion[newPath] = synced
		delete(v.lastSyncedVersion, oldPath)
	}
	if v.pendingBroadcast[oldPath] {
		v.pendingBroadcast[newPath] = true
		delete(v.pendingBroadcast, oldPath)
	}
	v.docPath[op.DocID] = newPath
	if err := v.persistRegistryLocked(ctx); err != nil {
		return registry.Op{}, err
	}
	return op, nil
}

// GetDocumentVersion returns path's encoded version vector, or nil if
// path is unknown.
func (v *Vault) GetDocumentVersion(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return nil, err
	}
	docID, ok := v.registry.Lookup(path)
	if !ok {
		return nil, nil
	}
	doc, err := v.loadOrCreateDocLocked(ctx, docID)
	if err != nil {
		return nil, err
	}
	return doc.EncodedVersion()
}

// ReloadedFromDisk tells the Vault that path's on-disk body was just
// rewritten as a sync side effect, not a user edit. It captures the
// document's current version so the next OnFileChanged(path) can tell
// a genuine edit apart from the echo of that very write.
func (v *Vault) ReloadedFromDisk(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return err
	}
	docID, ok := v.registry.Lookup(path)
	if !ok {
		return nil
	}
	doc, err := v.loadOrCreateDocLocked(ctx, docID)
	if err != nil {
		return err
	}
	v.lastSyncedVersion[path] = doc.Version()
	evictIfOverLocked(v.lastSyncedVersion, maxTrackedPaths)
	return nil
}
