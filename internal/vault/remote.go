package vault

import (
	"context"

	"github.com/webdesserts/obsidian-memory-sub000/internal/document"
	"github.com/webdesserts/obsidian-memory-sub000/internal/registry"
)

// ApplyDocumentUpdate merges one unsolicited DocumentUpdate delta
// (spec.md §4.E), writing the resulting bytes to disk and capturing the
// post-apply version so the following OnFileChanged isn't mistaken for
// a fresh local edit. It returns the path the delta landed on, or ""
// if the delta's DocID has no alive path yet.
func (v *Vault) ApplyDocumentUpdate(ctx context.Context, delta document.Delta) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return "", err
	}

	doc, err := v.loadOrCreateDocLocked(ctx, delta.DocID)
	if err != nil {
		return "", err
	}
	doc.ApplyRemoteDelta(delta)
	if err := v.persistDocLocked(ctx, doc); err != nil {
		return "", err
	}

	path := v.docPath[delta.DocID]
	if path == "" {
		path = v.pathForDocIDLocked(delta.DocID)
		v.docPath[delta.DocID] = path
	}
	if path == "" {
		return "", nil
	}

	serialized, err := doc.Serialize()
	if err != nil {
		return "", err
	}
	if err := v.bridge.Write(ctx, path, []byte(serialized)); err != nil {
		// Filesystem write failure during inbound apply never rolls
		// back CRDT state (spec.md §7): the document already advanced
		// above, and the next sync round will re-emit until disk agrees.
		v.logger.WithError(err).WithPath(path).Warn("failed to write document update to disk")
		return path, nil
	}
	v.lastSyncedVersion[path] = doc.Version()
	evictIfOverLocked(v.lastSyncedVersion, maxTrackedPaths)
	return path, nil
}

// ApplyRemoteFileOp merges an inbound FileOp into the Path Registry,
// carrying document identity across a rename and unlinking the on-disk
// file for a delete (spec.md §4.H, "On inbound FileOp"). It returns the
// paths whose on-disk presence changed.
func (v *Vault) ApplyRemoteFileOp(ctx context.Context, op registry.Op) ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return nil, err
	}

	applied, invalidated := v.registry.ApplyRemote(op)
	if err := v.persistRegistryLocked(ctx); err != nil {
		return nil, err
	}

	var modified []string
	switch op.Kind {
	case registry.OpRename:
		if !applied {
			// op lost its tiebreak against the path already alive for
			// this docID (e.g. a concurrent rename of the same source to
			// a different target); nothing on disk changes here.
			break
		}
		if invalidated != "" {
			// Some other alive path for this docID just lost to op.Path
			// (spec.md S4: concurrent rename of one source to two
			// different targets resolves to a single winner). This
			// replica's own copy of the document's bytes lives under
			// that losing path, not under op.OldPath, so move them from
			// there instead.
			if data, err := v.bridge.Read(ctx, invalidated); err == nil {
				if err := v.bridge.Write(ctx, op.Path, data); err != nil {
					v.logger.WithError(err).WithPath(op.Path).Warn("failed to write renamed file to disk")
				} else if err := v.bridge.Delete(ctx, invalidated); err != nil {
					v.logger.WithError(err).WithPath(invalidated).Warn("failed to unlink losing rename target")
				}
			}
			delete(v.lastSyncedVersion, invalidated)
			delete(v.pendingBroadcast, invalidated)
			modified = append(modified, invalidated)
		}
		if synced, ok := v.lastSyncedVersion[op.OldPath]; ok {
			v.lastSyncedVersion[op.Path] = synced
			delete(v.lastSyncedVersion, op.OldPath)
		}
		if v.pendingBroadcast[op.OldPath] {
			v.pendingBroadcast[op.Path] = true
			delete(v.pendingBroadcast, op.OldPath)
		}
		v.docPath[op.DocID] = op.Path
		// A remote peer's OS already renamed its own copy of the file;
		// this replica never saw that rename happen locally, so its
		// bridge still holds the bytes under the old path. Move them
		// across so op.Path resolves on disk the same way it now
		// resolves in the registry (spec.md S3: "B holds b.md = X and
		// a.md absent").
		if data, err := v.bridge.Read(ctx, op.OldPath); err == nil {
			if err := v.bridge.Write(ctx, op.Path, data); err != nil {
				v.logger.WithError(err).WithPath(op.Path).Warn("failed to write renamed file to disk")
			} else if err := v.bridge.Delete(ctx, op.OldPath); err != nil {
				v.logger.WithError(err).WithPath(op.OldPath).Warn("failed to unlink old path after remote rename")
			}
		}
		modified = append(modified, op.Path)
	case registry.OpDelete:
		if !applied {
			break
		}
		delete(v.lastSyncedVersion, op.Path)
		delete(v.pendingBroadcast, op.Path)
		if err := v.bridge.Delete(ctx, op.Path); err != nil {
			v.logger.WithError(err).WithPath(op.Path).Warn("failed to unlink file for remote delete")
		}
		modified = append(modified, op.Path)
	case registry.OpCreate:
		if !applied {
			break
		}
		v.docPath[op.DocID] = op.Path
	}

	if v.metrics != nil {
		v.metrics.RegistryEntries.Set(float64(len(v.registry.AllPaths())))
	}
	return modified, nil
}
