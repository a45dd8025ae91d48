package vault

import (
	"context"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/protocol"
	"github.com/webdesserts/obsidian-memory-sub000/internal/registry"
)

// PrepareSyncRequest encodes a SyncRequest carrying the local registry
// version and the encoded version vector of every document the local
// replica currently holds a path for.
func (v *Vault) PrepareSyncRequest(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return nil, err
	}

	versions := make(map[string]clock.VersionVector)
	for _, path := range v.registry.AllPaths() {
		docID, ok := v.registry.Lookup(path)
		if !ok {
			continue
		}
		doc, err := v.loadOrCreateDocLocked(ctx, docID)
		if err != nil {
			return nil, err
		}
		versions[path] = doc.Version()
	}

	req := protocol.SyncRequest{
		DocumentVersions: versions,
		RegistryVersion:  v.registry.Version(),
	}
	return protocol.EncodeMessage(protocol.KindSyncRequest, req)
}

// ProcessSyncRequest decodes a peer's SyncRequest and replies with a
// SyncResponse carrying the full registry snapshot plus, for every
// alive path the peer's version vector doesn't already dominate, that
// document's complete current state.
func (v *Vault) ProcessSyncRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := protocol.DecodeSyncRequest(body)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return nil, err
	}

	resp := protocol.SyncResponse{RegistryOps: v.registry.Snapshot()}

	for _, path := range v.registry.AllPaths() {
		docID, ok := v.registry.Lookup(path)
		if !ok {
			continue
		}
		doc, err := v.loadOrCreateDocLocked(ctx, docID)
		if err != nil {
			return nil, err
		}

		peerVersion, known := req.DocumentVersions[path]
		if known && clock.Includes(peerVersion, doc.Version()) {
			continue
		}
		resp.Deltas = append(resp.Deltas, doc.FullDelta())
	}

	return protocol.EncodeMessage(protocol.KindSyncResponse, resp)
}

// ProcessSyncResponse applies a peer's SyncResponse: the registry delta
// first, then each document delta, writing refreshed bytes to disk via
// the filesystem bridge and marking every touched path's last-synced
// version so the next local file event isn't mistaken for a fresh edit.
// It returns the paths that were modified.
func (v *Vault) ProcessSyncResponse(ctx context.Context, body []byte) ([]string, error) {
	resp, err := protocol.DecodeSyncResponse(body)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return nil, err
	}

	for _, op := range resp.RegistryOps {
		v.registry.ApplyRemote(op)
	}
	if err := v.persistRegistryLocked(ctx); err != nil {
		return nil, err
	}

	var modified []string
	for _, delta := range resp.Deltas {
		doc, err := v.loadOrCreateDocLocked(ctx, delta.DocID)
		if err != nil {
			return modified, err
		}
		doc.ApplyRemoteDelta(delta)
		if err := v.persistDocLocked(ctx, doc); err != nil {
			return modified, err
		}

		path := v.docPath[delta.DocID]
		if path == "" {
			path = v.pathForDocIDLocked(delta.DocID)
			v.docPath[delta.DocID] = path
		}
		if path == "" {
			continue
		}

		serialized, err := doc.Serialize()
		if err != nil {
			return modified, err
		}
		if err := v.bridge.Write(ctx, path, []byte(serialized)); err != nil {
			return modified, err
		}
		v.lastSyncedVersion[path] = doc.Version()
		evictIfOverLocked(v.lastSyncedVersion, maxTrackedPaths)
		modified = append(modified, path)
	}

	return modified, nil
}

// PrepareDocumentUpdate produces a DocumentUpdate message carrying
// path's full current document state, or nil if path has no pending
// broadcast. Sending the full state rather than a minimal since-peer
// diff mirrors the Path Registry's Snapshot choice: RGA/LWW merge is
// idempotent, so correctness doesn't depend on the receiver's prior
// version, only simplicity does.
func (v *Vault) PrepareDocumentUpdate(ctx context.Context, path string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireInitializedLocked(); err != nil {
		return nil, err
	}
	if !v.pendingBroadcast[path] {
		return nil, nil
	}
	delete(v.pendingBroadcast, path)

	docID, ok := v.registry.Lookup(path)
	if !ok {
		return nil, nil
	}
	doc, err := v.loadOrCreateDocLocked(ctx, docID)
	if err != nil {
		return nil, err
	}

	msg := protocol.DocumentUpdate{Delta: doc.FullDelta()}
	return protocol.EncodeMessage(protocol.KindDocumentUpdate, msg)
}

// PrepareFileDeleted encodes a FileOp for a delete that already
// happened via DeleteFile.
func (v *Vault) PrepareFileDeleted(op registry.Op) ([]byte, error) {
	return protocol.EncodeMessage(protocol.KindFileOp, protocol.FileOp{Op: op})
}

// PrepareFileRenamed encodes a FileOp for a rename that already
// happened via RenameFile.
func (v *Vault) PrepareFileRenamed(op registry.Op) ([]byte, error) {
	return protocol.EncodeMessage(protocol.KindFileOp, protocol.FileOp{Op: op})
}
