// Package protocol implements the Protocol Codec: the on-wire framing
// and message kinds peers exchange over a Transport.
package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/document"
	"github.com/webdesserts/obsidian-memory-sub000/internal/registry"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

// maxMessageSize is the wire-level ceiling spec.md's error handling
// design names as OversizedMessage.
const maxMessageSize = 50 * 1024 * 1024 // 50MiB

// Kind identifies a message's payload shape. It is the one-byte tag
// every frame carries ahead of its length, kept even though each kind's
// body is independently self-describing (a gob stream decodes without
// needing the tag) because spec.md requires it as explicit framing.
type Kind byte

const (
	KindHandshake Kind = iota
	KindSyncRequest
	KindSyncResponse
	KindDocumentUpdate
	KindFileOp
	KindGossip
	KindSyncEnvelope
)

// Handshake is the first message any connection must exchange before
// any other kind is accepted; body is JSON for interoperability with
// non-Go peers, unlike every other kind which is gob.
type Handshake struct {
	PeerID          string `json:"peerId"`
	VaultID         string `json:"vaultId"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// SyncRequest asks a peer for everything newer than the sender's
// current state: its per-document version vectors, keyed by vault path,
// and its registry's own version vector.
type SyncRequest struct {
	DocumentVersions map[string]clock.VersionVector
	RegistryVersion  clock.VersionVector
}

// SyncResponse carries every delta and registry op the requester is
// missing.
type SyncResponse struct {
	Deltas      []document.Delta
	RegistryOps []registry.Op
}

// DocumentUpdate is the throttled per-path broadcast the Sync Engine
// emits after a local edit settles.
type DocumentUpdate struct {
	Delta document.Delta
}

// FileOp carries a single registry mutation (create/rename/delete).
type FileOp struct {
	Op registry.Op
}

// GossipUpdate is one membership fact piggybacked on an outbound
// envelope; Membership owns the authoritative shape, this is the
// wire-stable subset every peer needs to merge it.
type GossipUpdate struct {
	PeerID      string
	Address     string
	Incarnation uint64
	State       string
}

// Gossip carries a batch of piggybacked membership updates.
type Gossip struct {
	Updates []GossipUpdate
}

// SyncEnvelope wraps any other non-handshake message together with a
// gossip piggyback, so every outbound frame can carry membership
// updates without a dedicated round trip.
type SyncEnvelope struct {
	Kind    Kind
	Payload []byte
	Gossip  []GossipUpdate
}

// EncodeMessage serializes payload under kind and wraps it in the wire
// frame: one tag byte, a big-endian uint32 length, then the body.
// Handshake bodies are JSON; every other kind is gob.
func EncodeMessage(kind Kind, payload any) ([]byte, error) {
	var body []byte
	var err error
	if kind == KindHandshake {
		body, err = json.Marshal(payload)
	} else {
		body, err = encodeGob(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}
	if len(body) > maxMessageSize {
		return nil, fmt.Errorf("%w", vaulterrors.OversizedMessage)
	}

	frame := make([]byte, 0, 5+len(body))
	frame = append(frame, byte(kind))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, body...)
	return frame, nil
}

// ReadMessage reads one framed message from r: the tag byte, the
// length, then exactly that many body bytes. It enforces
// OversizedMessage before allocating the body buffer.
func ReadMessage(r io.Reader) (Kind, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	kind := Kind(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxMessageSize {
		return 0, nil, fmt.Errorf("%w", vaulterrors.OversizedMessage)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return kind, body, nil
}

// DecodeHandshake parses a handshake body.
func DecodeHandshake(body []byte) (Handshake, error) {
	var h Handshake
	if err := json.Unmarshal(body, &h); err != nil {
		return Handshake{}, fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}
	return h, nil
}

// DecodeSyncRequest parses a sync-request body.
func DecodeSyncRequest(body []byte) (SyncRequest, error) {
	var v SyncRequest
	err := decodeGob(body, &v)
	return v, err
}

// DecodeSyncResponse parses a sync-response body.
func DecodeSyncResponse(body []byte) (SyncResponse, error) {
	var v SyncResponse
	err := decodeGob(body, &v)
	return v, err
}

// DecodeDocumentUpdate parses a document-update body.
func DecodeDocumentUpdate(body []byte) (DocumentUpdate, error) {
	var v DocumentUpdate
	err := decodeGob(body, &v)
	return v, err
}

// DecodeFileOp parses a file-op body.
func DecodeFileOp(body []byte) (FileOp, error) {
	var v FileOp
	err := decodeGob(body, &v)
	return v, err
}

// DecodeGossip parses a gossip body.
func DecodeGossip(body []byte) (Gossip, error) {
	var v Gossip
	err := decodeGob(body, &v)
	return v, err
}

// DecodeSyncEnvelope parses a sync-envelope body.
func DecodeSyncEnvelope(body []byte) (SyncEnvelope, error) {
	var v SyncEnvelope
	err := decodeGob(body, &v)
	return v, err
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", vaulterrors.DecodeFailure, err)
	}
	return nil
}
