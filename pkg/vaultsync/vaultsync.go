// Package vaultsync is the public facade over the sync core: it wires
// the Filesystem Bridge, Document Store, Path Registry, Vault, Peer
// Registry, Membership, and Sync Engine behind the Host Adapter's
// single-actor queue, so an embedding host only ever needs this one
// entry point.
package vaultsync

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/webdesserts/obsidian-memory-sub000/internal/fs"
	"github.com/webdesserts/obsidian-memory-sub000/internal/hostadapter"
	"github.com/webdesserts/obsidian-memory-sub000/internal/logging"
	"github.com/webdesserts/obsidian-memory-sub000/internal/membership"
	"github.com/webdesserts/obsidian-memory-sub000/internal/metrics"
	"github.com/webdesserts/obsidian-memory-sub000/internal/peers"
	"github.com/webdesserts/obsidian-memory-sub000/internal/syncengine"
	"github.com/webdesserts/obsidian-memory-sub000/internal/transport"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vault"
)

// Options configures a Vault facade. Bridge is the only required
// field; everything else defaults to values suitable for a
// single-process demo or test.
type Options struct {
	// PeerID is this process's fixed peer identifier. If empty, one is
	// generated via GeneratePeerID and should be persisted by the host
	// under a vault-specific key (spec.md §6).
	PeerID string

	// Bridge is the Filesystem Bridge the vault is rooted at. Required.
	Bridge fs.Bridge

	// IgnoreGlobs are additional doublestar ignore patterns layered on
	// top of the Markdown-only default filter.
	IgnoreGlobs []string

	// LogLevel and LogFormat configure the zap logger backing every
	// component; default "info" / "json".
	LogLevel  string
	LogFormat string

	// Metrics is the Prometheus registry to publish to; a fresh one is
	// created if nil.
	Metrics *metrics.Metrics

	// Dial is called when gossip reveals a newly-alive peer with an
	// address the local replica isn't already connected to (spec.md
	// §4.G auto-connect). Opening the actual connection is the host's
	// job; this is only the dial *signal*.
	Dial syncengine.Dialer

	// OnModified is called with every set of vault-relative paths whose
	// on-disk bytes sync just rewrote, so the host can invalidate its
	// file cache.
	OnModified syncengine.ModifiedNotifier

	// Notify receives the host-visible notices spec.md §7 specifies
	// (OversizedFile, NotInitialized).
	Notify func(hostadapter.Notice)
}

// GeneratePeerID returns a fresh 16-lowercase-hex-character peer
// identifier from 8 cryptographically random bytes (spec.md §3).
func GeneratePeerID() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate peer id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Vault is the public facade: an initialized sync core ready to accept
// host file events and attached transports.
type Vault struct {
	PeerID string

	core    *vault.Vault
	peerReg *peers.Registry
	members *membership.Membership
	engine  *syncengine.Engine
	adapter *hostadapter.Adapter
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New constructs and initializes a Vault facade: it creates `.sync/` if
// absent, loads any existing registry blob and settings, and starts the
// Host Adapter's FIFO actor.
func New(ctx context.Context, opts Options) (*Vault, error) {
	if opts.Bridge == nil {
		return nil, fmt.Errorf("vaultsync: Options.Bridge is required")
	}
	peerID := opts.PeerID
	if peerID == "" {
		generated, err := GeneratePeerID()
		if err != nil {
			return nil, err
		}
		peerID = generated
	}

	level, format := opts.LogLevel, opts.LogFormat
	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}
	logger, err := logging.NewLogger(level, format)
	if err != nil {
		return nil, fmt.Errorf("vaultsync: %w", err)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	core := vault.New(peerID, opts.Bridge, logger.Named("vault"), m)
	if err := core.Init(ctx); err != nil {
		return nil, fmt.Errorf("vaultsync: init: %w", err)
	}

	peerReg := peers.New()
	members := membership.New(peerID)

	engine := syncengine.New(syncengine.Options{
		LocalPeerID: peerID,
		Vault:       core,
		Peers:       peerReg,
		Membership:  members,
		Logger:      logger.Named("syncengine"),
		Metrics:     m,
		Dial:        opts.Dial,
		OnModified:  opts.OnModified,
	})

	adapter := hostadapter.New(hostadapter.Options{
		Vault:       core,
		Engine:      engine,
		IgnoreGlobs: opts.IgnoreGlobs,
		Logger:      logger.Named("hostadapter"),
		Metrics:     m,
		Notify:      opts.Notify,
	})
	// The Sync Engine's flush timers must submit their delayed
	// broadcast back through this Adapter's FIFO queue rather than
	// calling engine state directly from the timer goroutine. This
	// short self-reference is the one place Options can't express the
	// dependency up front since the Adapter needs the Engine to exist
	// first.
	engine.SetEnqueue(adapter.EnqueueAsync)

	return &Vault{
		PeerID:  peerID,
		core:    core,
		peerReg: peerReg,
		members: members,
		engine:  engine,
		adapter: adapter,
		logger:  logger,
		metrics: m,
	}, nil
}

// OnFileEvent forwards a host file-watcher event into the sync core.
func (v *Vault) OnFileEvent(ctx context.Context, kind hostadapter.FileEventKind, path, newPath string) error {
	return v.adapter.OnFileEvent(ctx, kind, path, newPath)
}

// Attach wires an already-open Transport to a newly dialed or accepted
// connection.
func (v *Vault) Attach(ctx context.Context, connectionID, address string, direction peers.Direction, t transport.Transport) error {
	return v.adapter.Attach(ctx, connectionID, address, direction, t)
}

// KnownPeers returns the peers loaded from `.sync/settings.json`.
func (v *Vault) KnownPeers() []vault.KnownPeer {
	return v.core.KnownPeers()
}

// ConnectedPeers returns a snapshot of every peer currently connected.
func (v *Vault) ConnectedPeers() []peers.Entry {
	return v.peerReg.GetConnectedPeers()
}

// Metrics exposes the Prometheus registry backing this Vault, for the
// host to mount on its own metrics endpoint.
func (v *Vault) Metrics() *metrics.Metrics {
	return v.metrics
}

// Shutdown drains the Host Adapter's queue best-effort and stops the
// Sync Engine's pending flush timers (spec.md §5).
func (v *Vault) Shutdown() error {
	return v.adapter.Shutdown()
}
