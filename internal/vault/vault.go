// Package vault implements the Vault coordinator: the top-level owner
// of the Document Store and Path Registry, the last-synced-version
// loop-suppression map, and the operations the Host Adapter and Sync
// Engine drive it through.
package vault

import (
	"context"
	"encoding/json"
	"path"
	"sync"

	"github.com/webdesserts/obsidian-memory-sub000/internal/clock"
	"github.com/webdesserts/obsidian-memory-sub000/internal/document"
	"github.com/webdesserts/obsidian-memory-sub000/internal/fs"
	"github.com/webdesserts/obsidian-memory-sub000/internal/logging"
	"github.com/webdesserts/obsidian-memory-sub000/internal/metrics"
	"github.com/webdesserts/obsidian-memory-sub000/internal/registry"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vaulterrors"
)

const (
	syncDir         = ".sync"
	docsDir         = ".sync/docs"
	registryPath    = ".sync/registry.crdt"
	settingsPath    = ".sync/settings.json"
	maxTrackedPaths = 10000
)

// KnownPeer is one entry in `.sync/settings.json`'s knownPeers list.
type KnownPeer struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// settings is the full shape of `.sync/settings.json`.
type settings struct {
	KnownPeers []KnownPeer `json:"knownPeers"`
}

// Vault owns the Document Store, Path Registry, and the bookkeeping
// that lets onFileChanged distinguish a genuine local edit from a sync
// echo. Its exported methods assume external serialization (the Host
// Adapter's FIFO queue); internal locking here is defense in depth, not
// the primary concurrency contract.
type Vault struct {
	mu sync.Mutex

	peerID  string
	bridge  fs.Bridge
	logger  *logging.Logger
	metrics *metrics.Metrics

	initialized bool
	settings    settings

	registry *registry.Registry
	docs     map[string]*document.Document // docID -> loaded Document
	docPath  map[string]string             // docID -> path, for persistence

	lastSyncedVersion map[string]clock.VersionVector
	pendingBroadcast  map[string]bool
}

// New returns a Vault for peerID, unopened until Init is called.
func New(peerID string, bridge fs.Bridge, logger *logging.Logger, m *metrics.Metrics) *Vault {
	return &Vault{
		peerID:            peerID,
		bridge:            bridge,
		logger:            logger,
		metrics:           m,
		docs:              make(map[string]*document.Document),
		docPath:           make(map[string]string),
		lastSyncedVersion: make(map[string]clock.VersionVector),
		pendingBroadcast:  make(map[string]bool),
	}
}

// Init creates `.sync/` and `.sync/docs/` if absent, loads an existing
// registry blob or starts a fresh one, and loads `.sync/settings.json`.
// A Vault that has not called Init rejects every other operation with
// NotInitialized.
func (v *Vault) Init(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.bridge.Mkdir(ctx, syncDir); err != nil {
		return err
	}
	if err := v.bridge.Mkdir(ctx, docsDir); err != nil {
		return err
	}

	if data, err := v.bridge.Read(ctx, registryPath); err == nil {
		reg, err := registry.DecodeBlob(v.peerID, data)
		if err != nil {
			v.logger.WithError(err).Warn("registry blob corrupt, starting fresh")
			reg = registry.New(v.peerID)
		}
		v.registry = reg
	} else {
		v.registry = registry.New(v.peerID)
	}

	v.settings = loadSettings(ctx, v.bridge, v.logger)
	v.initialized = true
	if v.metrics != nil {
		v.metrics.RegistryEntries.Set(float64(len(v.registry.AllPaths())))
	}
	return nil
}

func loadSettings(ctx context.Context, bridge fs.Bridge, logger *logging.Logger) settings {
	data, err := bridge.Read(ctx, settingsPath)
	if err != nil {
		return settings{}
	}
	var s settings
	if err := json.Unmarshal(data, &s); err != nil {
		logger.WithError(err).Warn("settings.json corrupt, ignoring")
		return settings{}
	}

	seen := make(map[string]struct{}, len(s.KnownPeers))
	deduped := s.KnownPeers[:0]
	for _, p := range s.KnownPeers {
		if p.URL == "" {
			continue
		}
		if _, ok := seen[p.URL]; ok {
			continue
		}
		seen[p.URL] = struct{}{}
		deduped = append(deduped, p)
	}
	s.KnownPeers = deduped
	return s
}

// KnownPeers returns the peers loaded from settings.json.
func (v *Vault) KnownPeers() []KnownPeer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.settings.KnownPeers
}

func (v *Vault) requireInitializedLocked() error {
	if !v.initialized {
		return vaulterrors.NotInitialized
	}
	return nil
}

func docBlobPath(docID string) string {
	return path.Join(docsDir, docID+".crdt")
}

// loadOrCreateDoc returns the in-memory Document for docID, lazily
// loading its blob from disk on first access. Caller holds v.mu.
func (v *Vault) loadOrCreateDocLocked(ctx context.Context, docID string) (*document.Document, error) {
	if doc, ok := v.docs[docID]; ok {
		return doc, nil
	}
	data, err := v.bridge.Read(ctx, docBlobPath(docID))
	var doc *document.Document
	if err != nil {
		doc, err = document.OpenOrCreate(v.peerID, docID, nil)
	} else {
		doc, err = document.OpenOrCreate(v.peerID, docID, data)
	}
	if err != nil {
		return nil, err
	}
	v.docs[docID] = doc
	if existingPath, ok := v.docPath[docID]; !ok || existingPath == "" {
		v.docPath[docID] = v.pathForDocIDLocked(docID)
	}
	return doc, nil
}

// pathForDocIDLocked resolves docID's current alive path by walking
// AllPaths, since the registry itself doesn't expose a direct
// docID -> path lookup. Caller holds v.mu.
func (v *Vault) pathForDocIDLocked(docID string) string {
	for _, p := range v.registry.AllPaths() {
		if id, ok := v.registry.Lookup(p); ok && id == docID {
			return p
		}
	}
	return ""
}

// persistDocLocked writes docID's blob to disk. Caller holds v.mu.
func (v *Vault) persistDocLocked(ctx context.Context, doc *document.Document) error {
	blob, err := doc.EncodeBlob()
	if err != nil {
		return err
	}
	return v.bridge.Write(ctx, docBlobPath(doc.DocID()), blob)
}

func (v *Vault) persistRegistryLocked(ctx context.Context) error {
	blob, err := v.registry.EncodeBlob()
	if err != nil {
		return err
	}
	return v.bridge.Write(ctx, registryPath, blob)
}

// evictIfOverLocked enforces the ~10,000-entry bound on the
// lastSyncedVersion / pendingBroadcast bookkeeping maps (§5): once a map
// is over limit it evicts one arbitrary entry, whichever Go's randomized
// map iteration yields first. Neither recency nor insertion order is
// tracked, so the evicted entry may be the most recent one.
func evictIfOverLocked[V any](m map[string]V, limit int) {
	if len(m) <= limit {
		return
	}
	for k := range m {
		delete(m, k)
		break
	}
}

