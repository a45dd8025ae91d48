package hostadapter_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webdesserts/obsidian-memory-sub000/internal/fs"
	"github.com/webdesserts/obsidian-memory-sub000/internal/hostadapter"
	"github.com/webdesserts/obsidian-memory-sub000/internal/logging"
	"github.com/webdesserts/obsidian-memory-sub000/internal/membership"
	"github.com/webdesserts/obsidian-memory-sub000/internal/metrics"
	"github.com/webdesserts/obsidian-memory-sub000/internal/peers"
	"github.com/webdesserts/obsidian-memory-sub000/internal/syncengine"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vault"
)

func newTestAdapter(t *testing.T, notify func(hostadapter.Notice)) (*hostadapter.Adapter, *vault.Vault, *fs.MemBridge) {
	t.Helper()
	logger, err := logging.NewLogger("error", "json")
	require.NoError(t, err)

	bridge := fs.NewMemBridge()
	v := vault.New("peera000000000a1", bridge, logger, metrics.New())
	require.NoError(t, v.Init(context.Background()))

	engine := syncengine.New(syncengine.Options{
		LocalPeerID: "peera000000000a1",
		Vault:       v,
		Peers:       peers.New(),
		Membership:  membership.New("peera000000000a1"),
		Logger:      logger,
	})

	a := hostadapter.New(hostadapter.Options{
		Vault:  v,
		Engine: engine,
		Logger: logger,
		Notify: notify,
	})
	return a, v, bridge
}

func TestOnFileEventSkipsNonMarkdown(t *testing.T) {
	a, v, bridge := newTestAdapter(t, nil)
	ctx := context.Background()
	require.NoError(t, bridge.Write(ctx, "note.txt", []byte("hello")))

	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventCreate, "note.txt", ""))

	version, err := v.GetDocumentVersion(ctx, "note.txt")
	require.NoError(t, err)
	require.Nil(t, version, "a non-Markdown file must never reach the vault")
}

func TestOnFileEventAppliesMarkdownCreate(t *testing.T) {
	a, v, bridge := newTestAdapter(t, nil)
	ctx := context.Background()
	require.NoError(t, bridge.Write(ctx, "note.md", []byte("# Hi\n")))

	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventCreate, "note.md", ""))

	version, err := v.GetDocumentVersion(ctx, "note.md")
	require.NoError(t, err)
	require.NotNil(t, version)
}

func TestOnFileEventDeleteTombstonesRegistry(t *testing.T) {
	a, v, bridge := newTestAdapter(t, nil)
	ctx := context.Background()
	require.NoError(t, bridge.Write(ctx, "note.md", []byte("# Hi\n")))
	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventCreate, "note.md", ""))

	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventDelete, "note.md", ""))

	version, err := v.GetDocumentVersion(ctx, "note.md")
	require.NoError(t, err)
	require.Nil(t, version, "a deleted path must no longer resolve")
}

func TestOnFileEventRenameMovesRegistryEntry(t *testing.T) {
	a, v, bridge := newTestAdapter(t, nil)
	ctx := context.Background()
	require.NoError(t, bridge.Write(ctx, "a.md", []byte("X")))
	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventCreate, "a.md", ""))

	require.NoError(t, bridge.Write(ctx, "b.md", []byte("X")))
	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventRename, "a.md", "b.md"))

	oldVersion, err := v.GetDocumentVersion(ctx, "a.md")
	require.NoError(t, err)
	require.Nil(t, oldVersion)

	newVersion, err := v.GetDocumentVersion(ctx, "b.md")
	require.NoError(t, err)
	require.NotNil(t, newVersion)
}

func TestOnFileEventOversizedFileSurfacesNotice(t *testing.T) {
	var notices []hostadapter.Notice
	a, _, bridge := newTestAdapter(t, func(n hostadapter.Notice) { notices = append(notices, n) })
	ctx := context.Background()

	huge := bytes.Repeat([]byte("a"), 11<<20)
	require.NoError(t, bridge.Write(ctx, "huge.md", huge))

	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventCreate, "huge.md", ""), "oversized files are reported, not returned as errors")
	require.Len(t, notices, 1)
	require.Equal(t, "OversizedFile", notices[0].Kind)
	require.Equal(t, "huge.md", notices[0].Path)
}

func TestShutdownRejectsFurtherWork(t *testing.T) {
	a, _, _ := newTestAdapter(t, nil)
	require.NoError(t, a.Shutdown())

	err := a.OnFileEvent(context.Background(), hostadapter.EventModify, "note.md", "")
	require.Error(t, err)
}
