package vaultsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webdesserts/obsidian-memory-sub000/internal/fs"
	"github.com/webdesserts/obsidian-memory-sub000/internal/hostadapter"
	"github.com/webdesserts/obsidian-memory-sub000/internal/peers"
	"github.com/webdesserts/obsidian-memory-sub000/internal/transport"
	"github.com/webdesserts/obsidian-memory-sub000/pkg/vaultsync"
)

func TestGeneratePeerIDIsSixteenHexChars(t *testing.T) {
	id, err := vaultsync.GeneratePeerID()
	require.NoError(t, err)
	require.Len(t, id, 16)
	for _, r := range id {
		require.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "peer id must be lowercase hex, got %q", id)
	}

	other, err := vaultsync.GeneratePeerID()
	require.NoError(t, err)
	require.NotEqual(t, id, other)
}

func TestNewRequiresBridge(t *testing.T) {
	_, err := vaultsync.New(context.Background(), vaultsync.Options{})
	require.Error(t, err)
}

// TestEndToEndFileEditSyncsAcrossAttachedPeers exercises the facade the
// way an embedding host would: two independently constructed Vaults,
// attached over an in-process pipe, converge on a local edit.
func TestEndToEndFileEditSyncsAcrossAttachedPeers(t *testing.T) {
	ctx := context.Background()

	bridgeA := fs.NewMemBridge()
	modifiedA := make(chan []string, 8)
	a, err := vaultsync.New(ctx, vaultsync.Options{
		PeerID:     "peera000000000a1",
		Bridge:     bridgeA,
		OnModified: func(paths []string) { modifiedA <- paths },
	})
	require.NoError(t, err)
	defer a.Shutdown()

	bridgeB := fs.NewMemBridge()
	modifiedB := make(chan []string, 8)
	b, err := vaultsync.New(ctx, vaultsync.Options{
		PeerID:     "peerb000000000b1",
		Bridge:     bridgeB,
		OnModified: func(paths []string) { modifiedB <- paths },
	})
	require.NoError(t, err)
	defer b.Shutdown()

	tA, tB := transport.NewPipe(32)
	require.NoError(t, a.Attach(ctx, "conn-a-b", "pipe://b", peers.Outgoing, tA))
	require.NoError(t, b.Attach(ctx, "conn-b-a", "pipe://a", peers.Incoming, tB))

	require.NoError(t, bridgeA.Write(ctx, "welcome.md", []byte("# Welcome\n")))
	require.NoError(t, a.OnFileEvent(ctx, hostadapter.EventCreate, "welcome.md", ""))

	select {
	case paths := <-modifiedB:
		require.Equal(t, []string{"welcome.md"}, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("peer B never observed the synced file")
	}

	data, err := bridgeB.Read(ctx, "welcome.md")
	require.NoError(t, err)
	require.Equal(t, "# Welcome\n", string(data))
}
