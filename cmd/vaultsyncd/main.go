// Command vaultsyncd is a small demo binary: it initializes a vault
// rooted at an XDG data directory, attaches an in-memory transport pair
// standing in for a second device, and performs a local edit + sync
// round trip end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/webdesserts/obsidian-memory-sub000/internal/fs"
	"github.com/webdesserts/obsidian-memory-sub000/internal/hostadapter"
	"github.com/webdesserts/obsidian-memory-sub000/internal/peers"
	"github.com/webdesserts/obsidian-memory-sub000/internal/tracing"
	"github.com/webdesserts/obsidian-memory-sub000/internal/transport"
	"github.com/webdesserts/obsidian-memory-sub000/pkg/vaultsync"
)

func main() {
	ctx := context.Background()

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share", "vaultsyncd")
	}
	vaultDir := filepath.Join(dataDir, "demo-vault")
	if err := os.MkdirAll(vaultDir, 0o755); err != nil {
		log.Fatal(err)
	}

	tp, err := tracing.InitTracer("vaultsyncd", "http://localhost:14268/api/traces")
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer func() { _ = tp.Shutdown(ctx) }()
	}

	bridgeA, err := fs.NewOSBridge(vaultDir)
	if err != nil {
		log.Fatal(err)
	}
	a, err := vaultsync.New(ctx, vaultsync.Options{
		PeerID: "aaaaaaaaaaaaaaaa",
		Bridge: bridgeA,
		Notify: func(n hostadapter.Notice) {
			fmt.Printf("notice: %s %s: %v\n", n.Kind, n.Path, n.Err)
		},
		OnModified: func(paths []string) {
			fmt.Printf("peer A: sync rewrote %v\n", paths)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer a.Shutdown()

	b, err := vaultsync.New(ctx, vaultsync.Options{
		PeerID: "bbbbbbbbbbbbbbbb",
		Bridge: fs.NewMemBridge(),
		OnModified: func(paths []string) {
			fmt.Printf("peer B: sync rewrote %v\n", paths)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer b.Shutdown()

	tA, tB := transport.NewPipe(16)
	if err := a.Attach(ctx, "conn-a-b", "pipe://b", peers.Outgoing, tA); err != nil {
		log.Fatal(err)
	}
	if err := b.Attach(ctx, "conn-b-a", "pipe://a", peers.Incoming, tB); err != nil {
		log.Fatal(err)
	}

	if err := bridgeA.Write(ctx, "welcome.md", []byte("# Welcome\n\nFirst note synced across peers.\n")); err != nil {
		log.Fatal(err)
	}
	if err := a.OnFileEvent(ctx, hostadapter.EventCreate, "welcome.md", ""); err != nil {
		log.Fatal(err)
	}

	fmt.Println("vaultsyncd demo running. Press Ctrl+C to exit.")
	select {}
}
