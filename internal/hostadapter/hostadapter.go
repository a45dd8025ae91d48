// Package hostadapter implements the Host Adapter (spec.md §4.I): it
// filters host file events, serializes every Vault-mutating call
// through a single-owner FIFO queue, and bridges the Sync Engine to
// the transport layer.
package hostadapter

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/webdesserts/obsidian-memory-sub000/internal/fs"
	"github.com/webdesserts/obsidian-memory-sub000/internal/logging"
	"github.com/webdesserts/obsidian-memory-sub000/internal/metrics"
	"github.com/webdesserts/obsidian-memory-sub000/internal/syncengine"
	"github.com/webdesserts/obsidian-memory-sub000/internal/vault"
)

// Notice is a user-visible message surfaced to the host for the two
// error kinds spec.md §7 names as reaching the user: OversizedFile and
// NotInitialized.
type Notice struct {
	Kind string // "OversizedFile" or "NotInitialized"
	Path string
	Err  error
}

// Adapter owns the single FIFO actor queue that serializes every call
// into the Vault, Path Registry, Document Store, Peer Registry, and
// Membership — spec.md §5's "single logical actor" contract —
// generalized from the teacher's sync.WaitGroup accept-loop shutdown
// into a request/response actor that also carries results back to
// callers.
type Adapter struct {
	vault   *vault.Vault
	engine  *syncengine.Engine
	filter  *fs.Filter
	logger  *logging.Logger
	metrics *metrics.Metrics
	notify  func(Notice)

	jobs chan func()
	grp  *errgroup.Group

	mu   sync.Mutex
	done bool
}

// Options configures a new Adapter.
type Options struct {
	Vault       *vault.Vault
	Engine      *syncengine.Engine
	IgnoreGlobs []string
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Notify      func(Notice)
	QueueDepth  int
}

// New constructs an Adapter and starts its single dispatch worker.
func New(opts Options) *Adapter {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	a := &Adapter{
		vault:   opts.Vault,
		engine:  opts.Engine,
		filter:  fs.NewFilter(opts.IgnoreGlobs),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		notify:  opts.Notify,
		jobs:    make(chan func(), depth),
	}
	if a.notify == nil {
		a.notify = func(Notice) {}
	}

	var grp errgroup.Group
	a.grp = &grp
	a.grp.Go(func() error {
		for job := range a.jobs {
			job()
		}
		return nil
	})
	return a
}

// Enqueue submits fn to the FIFO queue and blocks until it has run,
// returning its result. Concurrent callers are served in submission
// order (spec.md §5).
func (a *Adapter) Enqueue(fn func() error) error {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return fmt.Errorf("hostadapter: queue is shut down")
	}
	result := make(chan error, 1)
	a.jobs <- func() { result <- fn() }
	a.mu.Unlock()
	return <-result
}

// EnqueueAsync submits fn without waiting for it to complete. Used by
// callers that must not block on the actor queue themselves — the
// Sync Engine's per-path flush timer and the Host Adapter's own
// transport read loops (spec.md §9's throttle-refire decision).
func (a *Adapter) EnqueueAsync(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return
	}
	a.jobs <- fn
}

// Shutdown closes the queue to new work, lets the worker drain
// whatever was already submitted, stops the Sync Engine's pending
// flush timers, and waits for the worker to exit — "drains the queue
// best-effort" per spec.md §5.
func (a *Adapter) Shutdown() error {
	a.mu.Lock()
	if a.done {
		a.mu.Unlock()
		return nil
	}
	a.done = true
	close(a.jobs)
	a.mu.Unlock()

	a.engine.Shutdown()
	return a.grp.Wait()
}
