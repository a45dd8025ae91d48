package document

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterEntry is one last-writer-wins slot in the frontmatter map.
// Alive is false for a tombstoned key: the slot still participates in
// the Lamport/peerID tiebreak like any other write, it just renders and
// reads as absent. This mirrors how internal/registry tombstones a
// deleted path rather than removing its map entry outright, so a
// concurrent set and delete of the same key still converges.
type frontmatterEntry struct {
	Value   string
	Lamport int64
	PeerID  string
	Alive   bool
}

// wins reports whether candidate should replace current under the
// registry's tiebreak rule: higher Lamport wins, peer ID lexicographic
// order breaks ties, matching internal/registry's rule for consistency.
func (e frontmatterEntry) wins(candidate frontmatterEntry) bool {
	if candidate.Lamport != e.Lamport {
		return candidate.Lamport > e.Lamport
	}
	return candidate.PeerID > e.PeerID
}

// Frontmatter is an ordered last-writer-wins map over a note's YAML
// frontmatter keys. Order is insertion order of first-seen keys, so
// re-serializing a document that was never edited doesn't reshuffle it.
type Frontmatter struct {
	peerID string
	clock  *lamportRef
	order  []string
	byKey  map[string]frontmatterEntry
}

// lamportRef holds the tick/observe functions of the Lamport counter
// Frontmatter stamps its writes with; document.go wires in a counter of
// the document's own, separate from the Text container's.
type lamportRef struct {
	tick    func() int64
	observe func(int64)
}

// NewFrontmatter returns an empty frontmatter map authored by peerID,
// ticking lamport for each local write.
func NewFrontmatter(peerID string, tick func() int64, observe func(int64)) *Frontmatter {
	return &Frontmatter{
		peerID: peerID,
		clock:  &lamportRef{tick: tick, observe: observe},
		byKey:  make(map[string]frontmatterEntry),
	}
}

// Set assigns key=value locally, ticking the frontmatter's Lamport clock.
func (f *Frontmatter) Set(key, value string) {
	entry := frontmatterEntry{Value: value, Lamport: f.clock.tick(), PeerID: f.peerID, Alive: true}
	f.applyEntry(key, entry)
}

// Delete tombstones key locally, ticking the frontmatter's Lamport clock. The
// key still occupies its slot in order/byKey so a concurrent remote
// write for the same key has something to resolve against.
func (f *Frontmatter) Delete(key string) {
	entry := frontmatterEntry{Lamport: f.clock.tick(), PeerID: f.peerID, Alive: false}
	f.applyEntry(key, entry)
}

// ApplyRemote merges a remote entry for key under the LWW rule. alive
// false applies a remote tombstone rather than a value write.
func (f *Frontmatter) ApplyRemote(key string, value string, lamport int64, peerID string, alive bool) {
	f.clock.observe(lamport)
	f.applyEntry(key, frontmatterEntry{Value: value, Lamport: lamport, PeerID: peerID, Alive: alive})
}

func (f *Frontmatter) applyEntry(key string, entry frontmatterEntry) {
	existing, ok := f.byKey[key]
	if !ok {
		f.order = append(f.order, key)
		f.byKey[key] = entry
		return
	}
	if existing.wins(entry) {
		f.byKey[key] = entry
	}
}

// Get returns key's current value, if present and not tombstoned.
func (f *Frontmatter) Get(key string) (string, bool) {
	entry, ok := f.byKey[key]
	if !ok || !entry.Alive {
		return "", false
	}
	return entry.Value, true
}

// Keys returns the live (non-tombstoned) keys in insertion order.
func (f *Frontmatter) Keys() []string {
	keys := make([]string, 0, len(f.order))
	for _, k := range f.order {
		if entry, ok := f.byKey[k]; ok && entry.Alive {
			keys = append(keys, k)
		}
	}
	return keys
}

// Entries returns every key's current entry, for blob serialization.
func (f *Frontmatter) Entries() map[string]frontmatterEntry {
	out := make(map[string]frontmatterEntry, len(f.byKey))
	for k, v := range f.byKey {
		out[k] = v
	}
	return out
}

// LoadEntries rebuilds ordering and state from a previously serialized
// entry set. The serialized set carries no insertion order, so keys are
// re-inserted in sorted order.
func (f *Frontmatter) LoadEntries(entries map[string]frontmatterEntry) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.clock.observe(entries[k].Lamport)
		f.applyEntry(k, entries[k])
	}
}

// Render serializes the frontmatter as a `---`-fenced YAML header. An
// empty Frontmatter renders as an empty string (no header at all).
func (f *Frontmatter) Render() (string, error) {
	if len(f.Keys()) == 0 {
		return "", nil
	}
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range f.order {
		entry, ok := f.byKey[key]
		if !ok || !entry.Alive {
			continue
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: entry.Value},
		)
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n")
	return b.String(), nil
}

// ParseFrontmatter splits raw file content into a frontmatter key/value
// map (as plain strings) and the remaining body. If content has no
// `---` fence, or the header fails to parse as YAML, the whole content
// becomes the body with an empty frontmatter map — matching the Document
// Store's documented fallback.
func ParseFrontmatter(content string) (map[string]string, string) {
	const fence = "---"
	if !strings.HasPrefix(content, fence+"\n") {
		return nil, content
	}
	rest := content[len(fence)+1:]
	end := strings.Index(rest, "\n"+fence)
	if end == -1 {
		return nil, content
	}
	header := rest[:end]
	body := strings.TrimPrefix(rest[end+1+len(fence):], "\n")

	var raw map[string]string
	if err := yaml.Unmarshal([]byte(header), &raw); err != nil {
		return nil, content
	}
	return raw, body
}
