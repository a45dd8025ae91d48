package document

import (
	"strconv"
	"testing"
)

func BenchmarkApplyLocalChange(b *testing.B) {
	doc, err := OpenOrCreate("peerA", "bench-doc", nil)
	if err != nil {
		b.Fatalf("OpenOrCreate failed: %v", err)
	}
	content := "# Heading\n\nSome paragraph text that grows a little each round.\n"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		content += strconv.Itoa(i) + " "
		if _, err := doc.ApplyLocalChange(content); err != nil {
			b.Fatalf("ApplyLocalChange failed: %v", err)
		}
	}
}

func BenchmarkApplyRemoteDelta(b *testing.B) {
	local, err := OpenOrCreate("peerA", "bench-doc", nil)
	if err != nil {
		b.Fatalf("OpenOrCreate failed: %v", err)
	}
	remote, err := OpenOrCreate("peerB", "bench-doc", nil)
	if err != nil {
		b.Fatalf("OpenOrCreate failed: %v", err)
	}

	deltas := make([]Delta, b.N)
	content := "seed\n"
	for i := 0; i < b.N; i++ {
		content += strconv.Itoa(i) + "\n"
		d, err := remote.ApplyLocalChange(content)
		if err != nil {
			b.Fatalf("ApplyLocalChange failed: %v", err)
		}
		deltas[i] = d
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		local.ApplyRemoteDelta(deltas[i])
	}
}
