package document

import "testing"

func TestTextInsertSequential(t *testing.T) {
	text := NewText("peerA")
	var parent TextID
	for _, r := range "abc" {
		op := text.Insert(r, parent)
		parent = op.ID
	}
	if got := text.Value(); got != "abc" {
		t.Errorf("expected 'abc', got %q", got)
	}
}

func TestTextDeleteTombstones(t *testing.T) {
	text := NewText("peerA")
	op1 := text.Insert('a', rootID)
	text.Insert('b', op1.ID)
	text.Delete(op1.ID)
	if got := text.Value(); got != "b" {
		t.Errorf("expected 'b', got %q", got)
	}
}

func TestTextMergeConvergesConcurrentInserts(t *testing.T) {
	a := NewText("peerA")
	b := NewText("peerB")

	opA := a.Insert('x', rootID)
	opB := b.Insert('y', rootID)

	a.Apply(opB)
	b.Apply(opA)

	if a.Value() != b.Value() {
		t.Errorf("replicas diverged: a=%q b=%q", a.Value(), b.Value())
	}
}

func TestTextMergeHandlesOutOfOrderOrphans(t *testing.T) {
	a := NewText("peerA")
	op1 := a.Insert('a', rootID)
	op2 := a.Insert('b', op1.ID)
	op3 := a.Insert('c', op2.ID)

	b := NewText("peerB")
	// Apply out of causal order: op3 arrives before op2.
	b.Apply(op1)
	b.Apply(op3)
	b.Apply(op2)

	if a.Value() != b.Value() {
		t.Errorf("replicas diverged: a=%q b=%q", a.Value(), b.Value())
	}
	if b.Value() != "abc" {
		t.Errorf("expected 'abc', got %q", b.Value())
	}
}

func TestApplyLocalChangeProducesRoundTrippableOps(t *testing.T) {
	text := NewText("peerA")
	ops := text.ApplyLocalChange("hello")
	if text.Value() != "hello" {
		t.Fatalf("expected 'hello', got %q", text.Value())
	}

	replica := NewText("peerB")
	for _, op := range ops {
		replica.Apply(op)
	}
	if replica.Value() != "hello" {
		t.Errorf("expected replica to converge to 'hello', got %q", replica.Value())
	}

	moreOps := text.ApplyLocalChange("help")
	for _, op := range moreOps {
		replica.Apply(op)
	}
	if replica.Value() != "help" {
		t.Errorf("expected replica to converge to 'help', got %q", replica.Value())
	}
}

func TestNodesRoundTripViaLoadNodes(t *testing.T) {
	text := NewText("peerA")
	text.ApplyLocalChange("abc")
	nodes := text.Nodes()

	reloaded := LoadNodes("peerA", nodes)
	if reloaded.Value() != "abc" {
		t.Errorf("expected 'abc' after reload, got %q", reloaded.Value())
	}
}
