package clock

import "testing"

func TestIncrement(t *testing.T) {
	v := NewVersionVector()
	v = Increment(v, "peer1")
	if v["peer1"] != 1 {
		t.Errorf("Expected 1, got %d", v["peer1"])
	}
	v = Increment(v, "peer1")
	if v["peer1"] != 2 {
		t.Errorf("Expected 2, got %d", v["peer1"])
	}
}

func TestIncrementNil(t *testing.T) {
	var v VersionVector
	v = Increment(v, "peer1")
	if v["peer1"] != 1 {
		t.Errorf("Expected 1, got %d", v["peer1"])
	}
}

func TestMerge(t *testing.T) {
	v1 := VersionVector{"a": 1, "b": 2}
	v2 := VersionVector{"a": 3, "c": 4}
	merged := Merge(v1, v2)
	if merged["a"] != 3 || merged["b"] != 2 || merged["c"] != 4 {
		t.Errorf("Merge failed: %v", merged)
	}
}

func TestCompare(t *testing.T) {
	v1 := VersionVector{"a": 1, "b": 2}
	v2 := VersionVector{"a": 1, "b": 2}
	if Compare(v1, v2) != Equal {
		t.Error("Expected Equal")
	}

	v3 := VersionVector{"a": 2, "b": 2}
	if Compare(v1, v3) != Before {
		t.Error("Expected Before")
	}

	v4 := VersionVector{"a": 0, "b": 2}
	if Compare(v1, v4) != After {
		t.Error("Expected After")
	}

	v5 := VersionVector{"a": 2, "b": 1}
	if Compare(v1, v5) != Concurrent {
		t.Error("Expected Concurrent")
	}
}

func TestHappensBefore(t *testing.T) {
	v1 := VersionVector{"a": 1, "b": 2}
	v2 := VersionVector{"a": 1, "b": 2}
	if !HappensBefore(v1, v2) {
		t.Error("Equal should happen before")
	}

	v3 := VersionVector{"a": 2, "b": 2}
	if !HappensBefore(v1, v3) {
		t.Error("Before should happen before")
	}

	v4 := VersionVector{"a": 0, "b": 2}
	if HappensBefore(v1, v4) {
		t.Error("After should not happen before")
	}
}

func TestIncludes(t *testing.T) {
	a := VersionVector{"a": 3, "b": 1}
	b := VersionVector{"a": 2}
	if !Includes(a, b) {
		t.Error("a should include b")
	}
	if Includes(b, a) {
		t.Error("b should not include a")
	}
	if !Includes(a, VersionVector{}) {
		t.Error("every vector includes the empty vector")
	}
}

func TestClone(t *testing.T) {
	v := VersionVector{"a": 1, "b": 2}
	cloned := Clone(v)
	if cloned["a"] != 1 || cloned["b"] != 2 {
		t.Errorf("Clone failed: %v", cloned)
	}
	cloned["a"] = 3
	if v["a"] != 1 {
		t.Error("Clone should be independent")
	}
}

func TestCloneNil(t *testing.T) {
	var v VersionVector
	cloned := Clone(v)
	if cloned != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := VersionVector{"a": 7, "b": 42}
	data, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded["a"] != 7 || decoded["b"] != 42 {
		t.Errorf("round trip mismatch: %v", decoded)
	}
}

func TestDecodeEmpty(t *testing.T) {
	v, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode of nil should not error: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("expected empty vector, got %v", v)
	}
}

func TestLamportTickObserve(t *testing.T) {
	var l Lamport
	if got := l.Tick(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	l.Observe(10)
	if l.Current() != 10 {
		t.Errorf("expected observe to advance to 10, got %d", l.Current())
	}
	l.Observe(3)
	if l.Current() != 10 {
		t.Errorf("observe should not move clock backwards, got %d", l.Current())
	}
	if got := l.Tick(); got != 11 {
		t.Errorf("expected tick after observe to be 11, got %d", got)
	}
}
