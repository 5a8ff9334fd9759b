package hnsw

import "testing"

func TestEntryPointPolicyInstallsFirstPoint(t *testing.T) {
	p := NewEntryPointPolicy(4)
	if _, ok := p.Peek(); ok {
		t.Fatalf("expected no entry point before any insertion")
	}

	prev, hadPrev := p.NewPoint(1, 3)
	if hadPrev {
		t.Fatalf("expected no previous entry for the first point, got %+v", prev)
	}

	ep, ok := p.Peek()
	if !ok || ep.Id != 1 || ep.Level != 3 {
		t.Fatalf("expected entry {1,3}, got %+v", ep)
	}
}

func TestEntryPointPolicyPushesToExtrasWhenNotHigher(t *testing.T) {
	p := NewEntryPointPolicy(4)
	p.NewPoint(1, 5)

	prev, hadPrev := p.NewPoint(2, 5)
	if !hadPrev || prev.Id != 1 {
		t.Fatalf("expected previous entry {1,5} returned, got %+v", prev)
	}
	ep, _ := p.Peek()
	if ep.Id != 1 {
		t.Fatalf("expected entry to remain point 1 (equal level does not displace), got %+v", ep)
	}
}

func TestEntryPointPolicySwapsWhenStrictlyHigher(t *testing.T) {
	p := NewEntryPointPolicy(4)
	p.NewPoint(1, 2)

	prev, hadPrev := p.NewPoint(2, 5)
	if !hadPrev || prev.Id != 1 || prev.Level != 2 {
		t.Fatalf("expected previous entry {1,2} returned, got %+v", prev)
	}
	ep, _ := p.Peek()
	if ep.Id != 2 || ep.Level != 5 {
		t.Fatalf("expected new entry {2,5} to win, got %+v", ep)
	}
}

func TestEntryPointPolicyFallsBackToExtras(t *testing.T) {
	p := NewEntryPointPolicy(4)
	p.NewPoint(1, 2)
	p.NewPoint(2, 5) // swaps in, demotes 1 (level 2) to extras
	p.NewPoint(3, 7) // swaps in, demotes 2 (level 5) to extras

	if _, ok := p.GetEntryPoint(); !ok {
		t.Fatalf("expected an entry point to be available")
	}

	// Peek still reflects the installed best regardless of extras.
	ep, _ := p.Peek()
	if ep.Id != 3 || ep.Level != 7 {
		t.Fatalf("expected best entry {3,7}, got %+v", ep)
	}

	// With no installed best, GetEntryPoint falls back to the
	// highest-level extra: point 2 at level 5.
	p.best = nil
	fallback, ok := p.GetEntryPoint()
	if !ok || fallback.Id != 2 || fallback.Level != 5 {
		t.Fatalf("expected fallback to extra {2,5}, got %+v", fallback)
	}
}
