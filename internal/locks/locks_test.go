package locks

import (
	"testing"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/crdtdoc"
)

func TestAcquireIsIdempotentForSameOwner(t *testing.T) {
	table := NewInMemoryTable()
	first := table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)
	second := table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)

	if len(first.Acquired) != 1 || len(first.Blocked) != 0 {
		t.Fatalf("unexpected first acquire: %+v", first)
	}
	if len(second.Acquired) != 1 || len(second.Blocked) != 0 {
		t.Fatalf("repeated acquire by same owner should succeed again: %+v", second)
	}
}

func TestAcquireBlocksForeignOwner(t *testing.T) {
	table := NewInMemoryTable()
	table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)
	res := table.Acquire("n.ipynb", []string{"c1"}, "B", time.Minute)

	if len(res.Acquired) != 0 {
		t.Fatalf("expected no acquisitions, got %+v", res.Acquired)
	}
	if len(res.Blocked) != 1 || res.Blocked[0].Owner != "A" {
		t.Fatalf("expected blocked by A, got %+v", res.Blocked)
	}
}

func TestExpiredLockAllowsNewOwner(t *testing.T) {
	table := NewInMemoryTable()
	past := time.Now().Add(-time.Second)
	// Acquire replaces a non-positive TTL with DefaultTTL, so the expired
	// lock is placed in the table directly.
	table.entries[keyFor("n.ipynb", "c1")] = Entry{CellID: "c1", Path: "n.ipynb", Owner: "A", AcquiredAt: past.Add(-time.Minute), ExpiresAt: past}

	res := table.Acquire("n.ipynb", []string{"c1"}, "B", time.Minute)
	if len(res.Acquired) != 1 || res.Acquired[0].Owner != "B" {
		t.Fatalf("expected B to acquire past-expiry lock, got %+v", res)
	}
}

func TestReleaseRequiresOwnershipUnlessForced(t *testing.T) {
	table := NewInMemoryTable()
	table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)

	released := table.Release("n.ipynb", []string{"c1"}, "B", false)
	if len(released) != 0 {
		t.Fatalf("expected no release by non-owner, got %v", released)
	}

	released = table.Release("n.ipynb", []string{"c1"}, "B", true)
	if len(released) != 1 {
		t.Fatalf("expected forced release to succeed, got %v", released)
	}
}

func TestReleaseIdempotenceYieldsEmptySecondTime(t *testing.T) {
	table := NewInMemoryTable()
	table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)

	first := table.Release("n.ipynb", []string{"c1"}, "A", false)
	second := table.Release("n.ipynb", []string{"c1"}, "A", false)

	if len(first) != 1 {
		t.Fatalf("expected first release to remove the lock, got %v", first)
	}
	if len(second) != 0 {
		t.Fatalf("expected second release to find nothing, got %v", second)
	}
}

func TestCheckExcludesCaller(t *testing.T) {
	table := NewInMemoryTable()
	table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)

	if _, locked := table.Check("n.ipynb", "c1", "A"); locked {
		t.Fatalf("expected caller's own lock not reported as blocking")
	}
	if _, locked := table.Check("n.ipynb", "c1", "B"); !locked {
		t.Fatalf("expected foreign lock reported as blocking")
	}
}

func TestSharedTableCompetingAcquireHasExactlyOneWinner(t *testing.T) {
	doc := crdtdoc.NewDocument()
	table := NewSharedTable(doc, "n.ipynb")

	resA := table.Acquire("n.ipynb", []string{"c1"}, "A", time.Minute)
	resB := table.Acquire("n.ipynb", []string{"c1"}, "B", time.Minute)

	aWon := len(resA.Acquired) == 1 && len(resB.Blocked) == 1
	bWon := len(resB.Acquired) == 1 && len(resA.Blocked) == 1
	if !aWon && !bWon {
		t.Fatalf("expected exactly one winner, got A=%+v B=%+v", resA, resB)
	}
}
