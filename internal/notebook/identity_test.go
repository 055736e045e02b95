package notebook

import (
	"errors"
	"testing"

	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

func TestResolveSinglePrefixMatch(t *testing.T) {
	ids := []string{"abc12345-full", "def67890-full"}
	idx, err := Resolve("abc", ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}
}

func TestResolveNoMatchIsNotFound(t *testing.T) {
	_, err := Resolve("zzz", []string{"abc12345"})
	var nf *notebookerr.NotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestResolveAmbiguousSharedPrefix(t *testing.T) {
	ids := []string{"abc12345-one", "abc12345-two"}
	_, err := Resolve("abc12345", ids)
	var amb *notebookerr.Ambiguous
	if !errors.As(err, &amb) {
		t.Fatalf("expected Ambiguous, got %v", err)
	}
	if len(amb.Indices) != 2 {
		t.Fatalf("expected 2 ambiguous indices, got %v", amb.Indices)
	}
}

func TestResolveTruncatedAndFullAgree(t *testing.T) {
	ids := []string{"abcdef01-2345-6789-abcd-ef0123456789"}
	byFull, err := Resolve(ids[0], ids)
	if err != nil {
		t.Fatalf("resolve full: %v", err)
	}
	byTruncated, err := Resolve(TruncatedID(ids[0]), ids)
	if err != nil {
		t.Fatalf("resolve truncated: %v", err)
	}
	if byFull != byTruncated {
		t.Fatalf("expected resolve(full) == resolve(truncated), got %d != %d", byFull, byTruncated)
	}
}

func TestResolveManyDeduplicatesAndSorts(t *testing.T) {
	ids := []string{"aaa", "bbb", "ccc"}
	out, err := ResolveMany([]string{"ccc", "aaa", "aaa"}, ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 || out[0] != 0 || out[1] != 2 {
		t.Fatalf("expected [0 2], got %v", out)
	}
}
