package fsdoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestReadNormalizesArraySource(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "nb.ipynb", `{
 "cells": [
  {"id": "c1", "cell_type": "code", "source": ["x = 1\n", "y = 2"], "metadata": {}}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 5
}`)

	nb, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(nb.Cells) != 1 {
		t.Fatalf("expected 1 cell, got %d", len(nb.Cells))
	}
	if got, want := nb.Cells[0].Source, "x = 1\ny = 2"; got != want {
		t.Fatalf("source = %q, want %q", got, want)
	}
}

func TestRoundTripPreservesFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "nb.ipynb", `{
 "cells": [
  {"id": "c1", "cell_type": "code", "source": ["a = 1"], "metadata": {"tags": ["x"]}, "execution_count": 3, "outputs": []}
 ],
 "metadata": {"kernelspec": {"name": "python3"}},
 "nbformat": 4,
 "nbformat_minor": 5
}`)

	first, err := Read(path)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if err := Write(path, first); err != nil {
		t.Fatalf("write: %v", err)
	}
	second, err := Read(path)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}

	if diff := cmp.Diff(first.Cells[0].Source, second.Cells[0].Source); diff != "" {
		t.Fatalf("source mismatch (-first +second):\n%s", diff)
	}
	if first.Cells[0].Type != second.Cells[0].Type {
		t.Fatalf("type mismatch: %v != %v", first.Cells[0].Type, second.Cells[0].Type)
	}
	if first.Cells[0].ID != second.Cells[0].ID {
		t.Fatalf("id mismatch: %v != %v", first.Cells[0].ID, second.Cells[0].ID)
	}
	if *first.Cells[0].ExecutionCount != *second.Cells[0].ExecutionCount {
		t.Fatalf("execution count mismatch")
	}
}

func TestWriteWriteIsByteStable(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "nb.ipynb", `{
 "cells": [{"id": "c1", "cell_type": "markdown", "source": ["hello"], "metadata": {}}],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 5
}`)

	nb, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := Write(path, nb); err != nil {
		t.Fatalf("first write: %v", err)
	}
	firstBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}

	reread, err := Read(path)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if err := Write(path, reread); err != nil {
		t.Fatalf("second write: %v", err)
	}
	secondBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back again: %v", err)
	}

	if string(firstBytes) != string(secondBytes) {
		t.Fatalf("write(read(nb)) != write(read(read(nb))):\n%s\n---\n%s", firstBytes, secondBytes)
	}
}

func TestEmptySourceRoundTripsToEmptyArray(t *testing.T) {
	nb := &notebook.Notebook{
		Cells:    []*notebook.Cell{{ID: "c1", Type: notebook.CellCode, Source: "", Metadata: map[string]any{}}},
		Metadata: map[string]any{},
		NBFormat: 4, NBFormatMinor: 5,
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.ipynb")
	if err := Write(path, nb); err != nil {
		t.Fatalf("write: %v", err)
	}
	reread, err := Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reread.Cells[0].Source != "" {
		t.Fatalf("expected empty source, got %q", reread.Cells[0].Source)
	}
}
