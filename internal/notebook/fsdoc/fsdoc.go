// Package fsdoc implements the filesystem backend (§4.2 of spec.md): it
// reads a notebook from disk, normalizing its cell sources into the plain
// string form the rest of the engine expects, and writes it back out in the
// exact notebook-standard wire shape (1-space indent, trailing newline,
// source as an array of trailing-newline-terminated lines).
package fsdoc

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
	"github.com/jupyter-collab/notebook-engine/internal/obslog"
)

// wireCell is the on-disk shape of a single cell.
type wireCell struct {
	ID             string             `json:"id,omitempty"`
	CellType       string             `json:"cell_type"`
	Source         json.RawMessage    `json:"source"`
	Metadata       map[string]any     `json:"metadata"`
	ExecutionCount *int               `json:"execution_count,omitempty"`
	Outputs        []notebook.Output  `json:"outputs,omitempty"`
}

// wireNotebook is the on-disk notebook-standard shape.
type wireNotebook struct {
	Cells         []wireCell     `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// Read loads and normalizes a notebook from path.
func Read(path string) (*notebook.Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &notebookerr.IoError{Path: path, Err: err}
	}

	var wn wireNotebook
	if err := json.Unmarshal(data, &wn); err != nil {
		return nil, &notebookerr.ParseError{Path: path, Err: err}
	}

	nb := &notebook.Notebook{
		Metadata:      wn.Metadata,
		NBFormat:      wn.NBFormat,
		NBFormatMinor: wn.NBFormatMinor,
	}
	if nb.NBFormat == 0 {
		nb.NBFormat = 4
		nb.NBFormatMinor = 5
	}
	if nb.Metadata == nil {
		nb.Metadata = map[string]any{}
	}

	for _, wc := range wn.Cells {
		cellType := notebook.CellType(wc.CellType)
		if cellType == "" {
			cellType = notebook.CellCode
		}
		cell := &notebook.Cell{
			ID:             wc.ID,
			Type:           cellType,
			Source:         decodeSource(wc.Source),
			Metadata:       wc.Metadata,
			ExecutionCount: wc.ExecutionCount,
			Outputs:        wc.Outputs,
		}
		if cell.Metadata == nil {
			cell.Metadata = map[string]any{}
		}
		nb.Cells = append(nb.Cells, cell)
	}

	obslog.Debug("fsdoc: read %s (%d cells)", path, len(nb.Cells))
	return nb, nil
}

// decodeSource normalizes the raw JSON source field (array of lines, plain
// string, or absent) into a single joined string (§4.2).
func decodeSource(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asLines []string
	if err := json.Unmarshal(raw, &asLines); err == nil {
		return strings.Join(asLines, "")
	}

	return ""
}

// Write serializes nb back to path with 1-space indent, trailing newline,
// and source split into trailing-newline-terminated lines per cell (§4.2).
func Write(path string, nb *notebook.Notebook) error {
	wn := wireNotebook{
		Metadata:      nb.Metadata,
		NBFormat:      nb.NBFormat,
		NBFormatMinor: nb.NBFormatMinor,
	}
	if wn.NBFormat == 0 {
		wn.NBFormat = 4
		wn.NBFormatMinor = 5
	}

	for _, cell := range nb.Cells {
		lines := encodeSource(cell.Source)
		linesJSON, err := json.Marshal(lines)
		if err != nil {
			return &notebookerr.IoError{Path: path, Err: err}
		}
		wn.Cells = append(wn.Cells, wireCell{
			ID:             cell.ID,
			CellType:       string(cell.Type),
			Source:         linesJSON,
			Metadata:       cell.Metadata,
			ExecutionCount: cell.ExecutionCount,
			Outputs:        cell.Outputs,
		})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", " ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wn); err != nil {
		return &notebookerr.IoError{Path: path, Err: err}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return &notebookerr.IoError{Path: path, Err: err}
	}

	obslog.Debug("fsdoc: wrote %s (%d cells)", path, len(nb.Cells))
	return nil
}

// encodeSource splits source on "\n", appending a trailing "\n" to every
// line except the last, matching the notebook standard (§4.2). An empty
// source maps to an empty array.
func encodeSource(source string) []string {
	if source == "" {
		return []string{}
	}

	parts := strings.Split(source, "\n")
	lines := make([]string, len(parts))
	for i, p := range parts {
		if i < len(parts)-1 {
			lines[i] = p + "\n"
		} else {
			lines[i] = p
		}
	}
	// Drop a final empty line produced by a trailing "\n" in source: the
	// notebook standard represents "a\nb\n" as ["a\n", "b\n"], not
	// ["a\n", "b\n", ""].
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
