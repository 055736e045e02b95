package livedoc

import "github.com/jupyter-collab/notebook-engine/internal/crdtdoc"

// ServerMsg is a frame received from the collaboration room socket. Exactly
// one field is set per message, mirroring the teacher's tagged-union
// protocol.ServerMsg.
type ServerMsg struct {
	Synced       *struct{}          `json:"synced,omitempty"`
	CellSnapshot *CellSnapshotMsg   `json:"cell_snapshot,omitempty"`
	CellUpdate   *CellUpdateMsg     `json:"cell_update,omitempty"`
	Presence     *PresenceMsg       `json:"presence,omitempty"`
}

// ClientMsg is a frame sent to the collaboration room socket.
type ClientMsg struct {
	Presence *PresenceMsg `json:"presence,omitempty"`
}

// CellSnapshotMsg carries the full initial cell sequence, sent once
// immediately after the server accepts the room connection (§4.3: "waiting
// for the synced event before exposing the document").
type CellSnapshotMsg struct {
	Cells []WireCell `json:"cells"`
}

// WireCell is a cell entry as it travels over the room socket.
type WireCell struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Source         string         `json:"source"`
	Metadata       map[string]any `json:"metadata"`
	ExecutionCount *int           `json:"execution_count"`
	Outputs        []map[string]any `json:"outputs"`
}

// CellUpdateMsg carries an incremental change to a single cell, broadcast
// by any participant (including sibling agent processes) after theirs
// commits a transaction.
type CellUpdateMsg struct {
	Index  int      `json:"index"`
	Cell   WireCell `json:"cell"`
	Delete bool     `json:"delete"`
}

// PresenceMsg publishes or updates one participant's awareness state
// (§4.3 step 4, §4.8).
type PresenceMsg struct {
	ParticipantID string             `json:"participant_id"`
	Username      string             `json:"username"`
	DisplayName   string             `json:"display_name"`
	Initials      string             `json:"initials"`
	Color         string             `json:"color"`
	CursorCellIDs []string           `json:"cursor_cell_ids"`
}

func (p PresenceMsg) toPresence() *crdtdoc.Presence {
	return &crdtdoc.Presence{
		Username:      p.Username,
		DisplayName:   p.DisplayName,
		Initials:      p.Initials,
		Color:         p.Color,
		CursorCellIDs: p.CursorCellIDs,
	}
}
