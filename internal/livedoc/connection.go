package livedoc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jupyter-collab/notebook-engine/internal/crdtdoc"
	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
	"github.com/jupyter-collab/notebook-engine/internal/obslog"
)

// SyncTimeout is the ceiling on waiting for the initial synced event (§4.3,
// §5: "the sync step has a fixed 10-second ceiling").
const SyncTimeout = 10 * time.Second

// Identity is the presence record an agent publishes once synced (§4.3 step
// 4). Username is also the reserved identity the focus arbiter excludes
// from consideration (§4.8).
type Identity struct {
	Username    string
	DisplayName string
	Initials    string
	Color       string
}

// Session is one open room connection: the live document it backs, the
// socket driving it, and the descriptor the handshake returned.
type Session struct {
	Path   string
	Doc    *crdtdoc.Document
	Desc   SessionDescriptor

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex
	identity Identity
}

// Client owns the REST handshake client and the per-path connection cache
// (§5 "Shared resources (i)": "add-once and only removed on explicit
// close").
type Client struct {
	REST *RESTClient

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewClient builds a client against a notebook server.
func NewClient(baseURL, token string) *Client {
	return &Client{
		REST:     NewRESTClient(baseURL, token),
		sessions: map[string]*Session{},
	}
}

// Connect opens (or returns the cached) session for path, following §4.3:
// handshake, dial the room socket, wait for sync, publish presence.
func (c *Client) Connect(ctx context.Context, path string, identity Identity) (*Session, error) {
	c.mu.Lock()
	if s, ok := c.sessions[path]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	desc, err := c.REST.OpenSession(ctx, path)
	if err != nil {
		return nil, err
	}

	roomURL := strings.TrimPrefix(c.REST.BaseURL, "http://")
	roomURL = strings.TrimPrefix(roomURL, "https://")
	scheme := "ws://"
	if strings.HasPrefix(c.REST.BaseURL, "https://") {
		scheme = "wss://"
	}
	endpoint := fmt.Sprintf("%s%s/api/collaboration/room/%s?session_id=%s",
		scheme, roomURL, desc.RoomID(), url.QueryEscape(desc.SessionID))
	if c.REST.Token != "" {
		endpoint += "&token=" + url.QueryEscape(c.REST.Token)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial collaboration room for %s: %w", path, err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		Path:     path,
		Desc:     desc,
		Doc:      crdtdoc.NewDocument(),
		conn:     conn,
		ctx:      sessCtx,
		cancel:   cancel,
		identity: identity,
	}

	if err := sess.waitForSync(ctx); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "sync failed")
		return nil, err
	}

	go sess.readLoop()

	if err := sess.publishPresence(); err != nil {
		obslog.Error("livedoc: failed to publish presence for %s: %v", path, err)
	}

	c.mu.Lock()
	c.sessions[path] = sess
	c.mu.Unlock()

	return sess, nil
}

// waitForSync consumes frames until the synced event arrives or
// SyncTimeout elapses (§4.3 step 3).
func (s *Session) waitForSync(ctx context.Context) error {
	syncCtx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()

	for {
		var msg ServerMsg
		if err := wsjson.Read(syncCtx, s.conn, &msg); err != nil {
			if syncCtx.Err() != nil {
				return &notebookerr.SyncTimeout{Path: s.Path}
			}
			return fmt.Errorf("read during sync wait for %s: %w", s.Path, err)
		}

		if msg.CellSnapshot != nil {
			s.applySnapshot(msg.CellSnapshot)
		}
		if msg.Synced != nil {
			s.Doc.MarkSynced()
			return nil
		}
	}
}

func (s *Session) applySnapshot(snap *CellSnapshotMsg) {
	cells := make([]*crdtdoc.CellEntry, len(snap.Cells))
	for i, wc := range snap.Cells {
		cells[i] = wireCellToEntry(wc)
	}
	s.Doc.ReplaceCells(cells)
}

func wireCellToEntry(wc WireCell) *crdtdoc.CellEntry {
	outputs := make([]notebook.Output, 0, len(wc.Outputs))
	for _, raw := range wc.Outputs {
		outputs = append(outputs, decodeOutput(raw))
	}
	cellType := notebook.CellType(wc.Type)
	if cellType == "" {
		cellType = notebook.CellCode
	}
	return crdtdoc.NewCellEntry(wc.ID, cellType, wc.Source, wc.Metadata, wc.ExecutionCount, outputs)
}

func decodeOutput(raw map[string]any) notebook.Output {
	out := notebook.Output{}
	if t, ok := raw["output_type"].(string); ok {
		out.OutputType = notebook.OutputType(t)
	}
	if name, ok := raw["name"].(string); ok {
		out.Name = name
	}
	if text, ok := raw["text"].(string); ok {
		out.Text = text
	}
	if data, ok := raw["data"].(map[string]any); ok {
		out.Data = data
	}
	if ec, ok := raw["execution_count"].(float64); ok {
		n := int(ec)
		out.ExecutionCount = &n
	}
	if ename, ok := raw["ename"].(string); ok {
		out.ErrorName = ename
	}
	if evalue, ok := raw["evalue"].(string); ok {
		out.ErrorValue = evalue
	}
	if tb, ok := raw["traceback"].([]any); ok {
		for _, line := range tb {
			if s, ok := line.(string); ok {
				out.ErrorTraceback = append(out.ErrorTraceback, s)
			}
		}
	}
	return out
}

// readLoop processes frames for the lifetime of the session, applying
// remote cell updates and presence changes to the live document (§5: "the
// live backend is eventually consistent across all participating agents").
func (s *Session) readLoop() {
	for {
		var msg ServerMsg
		if err := wsjson.Read(s.ctx, s.conn, &msg); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			obslog.Error("livedoc: room socket error for %s: %v", s.Path, err)
			return
		}

		switch {
		case msg.CellUpdate != nil:
			u := msg.CellUpdate
			var entry *crdtdoc.CellEntry
			if !u.Delete {
				entry = wireCellToEntry(u.Cell)
			}
			s.Doc.ApplyRemoteUpdate(u.Index, entry, u.Delete)
		case msg.Presence != nil:
			s.Doc.SetPresence(msg.Presence.ParticipantID, msg.Presence.toPresence())
		}
	}
}

// publishPresence sends this agent's identity after sync, per §4.3 step 4
// ("set after sync so it propagates").
func (s *Session) publishPresence() error {
	writeCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return wsjson.Write(writeCtx, s.conn, ClientMsg{
		Presence: &PresenceMsg{
			ParticipantID: s.identity.Username,
			Username:      s.identity.Username,
			DisplayName:   s.identity.DisplayName,
			Initials:      s.identity.Initials,
			Color:         s.identity.Color,
		},
	})
}

// SelfIdentity returns the username this session publishes as, used to
// construct the focus arbiter's self-exclusion (§4.8).
func (s *Session) SelfIdentity() string { return s.identity.Username }

// Close tears down path's cached connection (§5: "only removed on explicit
// close"; §7: "connection errors on the document socket tear down that
// path's cached connection so the next operation rebuilds it").
func (c *Client) Close(path string) {
	c.mu.Lock()
	sess, ok := c.sessions[path]
	if ok {
		delete(c.sessions, path)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	sess.cancel()
	sess.conn.Close(websocket.StatusNormalClosure, "closed")
}

// Get returns the cached session for path, if any, without connecting.
func (c *Client) Get(path string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[path]
	return s, ok
}
