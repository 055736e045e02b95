// Package kernel implements the kernel execution bridge (§4.10 of spec.md):
// a message-framed websocket to the kernel channel, execute_request
// composition, reply-frame folding into a result, and output folding back
// into the live document. Grounded on the teacher's connection read-loop
// (read-with-timeout, parent-id correlation), adapted to the Jupyter wire
// format.
package kernel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// DefaultTimeout and MaxTimeout bound execution (§5: "default 30s, max
// 300s, enforced by a single timer").
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 5 * time.Minute
)

// Header is the Jupyter message header (§6).
type Header struct {
	MsgID   string `json:"msg_id"`
	MsgType string `json:"msg_type"`
	Username string `json:"username"`
	Session string `json:"session"`
	Date    string `json:"date"`
	Version string `json:"version"`
}

// Message is a single frame on the kernel channel socket (§6).
type Message struct {
	Header       Header         `json:"header"`
	ParentHeader Header         `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
	Buffers      []string       `json:"buffers"`
	Channel      string         `json:"channel"`
}

// Session owns one kernel channel socket.
type Session struct {
	KernelID  string
	SessionID string

	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	sendMu sync.Mutex
}

// Connect opens the message-framed socket to `/api/kernels/{kernel_id}/channels`
// (§6).
func Connect(ctx context.Context, baseURL, token, kernelID, sessionID string) (*Session, error) {
	scheme := "ws://"
	host := strings.TrimPrefix(baseURL, "http://")
	if strings.HasPrefix(baseURL, "https://") {
		scheme = "wss://"
		host = strings.TrimPrefix(baseURL, "https://")
	}
	endpoint := fmt.Sprintf("%s%s/api/kernels/%s/channels", scheme, host, kernelID)
	if token != "" {
		endpoint += "?token=" + url.QueryEscape(token)
	}

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial kernel channel %s: %w", kernelID, err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	return &Session{
		KernelID:  kernelID,
		SessionID: sessionID,
		conn:      conn,
		ctx:       sessCtx,
		cancel:    cancel,
	}, nil
}

// Close tears down the channel socket.
func (s *Session) Close() {
	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "closed")
}

func (s *Session) send(msg Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	writeCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, s.conn, msg)
}

// Result is the folded outcome of a single execute_request (§4.10).
type Result struct {
	Status         string // "ok" or "error"
	ExecutionCount *int
	Outputs        []notebook.Output
	TextSummary    string
	ErrorName      string
	ErrorValue     string
	ErrorTraceback []string
	ImagesOmitted  int
}

// ExecuteOptions configures one execution (§5, §4.10).
type ExecuteOptions struct {
	Timeout      time.Duration
	MaxImages    int // 0 = unbounded
	IncludeImages bool
}

func (o ExecuteOptions) normalizedTimeout() time.Duration {
	t := o.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	if t > MaxTimeout {
		t = MaxTimeout
	}
	return t
}

// Execute composes an execute_request for code and folds reply frames into
// a Result, per §4.10. path is used only for error context.
func (s *Session) Execute(ctx context.Context, path, code string, opts ExecuteOptions) (Result, error) {
	msgID := uuid.NewString()

	execCtx, cancel := context.WithTimeout(ctx, opts.normalizedTimeout())
	defer cancel()

	req := Message{
		Header: Header{
			MsgID:    msgID,
			MsgType:  "execute_request",
			Username: "claude-code",
			Session:  s.SessionID,
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			Version:  "5.3",
		},
		Channel: "shell",
		Content: map[string]any{
			"code":            code,
			"silent":          false,
			"store_history":   true,
			"allow_stdin":     false,
			"stop_on_error":   true,
			"user_expressions": map[string]any{},
		},
	}
	if err := s.send(req); err != nil {
		return Result{}, fmt.Errorf("send execute_request for %s: %w", path, err)
	}

	var result Result
	var textBuilder strings.Builder
	imagesKept := 0

	for {
		var msg Message
		if err := wsjson.Read(execCtx, s.conn, &msg); err != nil {
			if execCtx.Err() != nil {
				s.cancel()
				s.conn.Close(websocket.StatusNormalClosure, "execution timed out")
				return Result{}, &notebookerr.ExecutionTimeout{Path: path}
			}
			return Result{}, fmt.Errorf("read kernel reply for %s: %w", path, err)
		}
		if msg.ParentHeader.MsgID != msgID {
			continue
		}

		switch msg.Header.MsgType {
		case "stream":
			name, _ := msg.Content["name"].(string)
			text, _ := msg.Content["text"].(string)
			textBuilder.WriteString(text)
			result.Outputs = append(result.Outputs, notebook.Output{
				OutputType: notebook.OutputStream,
				Name:       name,
				Text:       text,
			})

		case "execute_result", "display_data":
			data, _ := msg.Content["data"].(map[string]any)
			out := notebook.Output{
				OutputType: notebook.OutputDisplayData,
				Data:       data,
			}
			if msg.Header.MsgType == "execute_result" {
				out.OutputType = notebook.OutputExecuteResult
				if ec, ok := msg.Content["execution_count"].(float64); ok {
					n := int(ec)
					out.ExecutionCount = &n
				}
			}
			if plain, ok := data["text/plain"].(string); ok {
				textBuilder.WriteString(plain)
			}
			if hasImage(data) {
				if opts.MaxImages > 0 && imagesKept >= opts.MaxImages {
					result.ImagesOmitted++
					break
				}
				imagesKept++
			}
			result.Outputs = append(result.Outputs, out)

		case "error":
			result.Status = "error"
			ename, _ := msg.Content["ename"].(string)
			evalue, _ := msg.Content["evalue"].(string)
			result.ErrorName = ename
			result.ErrorValue = evalue
			if tb, ok := msg.Content["traceback"].([]any); ok {
				for _, line := range tb {
					if s, ok := line.(string); ok {
						result.ErrorTraceback = append(result.ErrorTraceback, s)
					}
				}
			}
			result.Outputs = append(result.Outputs, notebook.Output{
				OutputType:     notebook.OutputError,
				ErrorName:      ename,
				ErrorValue:     evalue,
				ErrorTraceback: result.ErrorTraceback,
			})

		case "execute_reply":
			if status, ok := msg.Content["status"].(string); ok && result.Status == "" {
				result.Status = status
			}
			if ec, ok := msg.Content["execution_count"].(float64); ok {
				n := int(ec)
				result.ExecutionCount = &n
			}
			result.TextSummary = textBuilder.String()
			if result.ImagesOmitted > 0 {
				result.TextSummary += fmt.Sprintf("\n[%d image output(s) omitted]", result.ImagesOmitted)
			}
			if result.Status == "" {
				result.Status = "ok"
			}
			return result, nil
		}
	}
}

func hasImage(data map[string]any) bool {
	if data == nil {
		return false
	}
	_, png := data["image/png"]
	_, jpeg := data["image/jpeg"]
	return png || jpeg
}

// Interrupt sends a kernel_info-adjacent interrupt control message. The
// notebook server exposes interrupt as a REST call in this engine's
// external interface (§6 `interrupt_kernel`); a raw channel message is kept
// here only as the bridge's own primitive in case a future caller needs the
// wire-level form.
func (s *Session) Interrupt(ctx context.Context) error {
	msg := Message{
		Header: Header{
			MsgID:    uuid.NewString(),
			MsgType:  "interrupt_request",
			Session:  s.SessionID,
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			Version:  "5.3",
		},
		Channel: "control",
		Content: map[string]any{},
	}
	return s.send(msg)
}

// RangeStatus is one entry of execute_range's accumulated report (§4.10).
type RangeStatus struct {
	Index  int
	CellID string
	Result Result
	Err    error
}

// ExecuteRange iterates indices, skipping non-code/empty cells, continuing
// on per-cell failure (§4.10 "execute_range").
func (s *Session) ExecuteRange(ctx context.Context, path string, cells []notebook.View, indices []int, opts ExecuteOptions) []RangeStatus {
	statuses := make([]RangeStatus, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(cells) {
			statuses = append(statuses, RangeStatus{Index: idx, Err: &notebookerr.OutOfRange{Index: idx, Count: len(cells)}})
			continue
		}
		v := cells[idx]
		if v.CellType() != notebook.CellCode || strings.TrimSpace(v.Source()) == "" {
			continue
		}
		id, _ := v.ID()
		res, err := s.Execute(ctx, path, v.Source(), opts)
		statuses = append(statuses, RangeStatus{Index: idx, CellID: id, Result: res, Err: err})
	}
	return statuses
}
