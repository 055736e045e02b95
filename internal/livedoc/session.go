// Package livedoc implements the live-document backend's connection
// lifecycle (§4.3 of spec.md): session handshake over REST, connecting the
// shared-document socket, waiting for the initial sync event, and
// publishing presence once synced. It mirrors the teacher's
// connection-handling shape (read loop, broadcast goroutine, mutex-guarded
// state) but drives an outbound client connection instead of serving one.
package livedoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// SessionDescriptor is the notebook server's response to the collaboration
// session handshake (§6): `PUT /api/collaboration/session/{path}`.
type SessionDescriptor struct {
	Format    string `json:"format"`
	Type      string `json:"type"`
	FileID    string `json:"file_id"`
	SessionID string `json:"session_id"`
}

// RoomID builds the room identifier the socket endpoint expects: colons are
// preserved verbatim, never percent-encoded (§4.3, §6).
func (d SessionDescriptor) RoomID() string {
	return fmt.Sprintf("%s:%s:%s", d.Format, d.Type, d.FileID)
}

// RESTClient issues the REST calls in §6 against the notebook server. It
// carries no state of its own beyond the base URL and bearer token; the
// teacher reaches for plain net/http for its own HTTP surface, and this
// module's REST surface is a handful of simple PUT/GET/POST calls, the same
// shape, so there is no case for an HTTP client library here either.
type RESTClient struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewRESTClient builds a client against baseURL (e.g. "http://localhost:8888")
// with the given bearer token.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{},
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "token "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: server returned %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// OpenSession performs the collaboration session handshake for path (§4.3
// step 1, §6 `PUT /api/collaboration/session/{path}`).
func (c *RESTClient) OpenSession(ctx context.Context, path string) (SessionDescriptor, error) {
	var desc SessionDescriptor
	err := c.do(ctx, http.MethodPut, "/api/collaboration/session/"+url.PathEscape(path), map[string]string{
		"format": "json",
		"type":   "notebook",
	}, &desc)
	if err != nil {
		return SessionDescriptor{}, &notebookerr.IoError{Path: path, Err: err}
	}
	return desc, nil
}

// SessionSummary is one entry of `GET /api/sessions` (§6).
type SessionSummary struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Kernel struct {
		ID string `json:"id"`
	} `json:"kernel"`
}

// ListSessions implements the `GET /api/sessions` call used by
// list_notebooks / list_kernels (§6).
func (c *RESTClient) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	var out []SessionSummary
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// ContentEntry is one entry of `GET /api/contents/{path}` (§6).
type ContentEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ListContents lists a directory or describes a single file.
func (c *RESTClient) ListContents(ctx context.Context, path string) ([]ContentEntry, error) {
	var out struct {
		Type    string         `json:"type"`
		Content []ContentEntry `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/contents/"+url.PathEscape(path), nil, &out); err != nil {
		return nil, fmt.Errorf("list contents %s: %w", path, err)
	}
	if out.Type != "directory" {
		return []ContentEntry{{Name: path, Path: path, Type: out.Type}}, nil
	}
	return out.Content, nil
}

// CreateNotebookFile implements `PUT /api/contents/{path}` with
// `{type:"notebook", content:<notebook>}` (§6).
func (c *RESTClient) CreateNotebookFile(ctx context.Context, path string, notebookJSON json.RawMessage) error {
	err := c.do(ctx, http.MethodPut, "/api/contents/"+url.PathEscape(path), map[string]any{
		"type":    "notebook",
		"content": notebookJSON,
	}, nil)
	if err != nil {
		return &notebookerr.IoError{Path: path, Err: err}
	}
	return nil
}

// KernelSession is the response of `POST /api/sessions` opening a notebook
// and kernel (§6).
type KernelSession struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Kernel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"kernel"`
}

// OpenNotebookSession opens a notebook + kernel via `POST /api/sessions`.
func (c *RESTClient) OpenNotebookSession(ctx context.Context, path, kernelName string) (KernelSession, error) {
	var out KernelSession
	err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]any{
		"path": path,
		"type": "notebook",
		"kernel": map[string]string{
			"name": kernelName,
		},
	}, &out)
	if err != nil {
		return KernelSession{}, fmt.Errorf("open session %s: %w", path, err)
	}
	return out, nil
}
