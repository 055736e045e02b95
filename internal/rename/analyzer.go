package rename

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
	"github.com/jupyter-collab/notebook-engine/internal/obslog"
)

// AnalyzerTimeout bounds the external Python analyzer subprocess (§5: "the
// rename analyzer subprocess has a 30-second ceiling").
const AnalyzerTimeout = 30 * time.Second

// Request is the structured argument sent to the analyzer on stdin
// (§4.11: "receives the virtual source on its input channel and the
// position + new name as a structured argument").
type Request struct {
	Source   string `json:"source"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	NewName  string `json:"new_name"`
}

// Response is the analyzer's stdout payload: the rewritten source, or an
// error the caller surfaces as-is.
type Response struct {
	RewrittenSource string `json:"rewritten_source"`
	Error           string `json:"error,omitempty"`
}

// Locator finds a usable Python interpreter, in the search order §4.11
// specifies: a sandboxed launcher with an ephemeral install, then a system
// interpreter, caching whichever worked on success.
type Locator struct {
	mu     sync.Mutex
	cached string

	// SandboxedLauncher is the path to a launcher script/binary that
	// provisions an ephemeral Python environment on demand (empty if none
	// is configured for this deployment).
	SandboxedLauncher string
	// AnalyzerModule is the module invoked as `<python> -m <module>`.
	AnalyzerModule string
}

// NewLocator builds a locator for analyzerModule (e.g. "notebook_engine.rename_analyzer").
func NewLocator(sandboxedLauncher, analyzerModule string) *Locator {
	return &Locator{SandboxedLauncher: sandboxedLauncher, AnalyzerModule: analyzerModule}
}

func (l *Locator) resolve() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached != "" {
		return l.cached, nil
	}

	candidates := []string{}
	if l.SandboxedLauncher != "" {
		candidates = append(candidates, l.SandboxedLauncher)
	}
	candidates = append(candidates, "python3", "python")

	for _, c := range candidates {
		path, err := exec.LookPath(c)
		if err != nil {
			continue
		}
		l.cached = path
		return path, nil
	}

	return "", &notebookerr.ToolUnavailable{Tool: "python"}
}

// Analyze invokes the external analyzer with req and decodes its response.
func (l *Locator) Analyze(ctx context.Context, req Request) (Response, error) {
	interpreter, err := l.resolve()
	if err != nil {
		return Response{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, AnalyzerTimeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode analyzer request: %w", err)
	}

	cmd := exec.CommandContext(runCtx, interpreter, "-m", l.AnalyzerModule)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return Response{}, fmt.Errorf("rename analyzer timed out: %w", runCtx.Err())
		}
		obslog.Error("rename: analyzer stderr: %s", stderr.String())
		return Response{}, fmt.Errorf("run rename analyzer: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("decode analyzer response: %w", err)
	}
	if resp.Error != "" {
		return Response{}, fmt.Errorf("analyzer rejected rename: %s", resp.Error)
	}
	return resp, nil
}
