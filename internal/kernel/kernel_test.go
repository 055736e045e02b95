package kernel

import (
	"testing"
	"time"

	"github.com/jupyter-collab/notebook-engine/internal/notebook"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

func TestHasImageDetectsPNGAndJPEG(t *testing.T) {
	cases := []struct {
		name string
		data map[string]any
		want bool
	}{
		{"nil", nil, false},
		{"text only", map[string]any{"text/plain": "x"}, false},
		{"png", map[string]any{"image/png": "base64"}, true},
		{"jpeg", map[string]any{"image/jpeg": "base64"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasImage(tc.data); got != tc.want {
				t.Fatalf("hasImage(%v) = %v, want %v", tc.data, got, tc.want)
			}
		})
	}
}

func TestNormalizedTimeoutDefaultsAndCaps(t *testing.T) {
	cases := []struct {
		name string
		opts ExecuteOptions
		want time.Duration
	}{
		{"zero uses default", ExecuteOptions{}, DefaultTimeout},
		{"negative uses default", ExecuteOptions{Timeout: -1}, DefaultTimeout},
		{"within bounds kept", ExecuteOptions{Timeout: 45 * time.Second}, 45 * time.Second},
		{"over max is capped", ExecuteOptions{Timeout: 10 * time.Minute}, MaxTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.opts.normalizedTimeout(); got != tc.want {
				t.Fatalf("normalizedTimeout() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExecuteRangeSkipsMarkdownAndEmptyCode(t *testing.T) {
	cells := []notebook.View{
		notebook.NewPlainView(&notebook.Cell{ID: "m1", Type: notebook.CellMarkdown, Source: "# title"}),
		notebook.NewPlainView(&notebook.Cell{ID: "c1", Type: notebook.CellCode, Source: "   \n  "}),
	}
	s := &Session{}
	statuses := s.ExecuteRange(nil, "n.ipynb", cells, []int{0, 1}, ExecuteOptions{})
	if len(statuses) != 0 {
		t.Fatalf("expected both cells skipped, got %+v", statuses)
	}
}

func TestExecuteRangeReportsOutOfRangeWithoutAborting(t *testing.T) {
	cells := []notebook.View{
		notebook.NewPlainView(&notebook.Cell{ID: "m1", Type: notebook.CellMarkdown, Source: "# title"}),
	}
	s := &Session{}
	statuses := s.ExecuteRange(nil, "n.ipynb", cells, []int{5}, ExecuteOptions{})
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status for the out-of-range index, got %d", len(statuses))
	}
	if _, ok := statuses[0].Err.(*notebookerr.OutOfRange); !ok {
		t.Fatalf("expected OutOfRange error, got %v", statuses[0].Err)
	}
}
