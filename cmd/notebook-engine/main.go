// Command notebook-engine is a minimal wiring/smoke-test entrypoint for the
// notebook collaboration engine's filesystem backend. The tool-dispatch
// transport that exposes the full surface of §6 is out of scope for this
// module (see SPEC_FULL.md Non-goals); this binary only proves the engine
// wires together: load a notebook, run one mutation, write it back.
package main

import (
	"fmt"
	"os"

	"github.com/jupyter-collab/notebook-engine/internal/changelog"
	"github.com/jupyter-collab/notebook-engine/internal/config"
	"github.com/jupyter-collab/notebook-engine/internal/locks"
	"github.com/jupyter-collab/notebook-engine/internal/mutate"
	"github.com/jupyter-collab/notebook-engine/internal/notebook/fsdoc"
	"github.com/jupyter-collab/notebook-engine/internal/obslog"
)

func main() {
	obslog.Init()
	tunables := config.Default()
	connDefaults := config.FromEnvironment()
	obslog.Info("notebook-engine starting (jupyter default %s:%s)", connDefaults.Host, connDefaults.Port)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: notebook-engine <notebook.ipynb>")
		os.Exit(2)
	}
	path := os.Args[1]

	nb, err := fsdoc.Read(path)
	if err != nil {
		obslog.Error("read %s: %v", path, err)
		os.Exit(1)
	}

	engine := &mutate.Engine{
		Backend: mutate.NewNotebookBackend(nb),
		Log:     changelog.NewInMemoryLog(tunables.ChangeLogCapInMemory),
		Locks:   locks.NewInMemoryTable(),
		Path:    path,
	}

	id, err := engine.Insert("", nil, "", "# inserted by notebook-engine smoke test\n", "", mutate.Options{ClientName: "notebook-engine"})
	if err != nil {
		obslog.Error("insert: %v", err)
		os.Exit(1)
	}
	obslog.Info("inserted cell %s", id)

	if err := fsdoc.Write(path, nb); err != nil {
		obslog.Error("write %s: %v", path, err)
		os.Exit(1)
	}
	obslog.Info("wrote %s", path)
}
