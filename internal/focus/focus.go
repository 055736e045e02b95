// Package focus implements the human-focus arbiter (§4.8 of spec.md): it
// reads the presence/awareness state of a live document and blocks writes
// to cells a human participant's cursor currently sits in, unless the
// caller forces the operation.
package focus

import (
	"github.com/jupyter-collab/notebook-engine/internal/crdtdoc"
	"github.com/jupyter-collab/notebook-engine/internal/notebookerr"
)

// Arbiter reads presence from a single live document. There is no
// filesystem-backend variant: that backend has no presence channel, so
// mutate code simply never constructs an Arbiter for it (§4.8 "Not applied
// in the filesystem backend").
type Arbiter struct {
	doc         *crdtdoc.Document
	selfIdentity string
}

// New builds an arbiter over doc, excluding selfIdentity (the agent's own
// reserved username, per §4.8 "excluding self and excluding any whose
// username is the agent's reserved identity") from consideration.
func New(doc *crdtdoc.Document, selfIdentity string) *Arbiter {
	return &Arbiter{doc: doc, selfIdentity: selfIdentity}
}

// Check blocks the operation if any other participant's cursor currently
// falls within cellID, returning a HumanEditing error naming that
// participant. force bypasses the check entirely.
func (a *Arbiter) Check(cellID string, force bool) error {
	if force || a == nil {
		return nil
	}

	for id, presence := range a.doc.PresenceSnapshot(a.selfIdentity) {
		if id == a.selfIdentity || presence.Username == a.selfIdentity {
			continue
		}
		for _, c := range presence.CursorCellIDs {
			if c == cellID {
				who := presence.DisplayName
				if who == "" {
					who = presence.Username
				}
				return &notebookerr.HumanEditing{User: who}
			}
		}
	}
	return nil
}
