package engine

import (
	"github.com/artpar/docgate/ports"
)

// applyMergePatch produces a new document from doc and a merge patch: a
// field set to null removes it, any other value overwrites it wholesale.
// The merge is deliberately shallow; nested objects are replaced, not
// recursively merged. doc itself is not modified.
func applyMergePatch(doc ports.Doc, patch map[string]any) ports.Doc {
	out := doc.Clone()
	for name, value := range patch {
		if value == nil {
			delete(out, name)
			continue
		}
		out[name] = value
	}
	return out
}

// appendOpID records an applied operation id on the document, evicting the
// oldest entries beyond max.
func appendOpID(doc ports.Doc, opID string, max int) {
	ids := append(doc.OpIDs(), opID)
	if len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	doc[ports.FieldDocOpIDs] = ids
}
