package universe

import (
	_ "embed"
	"encoding/json"
)

//go:embed default_universe.json
var defaultDocument []byte

// DefaultDocument returns the serialized bundled universe shipped with the
// deployment, used only when both the local file and the remote are
// unavailable.
func DefaultDocument() []byte {
	out := make([]byte, len(defaultDocument))
	copy(out, defaultDocument)
	return out
}

// Default returns the bundled universe as a parsed tree. The embedded
// document is maintained alongside the schema, so a decode failure here is a
// build defect, not a runtime condition.
func Default() *Universe {
	var u Universe
	if err := json.Unmarshal(defaultDocument, &u); err != nil {
		panic("universe: embedded default document is invalid: " + err.Error())
	}
	return &u
}
