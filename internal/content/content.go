// Package content provides the fingerprinting and optimistic-lock primitives
// shared by the local save path and the remote commit path.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Source tags where a served document came from when the fallback chain is in
// play.
type Source string

const (
	SourceLocal   Source = "local"
	SourceGitHub  Source = "github"
	SourceDefault Source = "default"
)

// Snapshot pairs a serialized universe document with its fingerprint and
// origin. It exists per read request and is never persisted.
type Snapshot struct {
	Content []byte
	Hash    string
	Source  Source
}

// Snap fingerprints raw content under the given origin tag.
func Snap(raw []byte, source Source) Snapshot {
	return Snapshot{Content: raw, Hash: Hash(raw), Source: source}
}

// Hash computes the stable content fingerprint used for optimistic locking:
// sha256 over the exact serialized bytes, hex encoded.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// BaselineConflictError reports that a caller-supplied baseline token no
// longer matches the current state of the target.
type BaselineConflictError struct {
	Expected string
	Actual   string
}

func (e *BaselineConflictError) Error() string {
	return fmt.Sprintf("baseline %s does not match current %s", short(e.Expected), short(e.Actual))
}

// VerifyBaseline implements the optimistic-lock comparison used for both the
// local disk hash and the remote version token. An empty expected token skips
// the check: the caller declared no baseline, so any current state is
// acceptable. Tokens are opaque and only ever compared for equality.
func VerifyBaseline(expected, actual string) error {
	if expected == "" || expected == actual {
		return nil
	}
	return &BaselineConflictError{Expected: expected, Actual: actual}
}

func short(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	if token == "" {
		return "(none)"
	}
	return token
}
