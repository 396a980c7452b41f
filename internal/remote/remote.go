// Package remote pushes the universe document to a version-controlled host
// and reads it back. Two implementations share one contract: the GitHub
// contents API for the hosted deployment, and a plain on-disk git repository
// for self-hosted setups and tests.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable is returned by FetchCurrent when the remote cannot be
// reached or has no document. Callers treat it as a normal outcome and apply
// fallback policy, never as a fatal error.
var ErrUnavailable = errors.New("remote repository unavailable")

// ConfigError reports missing or malformed remote credentials or target
// coordinates. It is distinct from a generic failure so operators see a
// misconfiguration instead of a retry loop.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "remote repository not configured: " + e.Reason
}

// AuthError reports credentials rejected by the remote host.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "remote repository rejected credentials: " + e.Reason
}

// Snapshot is the current remote document and its opaque version token. The
// token is only ever compared for equality.
type Snapshot struct {
	Content []byte
	Version string
}

type PushOptions struct {
	Message  string
	CreatePR bool

	// ExpectedVersion is the caller-observed baseline token. When non-empty
	// it is compared against a token re-fetched inside Push immediately
	// before the write; a mismatch aborts with a conflict. Empty skips the
	// check.
	ExpectedVersion string
}

type PushResult struct {
	// Version is the token of the state produced by this push.
	Version string

	// ContentHash fingerprints the exact bytes that were committed.
	ContentHash string

	// PRURL is set only when the push created a change proposal instead of
	// writing to the primary branch.
	PRURL string
}

// RepositoryClient is the remote half of the publishing pipeline.
type RepositoryClient interface {
	FetchCurrent(ctx context.Context) (Snapshot, error)
	Push(ctx context.Context, content []byte, opts PushOptions) (PushResult, error)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
