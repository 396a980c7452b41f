package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/auth"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/content"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/diskstore"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/ratelimit"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/remote"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/universe"
)

type stubRemote struct {
	snap     remote.Snapshot
	fetchErr error

	pushResult remote.PushResult
	pushErr    error
	pushed     [][]byte
}

func (s *stubRemote) FetchCurrent(ctx context.Context) (remote.Snapshot, error) {
	if s.fetchErr != nil {
		return remote.Snapshot{}, s.fetchErr
	}
	return s.snap, nil
}

func (s *stubRemote) Push(ctx context.Context, raw []byte, opts remote.PushOptions) (remote.PushResult, error) {
	s.pushed = append(s.pushed, raw)
	if s.pushErr != nil {
		return remote.PushResult{}, s.pushErr
	}
	return s.pushResult, nil
}

func newTestService(t *testing.T, remoteClient remote.RepositoryClient) (*Service, *diskstore.Store) {
	t.Helper()
	store := diskstore.New(filepath.Join(t.TempDir(), "universe.json"))
	limiter := ratelimit.NewMemory(5, 15*time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	authSvc := auth.New("secret", "", "password", limiter, time.Hour, zap.NewNop())
	return New(store, remoteClient, authSvc, zap.NewNop()), store
}

func validDocument(t *testing.T) []byte {
	t.Helper()
	raw, err := universe.Serialize(universe.Default())
	if err != nil {
		t.Fatalf("serialize default: %v", err)
	}
	return raw
}

func domainStatus(t *testing.T, err error) (int, string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected *DomainError, got %v", err)
	}
	return domainErr.Status, domainErr.Code
}

func TestLoadUniverseServesLocalFirst(t *testing.T) {
	stub := &stubRemote{snap: remote.Snapshot{Content: []byte("{}"), Version: "remote-sha"}}
	svc, store := newTestService(t, stub)

	raw := validDocument(t)
	if err := store.Write(raw); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	resp, err := svc.LoadUniverse(context.Background(), false)
	if err != nil {
		t.Fatalf("LoadUniverse() error = %v", err)
	}
	if resp.Source != content.SourceLocal {
		t.Fatalf("source = %s, want local", resp.Source)
	}
	if resp.Hash != content.Hash(raw) {
		t.Fatal("hash does not fingerprint the served bytes")
	}
	if resp.LocalDiskHash == nil || *resp.LocalDiskHash != resp.Hash {
		t.Fatal("expected localDiskHash to match the served local content")
	}
	if resp.GitBaseHash == nil || *resp.GitBaseHash != "remote-sha" {
		t.Fatal("expected the remote baseline token")
	}
	if resp.Warning != "" {
		t.Fatalf("unexpected warning %q", resp.Warning)
	}
}

func TestLoadUniverseBaselineFetchFailureIsSwallowed(t *testing.T) {
	stub := &stubRemote{fetchErr: remote.ErrUnavailable}
	svc, store := newTestService(t, stub)
	if err := store.Write(validDocument(t)); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	resp, err := svc.LoadUniverse(context.Background(), false)
	if err != nil {
		t.Fatalf("LoadUniverse() error = %v", err)
	}
	if resp.Source != content.SourceLocal {
		t.Fatalf("source = %s, want local", resp.Source)
	}
	if resp.GitBaseHash != nil {
		t.Fatal("expected a nil baseline when the remote is down")
	}
}

func TestLoadUniverseFallsBackToRemote(t *testing.T) {
	raw := validDocument(t)
	stub := &stubRemote{snap: remote.Snapshot{Content: raw, Version: "remote-sha"}}
	svc, _ := newTestService(t, stub)

	resp, err := svc.LoadUniverse(context.Background(), false)
	if err != nil {
		t.Fatalf("LoadUniverse() error = %v", err)
	}
	if resp.Source != content.SourceGitHub {
		t.Fatalf("source = %s, want github", resp.Source)
	}
	if resp.Warning == "" {
		t.Fatal("expected a warning when not serving the local file")
	}
}

func TestLoadUniverseFallsBackToDefault(t *testing.T) {
	stub := &stubRemote{fetchErr: remote.ErrUnavailable}
	svc, _ := newTestService(t, stub)

	resp, err := svc.LoadUniverse(context.Background(), false)
	if err != nil {
		t.Fatalf("LoadUniverse() error = %v", err)
	}
	if resp.Source != content.SourceDefault {
		t.Fatalf("source = %s, want default", resp.Source)
	}
	if resp.Warning == "" {
		t.Fatal("expected a warning for the bundled default")
	}
	if len(resp.ValidationErrors) != 0 {
		t.Fatalf("bundled default should validate cleanly, got %v", resp.ValidationErrors)
	}
}

func TestLoadUniverseExplicitSyncNeverFallsBack(t *testing.T) {
	stub := &stubRemote{fetchErr: remote.ErrUnavailable}
	svc, store := newTestService(t, stub)
	if err := store.Write(validDocument(t)); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.LoadUniverse(context.Background(), true)
	status, code := domainStatus(t, err)
	if status != 503 || code != "REMOTE_UNAVAILABLE" {
		t.Fatalf("got %d %s, want 503 REMOTE_UNAVAILABLE", status, code)
	}
}

func TestSaveUniverseBootstrap(t *testing.T) {
	svc, store := newTestService(t, &stubRemote{})
	raw := validDocument(t)

	hash, err := svc.SaveUniverse(context.Background(), raw, "")
	if err != nil {
		t.Fatalf("SaveUniverse() error = %v", err)
	}

	persisted, err := store.Read()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if hash != content.Hash(persisted) {
		t.Fatal("returned hash must fingerprint the persisted bytes")
	}
}

func TestSaveUniverseStaleHashConflict(t *testing.T) {
	svc, store := newTestService(t, &stubRemote{})
	original := validDocument(t)
	if err := store.Write(original); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.SaveUniverse(context.Background(), original, "not-the-current-hash")
	status, code := domainStatus(t, err)
	if status != 409 || code != "CONFLICT" {
		t.Fatalf("got %d %s, want 409 CONFLICT", status, code)
	}

	// The file must be untouched.
	after, err := store.Read()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(after) != string(original) {
		t.Fatal("conflicting save must not modify the file")
	}
}

func TestSaveUniverseMatchingHashSucceeds(t *testing.T) {
	svc, store := newTestService(t, &stubRemote{})
	original := validDocument(t)
	if err := store.Write(original); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if _, err := svc.SaveUniverse(context.Background(), original, content.Hash(original)); err != nil {
		t.Fatalf("SaveUniverse() with matching hash error = %v", err)
	}
}

func TestSaveUniverseRejectsInvalidDocument(t *testing.T) {
	svc, store := newTestService(t, &stubRemote{})
	raw := []byte(`{"galaxies":[{"id":"g1","name":"","theme":"neon","particleColor":"#fff"}]}`)

	_, err := svc.SaveUniverse(context.Background(), raw, "")
	status, code := domainStatus(t, err)
	if status != 400 || code != "VALIDATION_FAILED" {
		t.Fatalf("got %d %s, want 400 VALIDATION_FAILED", status, code)
	}
	if _, err := store.Read(); !errors.Is(err, diskstore.ErrNotFound) {
		t.Fatal("rejected document must not be persisted")
	}
}

func TestCommitUniverseNothingToCommit(t *testing.T) {
	stub := &stubRemote{}
	svc, _ := newTestService(t, stub)

	_, err := svc.CommitUniverse(context.Background(), "msg", false, "")
	status, code := domainStatus(t, err)
	if status != 400 || code != "NOTHING_TO_COMMIT" {
		t.Fatalf("got %d %s, want 400 NOTHING_TO_COMMIT", status, code)
	}
	if len(stub.pushed) != 0 {
		t.Fatal("no push may be attempted without a saved file")
	}
}

func TestCommitUniversePushesDiskContent(t *testing.T) {
	raw := validDocument(t)
	stub := &stubRemote{pushResult: remote.PushResult{Version: "new-sha", ContentHash: content.Hash(raw)}}
	svc, store := newTestService(t, stub)
	if err := store.Write(raw); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	result, err := svc.CommitUniverse(context.Background(), "Publish universe", false, "base-sha")
	if err != nil {
		t.Fatalf("CommitUniverse() error = %v", err)
	}
	if result.Sha != "new-sha" {
		t.Fatalf("sha = %s, want new-sha", result.Sha)
	}
	if len(stub.pushed) != 1 || string(stub.pushed[0]) != string(raw) {
		t.Fatal("the commit must push exactly the bytes on disk")
	}
}

func TestCommitUniverseRevalidatesDisk(t *testing.T) {
	stub := &stubRemote{}
	svc, store := newTestService(t, stub)

	// Out-of-band edit: structurally valid JSON that fails validation.
	if err := store.Write([]byte(`{"galaxies":[{"id":"g1","name":"","theme":"neon","particleColor":"#fff"}]}`)); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.CommitUniverse(context.Background(), "msg", false, "")
	status, code := domainStatus(t, err)
	if status != 400 || code != "VALIDATION_FAILED" {
		t.Fatalf("got %d %s, want 400 VALIDATION_FAILED", status, code)
	}
	if len(stub.pushed) != 0 {
		t.Fatal("invalid disk content must never be pushed")
	}
}

func TestCommitUniverseMapsConflict(t *testing.T) {
	raw := validDocument(t)
	stub := &stubRemote{pushErr: &content.BaselineConflictError{Expected: "a", Actual: "b"}}
	svc, store := newTestService(t, stub)
	if err := store.Write(raw); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.CommitUniverse(context.Background(), "msg", false, "a")
	status, code := domainStatus(t, err)
	if status != 409 || code != "CONFLICT" {
		t.Fatalf("got %d %s, want 409 CONFLICT", status, code)
	}
}

func TestCommitUniverseMapsConfigError(t *testing.T) {
	raw := validDocument(t)
	stub := &stubRemote{pushErr: &remote.ConfigError{Reason: "missing token"}}
	svc, store := newTestService(t, stub)
	if err := store.Write(raw); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	_, err := svc.CommitUniverse(context.Background(), "msg", false, "")
	status, code := domainStatus(t, err)
	if status != 400 || code != "CONFIG_ERROR" {
		t.Fatalf("got %d %s, want 400 CONFIG_ERROR", status, code)
	}
}

func TestCommitUniverseDirectSkipsDisk(t *testing.T) {
	raw := validDocument(t)
	stub := &stubRemote{pushResult: remote.PushResult{Version: "sha", ContentHash: content.Hash(raw)}}
	svc, store := newTestService(t, stub)

	result, err := svc.CommitUniverseDirect(context.Background(), raw, "Publish", true, "")
	if err != nil {
		t.Fatalf("CommitUniverseDirect() error = %v", err)
	}
	if result.Sha != "sha" {
		t.Fatalf("sha = %s", result.Sha)
	}
	if len(stub.pushed) != 1 {
		t.Fatal("expected one push")
	}
	if _, err := store.Read(); !errors.Is(err, diskstore.ErrNotFound) {
		t.Fatal("the direct variant must not touch the filesystem")
	}
}
