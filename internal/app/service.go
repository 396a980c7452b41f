// Package app hosts the publishing orchestrator and its HTTP surface. The
// orchestrator owns the ordering guarantees of the pipeline: validate, then
// persist, then re-read, then re-validate, then push — strictly serialized
// within one request.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/auth"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/content"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/diskstore"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/remote"
	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/universe"
)

const conflictAdvice = "Refresh to load the latest content, re-apply your changes, save to disk, and then commit again."

type Service struct {
	store  *diskstore.Store
	remote remote.RepositoryClient
	auth   *auth.Service
	logger *zap.Logger
}

func New(store *diskstore.Store, remoteClient remote.RepositoryClient, authSvc *auth.Service, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		remote: remoteClient,
		auth:   authSvc,
		logger: logger,
	}
}

// UniverseResponse is the read-path payload. GitBaseHash and LocalDiskHash
// are pointers because either baseline can be legitimately unknown without
// failing the read.
type UniverseResponse struct {
	Universe         *universe.Universe         `json:"universe"`
	Hash             string                     `json:"hash"`
	GitBaseHash      *string                    `json:"gitBaseHash"`
	LocalDiskHash    *string                    `json:"localDiskHash"`
	ValidationErrors []universe.ValidationError `json:"validationErrors"`
	Source           content.Source             `json:"source"`
	Warning          string                     `json:"warning,omitempty"`
}

// universeSource is one level of the read-path fallback chain. Providers are
// tried in order; version is non-empty only for the remote provider.
type universeSource struct {
	name  content.Source
	fetch func(ctx context.Context) (raw []byte, version string, err error)
}

// LoadUniverse serves the document. With syncFromRemote the remote is the
// only acceptable source: failure is returned as-is, never papered over with
// local content the caller explicitly did not ask for. Otherwise the chain is
// local file, then remote, then the bundled default, each response tagged
// with its origin.
func (s *Service) LoadUniverse(ctx context.Context, syncFromRemote bool) (*UniverseResponse, error) {
	if syncFromRemote {
		return s.loadFromRemote(ctx)
	}

	sources := []universeSource{
		{name: content.SourceLocal, fetch: func(ctx context.Context) ([]byte, string, error) {
			raw, err := s.store.Read()
			return raw, "", err
		}},
		{name: content.SourceGitHub, fetch: func(ctx context.Context) ([]byte, string, error) {
			snap, err := s.remote.FetchCurrent(ctx)
			return snap.Content, snap.Version, err
		}},
		{name: content.SourceDefault, fetch: func(ctx context.Context) ([]byte, string, error) {
			return universe.DefaultDocument(), "", nil
		}},
	}

	for _, src := range sources {
		raw, version, err := src.fetch(ctx)
		if err != nil {
			s.logger.Warn("universe source unavailable",
				zap.String("source", string(src.name)), zap.Error(err))
			continue
		}
		u, validationErrs, parseErr := universe.ParseAndValidate(raw)
		if parseErr != nil {
			s.logger.Warn("universe source holds malformed JSON",
				zap.String("source", string(src.name)), zap.Error(parseErr))
			continue
		}

		resp := &UniverseResponse{
			Universe:         u,
			Hash:             content.Hash(raw),
			ValidationErrors: nonNilErrors(validationErrs),
			Source:           src.name,
		}
		switch src.name {
		case content.SourceLocal:
			resp.LocalDiskHash = &resp.Hash
			resp.GitBaseHash = s.bestEffortRemoteVersion(ctx)
		case content.SourceGitHub:
			resp.GitBaseHash = &version
			resp.Warning = "Local universe file is unavailable; serving content from GitHub."
		case content.SourceDefault:
			resp.Warning = "Local file and GitHub are both unavailable; serving the bundled default universe."
		}
		return resp, nil
	}

	// Unreachable: the bundled default cannot fail to parse.
	return nil, domainError(500, "SERVER_ERROR", "No universe source available", nil)
}

func (s *Service) loadFromRemote(ctx context.Context) (*UniverseResponse, error) {
	snap, err := s.remote.FetchCurrent(ctx)
	if err != nil {
		var cfgErr *remote.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, domainError(400, "CONFIG_ERROR", cfgErr.Error(), nil)
		}
		s.logger.Warn("explicit remote sync failed", zap.Error(err))
		return nil, domainErrorWithAdvice(503, "REMOTE_UNAVAILABLE",
			"Could not fetch content from GitHub",
			"GitHub is unreachable. The local copy was not substituted because this request asked for remote truth; retry once GitHub is reachable.",
			nil)
	}

	u, validationErrs, parseErr := universe.ParseAndValidate(snap.Content)
	if parseErr != nil {
		return nil, domainError(500, "REMOTE_CONTENT_INVALID",
			"The document on GitHub is not valid JSON", nil)
	}

	resp := &UniverseResponse{
		Universe:         u,
		Hash:             content.Hash(snap.Content),
		GitBaseHash:      &snap.Version,
		ValidationErrors: nonNilErrors(validationErrs),
		Source:           content.SourceGitHub,
	}
	if raw, err := s.store.Read(); err == nil {
		diskHash := content.Hash(raw)
		resp.LocalDiskHash = &diskHash
	}
	return resp, nil
}

// bestEffortRemoteVersion fetches the remote version token for display only.
// Any failure is logged and swallowed; it must never block the read.
func (s *Service) bestEffortRemoteVersion(ctx context.Context) *string {
	snap, err := s.remote.FetchCurrent(ctx)
	if err != nil {
		s.logger.Warn("baseline fetch from remote failed", zap.Error(err))
		return nil
	}
	return &snap.Version
}

// SaveUniverse is phase one of the publish workflow: validate the incoming
// document and persist it to disk. expectedHash, when supplied, is compared
// against a fresh read of the on-disk content; a missing file counts as no
// prior state so the very first save can proceed.
func (s *Service) SaveUniverse(ctx context.Context, rawUniverse []byte, expectedHash string) (string, error) {
	u, validationErrs, parseErr := universe.ParseAndValidate(rawUniverse)
	if parseErr != nil {
		return "", domainError(400, "PARSE_ERROR", "The universe document is not valid JSON", nil)
	}
	if len(validationErrs) > 0 {
		return "", domainErrorWithAdvice(400, "VALIDATION_FAILED",
			"The universe document failed validation",
			"Fix every listed problem and save again; nothing was written.",
			validationErrs)
	}

	serialized, err := universe.Serialize(u)
	if err != nil {
		return "", domainError(500, "SERVER_ERROR", "Could not serialize universe", nil)
	}

	if expectedHash != "" {
		current, err := s.store.Read()
		switch {
		case errors.Is(err, diskstore.ErrNotFound):
			// Bootstrap: no prior state to conflict with.
		case err != nil:
			return "", domainError(500, "DISK_ERROR", "Could not read current universe file", nil)
		default:
			if err := content.VerifyBaseline(expectedHash, content.Hash(current)); err != nil {
				return "", domainErrorWithAdvice(409, "CONFLICT",
					"The universe on disk changed since you loaded it",
					conflictAdvice, nil)
			}
		}
	}

	if err := s.store.Write(serialized); err != nil {
		s.logger.Error("persist universe", zap.Error(err))
		return "", domainError(500, "DISK_ERROR", "Could not write universe file", nil)
	}
	return content.Hash(serialized), nil
}

// CommitResult is the write-path success payload.
type CommitResult struct {
	Message string
	Sha     string
	Hash    string
	PRURL   string
}

// CommitUniverse is phase two in the disk-intermediated model: the content
// pushed to the remote is re-read from disk, never taken from memory, and
// re-validated even though the save path already validated it. The second
// validation is deliberate; it guards against the file being edited out of
// band between save and commit.
func (s *Service) CommitUniverse(ctx context.Context, message string, createPR bool, baseVersion string) (*CommitResult, error) {
	raw, err := s.store.Read()
	if errors.Is(err, diskstore.ErrNotFound) {
		return nil, domainErrorWithAdvice(400, "NOTHING_TO_COMMIT",
			"No saved universe to commit",
			"Save your changes to disk first, then commit.",
			nil)
	}
	if err != nil {
		return nil, domainError(500, "DISK_ERROR", "Could not read universe file", nil)
	}

	if _, validationErrs, parseErr := universe.ParseAndValidate(raw); parseErr != nil {
		return nil, domainError(400, "PARSE_ERROR", "The saved universe file is not valid JSON", nil)
	} else if len(validationErrs) > 0 {
		return nil, domainErrorWithAdvice(400, "VALIDATION_FAILED",
			"The saved universe file failed validation",
			"The file on disk no longer validates; save a corrected document and commit again.",
			validationErrs)
	}

	return s.push(ctx, raw, message, createPR, baseVersion)
}

// CommitUniverseDirect validates and pushes the submitted document in one
// step, for deployments whose runtime forbids local writes. The conflict and
// success contract is identical to the disk-intermediated path.
func (s *Service) CommitUniverseDirect(ctx context.Context, rawUniverse []byte, message string, createPR bool, baseVersion string) (*CommitResult, error) {
	u, validationErrs, parseErr := universe.ParseAndValidate(rawUniverse)
	if parseErr != nil {
		return nil, domainError(400, "PARSE_ERROR", "The universe document is not valid JSON", nil)
	}
	if len(validationErrs) > 0 {
		return nil, domainErrorWithAdvice(400, "VALIDATION_FAILED",
			"The universe document failed validation",
			"Fix every listed problem and commit again; nothing was pushed.",
			validationErrs)
	}

	serialized, err := universe.Serialize(u)
	if err != nil {
		return nil, domainError(500, "SERVER_ERROR", "Could not serialize universe", nil)
	}
	return s.push(ctx, serialized, message, createPR, baseVersion)
}

func (s *Service) push(ctx context.Context, raw []byte, message string, createPR bool, baseVersion string) (*CommitResult, error) {
	result, err := s.remote.Push(ctx, raw, remote.PushOptions{
		Message:         message,
		CreatePR:        createPR,
		ExpectedVersion: baseVersion,
	})
	if err != nil {
		return nil, mapPushError(err)
	}

	summary := "Committed to GitHub"
	if result.PRURL != "" {
		summary = "Opened a pull request with the new content"
	}
	return &CommitResult{
		Message: summary,
		Sha:     result.Version,
		Hash:    result.ContentHash,
		PRURL:   result.PRURL,
	}, nil
}

func mapPushError(err error) error {
	var conflictErr *content.BaselineConflictError
	if errors.As(err, &conflictErr) {
		return domainErrorWithAdvice(409, "CONFLICT",
			"The remote content changed since your baseline", conflictAdvice, nil)
	}
	var cfgErr *remote.ConfigError
	if errors.As(err, &cfgErr) {
		return domainError(400, "CONFIG_ERROR", cfgErr.Error(), nil)
	}
	var authErr *remote.AuthError
	if errors.As(err, &authErr) {
		return domainError(400, "REMOTE_AUTH_FAILED", authErr.Error(), nil)
	}
	if errors.Is(err, remote.ErrUnavailable) {
		return domainError(503, "REMOTE_UNAVAILABLE", "GitHub is unreachable; the commit was not attempted", nil)
	}
	return fmt.Errorf("push content: %w", err)
}

// Login authenticates the admin operator, translating auth failures into the
// boundary taxonomy.
func (s *Service) Login(ctx context.Context, password, clientIP string) (auth.Session, error) {
	session, err := s.auth.Login(ctx, password, clientIP)
	if err != nil {
		var limited *auth.RateLimitedError
		switch {
		case errors.As(err, &limited):
			minutes := int(math.Ceil(limited.RetryAfter.Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			return auth.Session{}, domainError(429, "RATE_LIMITED",
				fmt.Sprintf("Too many failed attempts. Try again in %d minute(s).", minutes), nil)
		case errors.Is(err, auth.ErrInvalidPassword):
			return auth.Session{}, domainError(401, "INVALID_PASSWORD", "Invalid password", nil)
		case errors.Is(err, auth.ErrNotConfigured):
			return auth.Session{}, domainError(503, "AUTH_UNAVAILABLE", "Admin authentication is not configured", nil)
		}
		s.logger.Error("admin login", zap.Error(err))
		return auth.Session{}, domainError(500, "SERVER_ERROR", "Login failed", nil)
	}
	return session, nil
}

// VerifySession reports whether the token identifies a live admin session.
func (s *Service) VerifySession(token string) error {
	return s.auth.Verify(token)
}

func nonNilErrors(errs []universe.ValidationError) []universe.ValidationError {
	if errs == nil {
		return []universe.ValidationError{}
	}
	return errs
}
