package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/content"
)

// GitHubConfig carries the coordinates of the target repository. Fields may
// be empty; Validate runs at call time so misconfiguration surfaces as a
// ConfigError on the operation that needed the remote, not at startup.
type GitHubConfig struct {
	Token  string
	Owner  string
	Repo   string
	Branch string
	// Path of the universe document inside the repository.
	Path string
}

func (c GitHubConfig) validate() error {
	var missing []string
	if strings.TrimSpace(c.Token) == "" {
		missing = append(missing, "token")
	}
	if strings.TrimSpace(c.Owner) == "" {
		missing = append(missing, "owner")
	}
	if strings.TrimSpace(c.Repo) == "" {
		missing = append(missing, "repo")
	}
	if len(missing) > 0 {
		return &ConfigError{Reason: "missing " + strings.Join(missing, ", ")}
	}
	return nil
}

// GitHub implements RepositoryClient over the GitHub contents API. The
// version token is the blob SHA of the document file on the base branch.
type GitHub struct {
	cfg GitHubConfig
	gh  *github.Client
}

func NewGitHub(cfg GitHubConfig) *GitHub {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	tc := oauth2.NewClient(context.Background(), ts)
	return NewGitHubWithClient(cfg, github.NewClient(tc))
}

// NewGitHubWithClient wraps an existing API client, used by tests with a
// stub server.
func NewGitHubWithClient(cfg GitHubConfig, gh *github.Client) *GitHub {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &GitHub{cfg: cfg, gh: gh}
}

func (g *GitHub) FetchCurrent(ctx context.Context) (Snapshot, error) {
	if err := g.cfg.validate(); err != nil {
		return Snapshot{}, err
	}
	file, _, _, err := g.gh.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Repo, g.cfg.Path,
		&github.RepositoryContentGetOptions{Ref: g.cfg.Branch})
	if err != nil {
		return Snapshot{}, unavailable(err)
	}
	if file == nil {
		return Snapshot{}, unavailable(fmt.Errorf("%s is a directory, not a file", g.cfg.Path))
	}
	decoded, err := file.GetContent()
	if err != nil {
		return Snapshot{}, unavailable(fmt.Errorf("decode %s: %w", g.cfg.Path, err))
	}
	return Snapshot{Content: []byte(decoded), Version: file.GetSHA()}, nil
}

// Push writes the document as exactly one commit. The blob SHA used for the
// conflict comparison is re-fetched here, never reused from an earlier read,
// which closes the lost-update window between a client's read and its commit.
func (g *GitHub) Push(ctx context.Context, raw []byte, opts PushOptions) (PushResult, error) {
	if err := g.cfg.validate(); err != nil {
		return PushResult{}, err
	}

	currentSHA, err := g.currentFileSHA(ctx)
	if err != nil {
		return PushResult{}, err
	}
	if err := content.VerifyBaseline(opts.ExpectedVersion, currentSHA); err != nil {
		return PushResult{}, err
	}

	message := opts.Message
	if strings.TrimSpace(message) == "" {
		message = "Update universe content"
	}

	targetBranch := g.cfg.Branch
	if opts.CreatePR {
		targetBranch = fmt.Sprintf("horizon/update-%d", time.Now().Unix())
		if err := g.createBranch(ctx, targetBranch); err != nil {
			return PushResult{}, err
		}
	}

	fileOpts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: raw,
		Branch:  github.String(targetBranch),
	}
	var resp *github.RepositoryContentResponse
	if currentSHA == "" {
		resp, _, err = g.gh.Repositories.CreateFile(ctx, g.cfg.Owner, g.cfg.Repo, g.cfg.Path, fileOpts)
	} else {
		fileOpts.SHA = github.String(currentSHA)
		resp, _, err = g.gh.Repositories.UpdateFile(ctx, g.cfg.Owner, g.cfg.Repo, g.cfg.Path, fileOpts)
	}
	if err != nil {
		return PushResult{}, g.mapAPIError("write content", err)
	}

	result := PushResult{
		Version:     resp.Content.GetSHA(),
		ContentHash: content.Hash(raw),
	}

	if opts.CreatePR {
		pr, _, err := g.gh.PullRequests.Create(ctx, g.cfg.Owner, g.cfg.Repo, &github.NewPullRequest{
			Title: github.String(message),
			Head:  github.String(targetBranch),
			Base:  github.String(g.cfg.Branch),
			Body:  github.String("Content update proposed from The Horizon admin."),
		})
		if err != nil {
			return PushResult{}, g.mapAPIError("create pull request", err)
		}
		result.PRURL = pr.GetHTMLURL()
	}

	return result, nil
}

// currentFileSHA returns the blob SHA of the document on the base branch, or
// "" when the file has never been committed.
func (g *GitHub) currentFileSHA(ctx context.Context) (string, error) {
	file, _, _, err := g.gh.Repositories.GetContents(ctx, g.cfg.Owner, g.cfg.Repo, g.cfg.Path,
		&github.RepositoryContentGetOptions{Ref: g.cfg.Branch})
	if err != nil {
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == 404 {
			return "", nil
		}
		return "", g.mapAPIError("fetch current content", err)
	}
	if file == nil {
		return "", &ConfigError{Reason: fmt.Sprintf("%s is a directory, not a file", g.cfg.Path)}
	}
	return file.GetSHA(), nil
}

func (g *GitHub) createBranch(ctx context.Context, name string) error {
	base, _, err := g.gh.Git.GetRef(ctx, g.cfg.Owner, g.cfg.Repo, "refs/heads/"+g.cfg.Branch)
	if err != nil {
		return g.mapAPIError("resolve base branch", err)
	}
	_, _, err = g.gh.Git.CreateRef(ctx, g.cfg.Owner, g.cfg.Repo, &github.Reference{
		Ref:    github.String("refs/heads/" + name),
		Object: &github.GitObject{SHA: base.Object.SHA},
	})
	if err != nil {
		return g.mapAPIError("create branch", err)
	}
	return nil
}

func (g *GitHub) mapAPIError(op string, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case 401, 403:
			return &AuthError{Reason: errResp.Message}
		case 404:
			return &ConfigError{Reason: fmt.Sprintf("%s/%s not found or token lacks access", g.cfg.Owner, g.cfg.Repo)}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
