package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/AgentFoundryExamples/the-horizon-sub003/internal/content"
)

const gitDirDocument = "universe.json"

// GitDir implements RepositoryClient against a git repository on the local
// filesystem, for deployments without GitHub access and for tests. The
// version token is the commit SHA at the head of the content branch.
//
// A single mutex serializes repository access; go-git worktree operations are
// not safe to interleave on the same checkout.
type GitDir struct {
	dir    string
	branch string
	author string
	mu     sync.Mutex
}

func NewGitDir(dir string) *GitDir {
	return &GitDir{dir: dir, branch: "main", author: "The Horizon"}
}

func (g *GitDir) FetchCurrent(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if strings.TrimSpace(g.dir) == "" {
		return Snapshot{}, &ConfigError{Reason: "git directory not set"}
	}

	repo, err := git.PlainOpen(g.dir)
	if err != nil {
		return Snapshot{}, unavailable(fmt.Errorf("open repo: %w", err))
	}
	head, err := g.headCommit(repo)
	if err != nil {
		return Snapshot{}, err
	}
	raw, err := readDocumentFromCommit(head)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Content: raw, Version: head.Hash.String()}, nil
}

func (g *GitDir) Push(ctx context.Context, raw []byte, opts PushOptions) (PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if strings.TrimSpace(g.dir) == "" {
		return PushResult{}, &ConfigError{Reason: "git directory not set"}
	}

	repo, err := g.ensureRepo()
	if err != nil {
		return PushResult{}, err
	}

	// The comparison token is resolved here, under the repository lock,
	// immediately before the write. An earlier read's token is never trusted.
	current := ""
	if ref, err := repo.Reference(plumbing.NewBranchReferenceName(g.branch), true); err == nil {
		current = ref.Hash().String()
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return PushResult{}, fmt.Errorf("resolve branch %s: %w", g.branch, err)
	}
	if err := content.VerifyBaseline(opts.ExpectedVersion, current); err != nil {
		return PushResult{}, err
	}

	targetBranch := g.branch
	if opts.CreatePR {
		targetBranch = fmt.Sprintf("proposal/update-%d", time.Now().UnixNano())
	}

	hash, err := g.commit(repo, targetBranch, current, raw, opts.Message)
	if err != nil {
		return PushResult{}, err
	}

	result := PushResult{
		Version:     hash.String(),
		ContentHash: content.Hash(raw),
	}
	if opts.CreatePR {
		result.PRURL = "refs/heads/" + targetBranch
	}
	return result, nil
}

func (g *GitDir) ensureRepo() (*git.Repository, error) {
	repo, err := git.PlainOpen(g.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(g.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(g.branch))
	if err := repo.Storer.SetReference(ref); err != nil {
		return nil, fmt.Errorf("set HEAD to %s: %w", g.branch, err)
	}
	return repo, nil
}

func (g *GitDir) headCommit(repo *git.Repository) (*object.Commit, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(g.branch), true)
	if err != nil {
		return nil, unavailable(fmt.Errorf("resolve branch %s: %w", g.branch, err))
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, unavailable(fmt.Errorf("load commit object: %w", err))
	}
	return commitObj, nil
}

func (g *GitDir) commit(repo *git.Repository, branchName, baseSHA string, raw []byte, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if baseSHA == "" {
		// No commits yet: point HEAD at the target branch so the first
		// commit creates it.
		ref := plumbing.NewSymbolicReference(plumbing.HEAD, branchRef)
		if err := repo.Storer.SetReference(ref); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("set HEAD to %s: %w", branchName, err)
		}
	} else if err := checkoutBranch(repo, branchName); err != nil {
		return plumbing.ZeroHash, err
	}

	if strings.TrimSpace(message) == "" {
		message = "Update universe content"
	}

	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, gitDirDocument), raw, 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", gitDirDocument, err)
	}
	if _, err := worktree.Add(gitDirDocument); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("git add content: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.author,
			Email: "horizon@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func checkoutBranch(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func readDocumentFromCommit(commitObj *object.Commit) ([]byte, error) {
	file, err := commitObj.File(gitDirDocument)
	if err != nil {
		return nil, unavailable(fmt.Errorf("load %s from commit: %w", gitDirDocument, err))
	}
	reader, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read content bytes: %w", err)
	}
	return raw, nil
}
