package git

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
)

var errDiverged = errors.New("local branch diverged from remote")

func (c *Client) updateExistingRepo(repoPath string, repo Repository) error {
	repository, err := git.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	c.logger.Info("Updating repository", logfields.Repository(repo.URL), logfields.Path(repoPath))
	wt, err := repository.Worktree()
	if err != nil {
		return fmt.Errorf("worktree: %w", err)
	}

	if err := c.fetchOrigin(repository, repo); err != nil {
		return classifyFetchError(repo.URL, err)
	}

	branch, err := resolveTargetBranch(repository, repo)
	if err != nil {
		return err
	}

	localRef, remoteRef, err := checkoutAndGetRefs(repository, wt, branch)
	if err != nil {
		return err
	}

	if err := c.syncWithRemote(repository, wt, repo, branch, localRef, remoteRef); err != nil {
		if errors.Is(err, errDiverged) {
			return &RemoteDivergedError{Op: "update", URL: repo.URL, Branch: branch, Err: err}
		}
		return err
	}
	return nil
}

// fetchOrigin fetches every branch of the origin remote.
func (c *Client) fetchOrigin(repository *git.Repository, repo Repository) error {
	fetchOpts := &git.FetchOptions{
		RemoteName: "origin",
		Tags:       git.NoTags,
		RefSpecs:   []ggitcfg.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	}
	auth, err := repo.Auth.method()
	if err != nil {
		return err
	}
	fetchOpts.Auth = auth
	if err := repository.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

// resolveTargetBranch determines the branch to update or checkout, following precedence rules:
// 1. Explicit branch, 2. Current HEAD branch, 3. Remote default branch, 4. "main" fallback.
func resolveTargetBranch(repository *git.Repository, repo Repository) (string, error) {
	if repo.Branch != "" {
		return repo.Branch, nil
	}
	if headRef, err := repository.Head(); err == nil && headRef.Name().IsBranch() {
		return headRef.Name().Short(), nil
	}
	if def, err := resolveRemoteDefaultBranch(repository); err == nil && def != "" {
		return def, nil
	}
	return "main", nil
}

// checkoutAndGetRefs ensures the local branch exists and is checked out, returning both local and remote references.
func checkoutAndGetRefs(repository *git.Repository, wt *git.Worktree, branch string) (localRef, remoteRef *plumbing.Reference, err error) {
	localBranchRef := plumbing.NewBranchReferenceName(branch)
	remoteRef, err = repository.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return nil, nil, fmt.Errorf("remote ref: %w", err)
	}
	localRef, lerr := repository.Reference(localBranchRef, true)
	if lerr != nil {
		if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Hash: remoteRef.Hash(), Create: true, Force: true}); err != nil {
			return nil, nil, fmt.Errorf("checkout new branch: %w", err)
		}
		localRef, err = repository.Reference(localBranchRef, true)
		if err != nil {
			return nil, nil, fmt.Errorf("local ref: %w", err)
		}
		return localRef, remoteRef, nil
	}
	if err = wt.Checkout(&git.CheckoutOptions{Branch: localBranchRef, Force: true}); err != nil {
		return nil, nil, fmt.Errorf("checkout existing branch: %w", err)
	}
	return localRef, remoteRef, nil
}

// syncWithRemote fast-forwards or hard-resets the local branch depending on divergence.
func (c *Client) syncWithRemote(repository *git.Repository, wt *git.Worktree, repo Repository, branch string, localRef, remoteRef *plumbing.Reference) error {
	fastForwardPossible, ffErr := isAncestor(repository, localRef.Hash(), remoteRef.Hash())
	if ffErr != nil {
		c.logger.Warn("ancestor check failed", logfields.Error(ffErr))
	}
	if !fastForwardPossible {
		if !c.hardResetOnDiverge {
			return errDiverged
		}
		c.logger.Warn("Diverged branch, hard resetting", logfields.Repository(repo.URL), logfields.Branch(branch))
	}
	if err := wt.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("reset to remote: %w", err)
	}
	if localRef.Hash() == remoteRef.Hash() {
		c.logger.Info("Repository already up-to-date",
			logfields.Repository(repo.URL),
			logfields.Branch(branch),
			slog.String("commit", shortHash(remoteRef.Hash())))
		return nil
	}
	c.logger.Info("Repository updated",
		logfields.Repository(repo.URL),
		logfields.Branch(branch),
		slog.String("from", shortHash(localRef.Hash())),
		slog.String("to", shortHash(remoteRef.Hash())))
	return nil
}

func resolveRemoteDefaultBranch(repo *git.Repository) (string, error) {
	ref, err := repo.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"), true)
	if err != nil {
		return "", err
	}
	name := ref.Name()
	if !name.IsRemote() {
		return "", fmt.Errorf("origin/HEAD does not resolve to a remote branch")
	}
	return strings.TrimPrefix(name.Short(), "origin/"), nil
}

func isAncestor(repo *git.Repository, a, b plumbing.Hash) (bool, error) {
	if a == b {
		return true, nil
	}
	seen := map[plumbing.Hash]struct{}{}
	queue := []plumbing.Hash{b}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if h == a {
			return true, nil
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		commit, err := repo.CommitObject(h)
		if err != nil {
			return false, err
		}
		queue = append(queue, commit.ParentHashes...)
	}
	return false, nil
}
