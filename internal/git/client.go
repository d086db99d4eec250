package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
	"github.com/hpv-information-centre/reportcompiler/internal/retry"
)

// Repository describes where a document specification lives.
type Repository struct {
	URL    string
	Branch string
	// Path is the specification directory relative to the repository root.
	Path string
	Auth *Auth
}

// Name is the workspace directory name used for the clone.
func (r Repository) Name() string {
	u := strings.TrimRight(r.URL, "/")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	u = strings.TrimSuffix(u, ".git")
	if u == "" || u == "." || u == ".." {
		return "spec"
	}
	return u
}

// Client handles Git operations
type Client struct {
	workspaceDir       string
	logger             *slog.Logger
	hardResetOnDiverge bool
	retry              retry.Policy
}

// NewClient creates a new Git client with the specified workspace directory
func NewClient(workspaceDir string) *Client {
	return &Client{workspaceDir: workspaceDir, logger: slog.Default(), retry: retry.DefaultPolicy()}
}

func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHardResetOnDiverge discards local commits when the clone no longer
// fast-forwards to the remote branch.
func (c *Client) WithHardResetOnDiverge(enabled bool) *Client {
	c.hardResetOnDiverge = enabled
	return c
}

// WithRetry sets the backoff for clones and fetches that time out.
func (c *Client) WithRetry(p retry.Policy) *Client {
	c.retry = p
	return c
}

// Checkout clones repo, or updates an existing clone, and returns the
// absolute specification directory inside it.
func (c *Client) Checkout(ctx context.Context, repo Repository) (string, error) {
	if repo.URL == "" {
		return "", errors.New("repository url is empty")
	}
	if err := os.MkdirAll(c.workspaceDir, 0o750); err != nil {
		return "", fmt.Errorf("create workspace directory: %w", err)
	}
	repoPath := filepath.Join(c.workspaceDir, repo.Name())

	err := c.retry.Do(ctx, isTransient, c.logRetry(repo), func() error {
		if _, statErr := os.Stat(filepath.Join(repoPath, ".git")); statErr == nil {
			return c.updateExistingRepo(repoPath, repo)
		}
		c.logger.Debug("Repository missing, cloning", logfields.Repository(repo.URL))
		return c.clone(repoPath, repo)
	})
	if err != nil {
		return "", err
	}
	return specDir(repoPath, repo.Path)
}

func (c *Client) logRetry(repo Repository) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("Git operation timed out, retrying",
			logfields.Repository(repo.URL),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			logfields.Error(err))
	}
}

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	var timeout *NetworkTimeoutError
	return errors.As(err, &timeout)
}

func (c *Client) clone(repoPath string, repo Repository) error {
	c.logger.Debug("Cloning repository",
		logfields.Repository(repo.URL),
		logfields.Branch(repo.Branch),
		logfields.Path(repoPath))
	if err := os.RemoveAll(repoPath); err != nil {
		return fmt.Errorf("failed to remove existing directory: %w", err)
	}

	cloneOptions := &git.CloneOptions{URL: repo.URL}
	if repo.Branch != "" {
		cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(repo.Branch)
		cloneOptions.SingleBranch = true
	}
	auth, err := repo.Auth.method()
	if err != nil {
		return fmt.Errorf("failed to setup authentication: %w", err)
	}
	cloneOptions.Auth = auth

	repository, err := git.PlainClone(repoPath, false, cloneOptions)
	if err != nil {
		return classifyCloneError(repo.URL, err)
	}
	if ref, herr := repository.Head(); herr == nil {
		c.logger.Info("Repository cloned",
			logfields.Repository(repo.URL),
			slog.String("commit", shortHash(ref.Hash())),
			logfields.Path(repoPath))
	}
	return nil
}

// specDir joins sub onto the clone, refusing paths that leave it.
func specDir(repoPath, sub string) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(sub))
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("repository path %q escapes the repository", sub)
	}
	dir := filepath.Join(repoPath, rel)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("repository path %q: %w", sub, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository path %q is not a directory", sub)
	}
	return filepath.Abs(dir)
}

// classifyCloneError attempts to wrap underlying go-git errors into typed permanent failures.
func classifyCloneError(url string, err error) error {
	l := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return &NotFoundError{Op: "clone", URL: url, Err: err}
	case strings.Contains(l, "authentication") || strings.Contains(l, "auth fail") || strings.Contains(l, "invalid username or password"):
		return &AuthError{Op: "clone", URL: url, Err: err}
	case strings.Contains(l, "not found") || strings.Contains(l, "repository does not exist") || strings.Contains(l, "couldn't find remote ref"):
		return &NotFoundError{Op: "clone", URL: url, Err: err}
	case strings.Contains(l, "unsupported protocol") || strings.Contains(l, "protocol not supported"):
		return &UnsupportedProtocolError{Op: "clone", URL: url, Err: err}
	case strings.Contains(l, "timeout"):
		return &NetworkTimeoutError{Op: "clone", URL: url, Err: err}
	}
	return fmt.Errorf("failed to clone repository %s: %w", url, err)
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:8]
}
