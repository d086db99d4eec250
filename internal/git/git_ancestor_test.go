package git

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// addCommit writes filename under repoPath and commits it, returning the hash.
func addCommit(t *testing.T, repo *git.Repository, repoPath, filename, content, msg string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	full := filepath.Join(repoPath, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := wt.Add(filename); err != nil {
		t.Fatalf("add: %v", err)
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()}})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return hash
}

func TestIsAncestorEdgeCases(t *testing.T) {
	tmp := t.TempDir()
	repo, err := git.PlainInit(tmp, false)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	// Linear history: A -> B -> C
	a := addCommit(t, repo, tmp, "a.txt", "A", "A")
	b := addCommit(t, repo, tmp, "b.txt", "B", "B")
	c := addCommit(t, repo, tmp, "c.txt", "C", "C")

	if same, err := isAncestor(repo, b, b); err != nil || !same {
		t.Fatalf("expected identical hash ancestor true, got %v err=%v", same, err)
	}
	if res, err := isAncestor(repo, a, c); err != nil || !res {
		t.Fatalf("expected A ancestor of C: res=%v err=%v", res, err)
	}
	res, err := isAncestor(repo, c, a)
	if err != nil {
		t.Fatalf("unexpected error reverse direction: %v", err)
	}
	if res {
		t.Fatalf("expected C not ancestor of A")
	}

	// A missing ancestor is simply never reached.
	missingA := plumbing.NewHash(strings.Repeat("1", 40))
	res, err = isAncestor(repo, missingA, c)
	if err != nil || res {
		t.Fatalf("expected false without error for missing ancestor, got %v err=%v", res, err)
	}

	// A missing starting commit cannot be loaded.
	missingB := plumbing.NewHash(strings.Repeat("2", 40))
	if _, err := isAncestor(repo, a, missingB); err == nil {
		t.Fatalf("expected error for nonexistent starting commit")
	}
}
