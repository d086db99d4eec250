package git

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpv-information-centre/reportcompiler/internal/observability"
)

// remoteFixture is a bare "remote" plus a seed clone used to push to it.
type remoteFixture struct {
	bare string
	seed string
	repo *git.Repository
}

func newRemote(t *testing.T) *remoteFixture {
	t.Helper()
	tmp := t.TempDir()
	f := &remoteFixture{bare: filepath.Join(tmp, "hpv-reports.git"), seed: filepath.Join(tmp, "seed")}
	_, err := git.PlainInit(f.bare, true)
	require.NoError(t, err)
	f.repo, err = git.PlainInit(f.seed, false)
	require.NoError(t, err)
	_, err = f.repo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{f.bare}})
	require.NoError(t, err)
	return f
}

func (f *remoteFixture) commitAndPush(t *testing.T, name, content string) {
	t.Helper()
	addCommit(t, f.repo, f.seed, name, content, "add "+name)
	require.NoError(t, f.repo.Push(&git.PushOptions{RemoteName: "origin"}))
}

func TestRepositoryName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/hpv/reports.git", "reports"},
		{"git@github.com:hpv/reports.git", "reports"},
		{"/srv/git/reports/", "reports"},
		{"", "spec"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Repository{URL: tt.url}.Name(), tt.url)
	}
}

func TestCheckoutClonesAndUpdates(t *testing.T) {
	remote := newRemote(t)
	remote.commitAndPush(t, "reports/country/config.yaml", "main_template: report.md\n")

	ws := t.TempDir()
	client := NewClient(ws).WithLogger(observability.Discard())
	repo := Repository{URL: remote.bare, Branch: "master", Path: "reports/country"}

	dir, err := client.Checkout(t.Context(), repo)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws, "hpv-reports", "reports", "country"), dir)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	remote.commitAndPush(t, "reports/country/params.yaml", "- ESP\n")
	dir, err = client.Checkout(t.Context(), repo)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "params.yaml"))

	seedHead, err := Head(remote.seed)
	require.NoError(t, err)
	cloneHead, err := Head(dir)
	require.NoError(t, err)
	assert.Equal(t, seedHead, cloneHead)
}

func TestCheckoutDivergence(t *testing.T) {
	remote := newRemote(t)
	remote.commitAndPush(t, "config.yaml", "a")

	ws := t.TempDir()
	repo := Repository{URL: remote.bare, Branch: "master"}
	dir, err := NewClient(ws).WithLogger(observability.Discard()).Checkout(t.Context(), repo)
	require.NoError(t, err)

	local, err := git.PlainOpen(dir)
	require.NoError(t, err)
	addCommit(t, local, dir, "local.txt", "B", "local change")
	remote.commitAndPush(t, "remote.txt", "C")

	_, err = NewClient(ws).WithLogger(observability.Discard()).Checkout(t.Context(), repo)
	var diverged *RemoteDivergedError
	require.ErrorAs(t, err, &diverged)
	assert.Equal(t, "master", diverged.Branch)

	_, err = NewClient(ws).WithLogger(observability.Discard()).WithHardResetOnDiverge(true).Checkout(t.Context(), repo)
	require.NoError(t, err)
	seedHead, err := Head(remote.seed)
	require.NoError(t, err)
	cloneHead, err := Head(dir)
	require.NoError(t, err)
	assert.Equal(t, seedHead, cloneHead)
	assert.NoFileExists(t, filepath.Join(dir, "local.txt"))
}

func TestCheckoutRejectsEscapingPath(t *testing.T) {
	remote := newRemote(t)
	remote.commitAndPush(t, "config.yaml", "a")

	_, err := NewClient(t.TempDir()).WithLogger(observability.Discard()).
		Checkout(t.Context(), Repository{URL: remote.bare, Branch: "master", Path: "../outside"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestCheckoutMissingBranch(t *testing.T) {
	remote := newRemote(t)
	remote.commitAndPush(t, "config.yaml", "a")

	_, err := NewClient(t.TempDir()).WithLogger(observability.Discard()).
		Checkout(t.Context(), Repository{URL: remote.bare, Branch: "does-not-exist"})
	require.Error(t, err)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf), "got %T: %v", err, err)
}

func TestResolveTargetBranch(t *testing.T) {
	tmp := t.TempDir()
	repo, err := git.PlainInit(tmp, false)
	require.NoError(t, err)
	addCommit(t, repo, tmp, "a.txt", "a", "a")

	b, err := resolveTargetBranch(repo, Repository{Branch: "feature-x"})
	require.NoError(t, err)
	assert.Equal(t, "feature-x", b)

	b, err = resolveTargetBranch(repo, Repository{})
	require.NoError(t, err)
	assert.Equal(t, "master", b)
}

func TestAuthMethod(t *testing.T) {
	_, err := (&Auth{Type: "token"}).method()
	assert.Error(t, err)
	_, err = (&Auth{Type: "basic", Username: "u"}).method()
	assert.Error(t, err)
	_, err = (&Auth{Type: "kerberos"}).method()
	assert.Error(t, err)

	m, err := (&Auth{Type: "token", Token: "secret"}).method()
	require.NoError(t, err)
	assert.Equal(t, "http-basic-auth", m.Name())

	m, err = (*Auth)(nil).method()
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestAuthFromEnv(t *testing.T) {
	t.Setenv(EnvAuthType, "")
	t.Setenv(EnvToken, "")
	assert.Nil(t, AuthFromEnv(""))

	t.Setenv(EnvToken, "abc")
	a := AuthFromEnv("")
	require.NotNil(t, a)
	assert.Equal(t, "token", a.Type)

	assert.Nil(t, AuthFromEnv("none"))
}

func TestHeadOutsideRepository(t *testing.T) {
	_, err := Head(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestClassifyFetchError(t *testing.T) {
	var ae *AuthError
	assert.ErrorAs(t, classifyFetchError("u", errors.New("authentication required")), &ae)
	var te *NetworkTimeoutError
	assert.ErrorAs(t, classifyFetchError("u", errors.New("dial tcp: i/o timeout")), &te)
	plain := errors.New("boom")
	assert.Equal(t, plain, classifyFetchError("u", plain))
	assert.NoError(t, classifyFetchError("u", nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(classifyFetchError("u", errors.New("i/o timeout"))))
	assert.False(t, isTransient(classifyFetchError("u", errors.New("authentication required"))))
	assert.False(t, isTransient(errors.New("boom")))
}
