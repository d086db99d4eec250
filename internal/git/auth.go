package git

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// Environment variables consulted by AuthFromEnv. They are usually loaded
// from the specification's credentials/.env file.
const (
	EnvAuthType = "RC_GIT_AUTH"
	EnvToken    = "RC_GIT_TOKEN"
	EnvUsername = "RC_GIT_USERNAME"
	EnvPassword = "RC_GIT_PASSWORD"
	EnvSSHKey   = "RC_GIT_SSH_KEY"
)

// Auth selects how the repository is accessed: none, ssh, token or basic.
type Auth struct {
	Type     string
	KeyPath  string
	Token    string
	Username string
	Password string
}

// AuthFromEnv builds an Auth from the RC_GIT_* variables. kind overrides
// RC_GIT_AUTH when non-empty. It returns nil when no authentication is set.
func AuthFromEnv(kind string) *Auth {
	if kind == "" {
		kind = os.Getenv(EnvAuthType)
	}
	a := &Auth{
		Type:     strings.ToLower(strings.TrimSpace(kind)),
		KeyPath:  os.Getenv(EnvSSHKey),
		Token:    os.Getenv(EnvToken),
		Username: os.Getenv(EnvUsername),
		Password: os.Getenv(EnvPassword),
	}
	if a.Type == "" && a.Token != "" {
		a.Type = "token"
	}
	if a.Type == "" || a.Type == "none" {
		return nil
	}
	return a
}

// method creates the go-git transport authentication.
func (a *Auth) method() (transport.AuthMethod, error) {
	if a == nil {
		return nil, nil
	}
	switch a.Type {
	case "none", "":
		return nil, nil

	case "ssh":
		keyPath := a.KeyPath
		if keyPath == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("locate default ssh key: %w", err)
			}
			keyPath = filepath.Join(home, ".ssh", "id_rsa")
		}
		publicKeys, err := ssh.NewPublicKeysFromFile("git", keyPath, a.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath, err)
		}
		return publicKeys, nil

	case "token":
		if a.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		return &http.BasicAuth{Username: "token", Password: a.Token}, nil

	case "basic":
		if a.Username == "" || a.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: a.Username, Password: a.Password}, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", a.Type)
	}
}
