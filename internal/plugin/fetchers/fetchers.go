// Package fetchers holds the built-in data sources. Tabular results are
// returned as a list of row mappings (column -> value) so that they hash,
// deep-copy and serialise like any other fragment data.
package fetchers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// dataPath resolves a file option against the document data directory.
func dataPath(in *plugin.Input, spec plugin.FetcherSpec, key string) (string, error) {
	name := spec.String(key)
	if name == "" {
		return "", fmt.Errorf("fetcher %q: %q is required", spec.Name, key)
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Join(in.Env.DataDir, name), nil
}

// credentials reads the dotenv file named by the "credentials" option from
// the credentials directory. Variables already set in the environment win.
// No option means no credentials.
func credentials(in *plugin.Input, spec plugin.FetcherSpec) (map[string]string, error) {
	name := spec.String("credentials")
	if name == "" {
		return map[string]string{}, nil
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(in.Env.CredentialsDir, name)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("fetcher %q: read credentials: %w", spec.Name, err)
	}
	for k := range values {
		if v, ok := os.LookupEnv(k); ok {
			values[k] = v
		}
	}
	return values, nil
}

// setting returns the option value, falling back to a credentials entry.
func setting(spec plugin.FetcherSpec, creds map[string]string, option, credential string) string {
	if v := spec.String(option); v != "" {
		return v
	}
	return creds[credential]
}
