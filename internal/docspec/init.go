package docspec

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpv-information-centre/reportcompiler/internal/config"
	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
	"github.com/hpv-information-centre/reportcompiler/internal/frontmatter"
	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
	"github.com/hpv-information-centre/reportcompiler/internal/workspace"
)

const sampleConfig = `doc_name: %s
verbose_name: New report
main_template: report.md
include_scanner: gotemplate
template_renderer: gotemplate
postprocessors: markdown-html
`

const sampleParams = `# Document parameters.
#
# mandatory: [country]
# default_key: country
# allowed_values:
#   - type: constant
#     name: country
#     values: [ESP, FRA]
# augmentation:
#   - type: csv
#     file: countries.csv
#     filter: [country]
`

const sampleMain = `# {{ .meta.verbose_name }}

{{ template "intro.md" . }}
`

const sampleIntro = `{{ .data.greeting }}, this is a sample document.
Edit the templates and source files to customise it.
`

// Create writes a new document specification at dir. The parent directory
// must exist and dir must not.
func Create(dir string) error {
	parent := filepath.Dir(filepath.Clean(dir))
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return rcerrors.ConfigurationError("parent path for the new document specification does not exist").
			WithContext("path", parent)
	}
	if _, err := os.Stat(dir); err == nil {
		return rcerrors.ConfigurationError("document specification already exists").WithContext("path", dir)
	}

	layout := workspace.NewLayout(dir)
	for _, d := range []string{dir, layout.Sources(), layout.Templates(), layout.Data(), layout.Credentials()} {
		if err := os.Mkdir(d, 0o750); err != nil {
			return rcerrors.WorkspaceError("init", err).WithContext("path", d)
		}
	}

	script, err := frontmatter.Render(map[string]any{
		plugin.KeyDataFetcher: map[string]any{
			"type":  "constant",
			"name":  "greeting",
			"value": "Hello",
		},
	}, []byte("printf '{\"greeting\": \"Hello\"}\\n'\n"), frontmatter.Style{
		Newline: "\n",
		Prefix:  "#",
		Shebang: []byte("#!/bin/sh"),
	})
	if err != nil {
		return rcerrors.InternalError("cannot render sample source", err)
	}

	files := map[string][]byte{
		filepath.Join(dir, "config.yaml"):                 []byte(fmt.Sprintf(sampleConfig, filepath.Base(filepath.Clean(dir)))),
		filepath.Join(dir, "params.yaml"):                 []byte(sampleParams),
		filepath.Join(layout.Templates(), "report.md"):    []byte(sampleMain),
		filepath.Join(layout.Templates(), "intro.md"):     []byte(sampleIntro),
		filepath.Join(layout.Sources(), "intro.sh"):       script,
		filepath.Join(dir, config.EnvFiles[0]+".example"): []byte("# Variables referenced as ${NAME} in the configuration files\n"),
	}

	for path, content := range files {
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return rcerrors.WorkspaceError("init", err).WithContext("path", path)
		}
	}
	return nil
}
