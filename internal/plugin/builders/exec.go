// Package builders holds the built-in context builders.
package builders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hpv-information-centre/reportcompiler/internal/plugin"
)

// IDExec runs the fragment source as a script.
const IDExec = "exec"

// KeyInterpreter overrides the interpreter of a script fragment.
const KeyInterpreter = "interpreter"

// Environment variables exported to scripts.
const (
	EnvSnapshot  = "RC_SNAPSHOT"
	EnvFragment  = "RC_FRAGMENT"
	EnvDocSuffix = "RC_DOC_SUFFIX"
	EnvDataDir   = "RC_DATA_DIR"
	EnvFigureDir = "RC_FIGURE_DIR"
)

// DefaultInterpreters maps source extensions (lower case) to the command
// that runs them.
var DefaultInterpreters = map[string][]string{
	".py": {"python3"},
	".r":  {"Rscript", "--vanilla"},
	".sh": {"sh"},
	".js": {"node"},
}

// Exec runs "<interpreter> <source> <snapshot>" and decodes the JSON the
// script prints on stdout. The snapshot file holds {doc_param, data, metadata}.
// A non-zero exit status fails the fragment with the script's stderr.
type Exec struct {
	Interpreters map[string][]string
}

// NewExec is the registry factory for Exec.
func NewExec() plugin.ContextBuilder { return &Exec{Interpreters: DefaultInterpreters} }

func (e *Exec) Build(ctx context.Context, in *plugin.Input) (any, error) {
	if in.Source == "" {
		return nil, errors.New("exec builder: fragment has no source file")
	}
	if in.SnapshotPath == "" {
		return nil, errors.New("exec builder: no input snapshot")
	}
	argv, err := e.interpreter(in)
	if err != nil {
		return nil, err
	}

	args := append(argv[1:], in.Source, in.SnapshotPath)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Dir = in.Env.SourceDir
	cmd.Env = append(os.Environ(),
		EnvSnapshot+"="+in.SnapshotPath,
		EnvFragment+"="+in.Fragment,
		EnvDocSuffix+"="+in.Env.Suffix,
		EnvDataDir+"="+in.Env.DataDir,
		EnvFigureDir+"="+in.Env.FigureDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	in.Log().Debug("Running context script", "command", argv[0], "source", in.Source)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("exec builder: %s: %w", argv[0], err)
		}
		return nil, fmt.Errorf("exec builder: %s: %w: %s", argv[0], err, msg)
	}
	if stderr.Len() > 0 {
		in.Log().Debug("Context script stderr", "output", strings.TrimSpace(stderr.String()))
	}

	var result any
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("exec builder: script output is not JSON: %w", err)
	}
	return result, nil
}

func (e *Exec) interpreter(in *plugin.Input) ([]string, error) {
	switch v := in.Metadata[KeyInterpreter].(type) {
	case string:
		if f := strings.Fields(v); len(f) > 0 {
			return f, nil
		}
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		if len(out) > 0 {
			return out, nil
		}
	case nil:
	default:
		return nil, fmt.Errorf("exec builder: %s must be a string or a list, got %T", KeyInterpreter, v)
	}

	ext := strings.ToLower(in.Ext())
	argv, ok := e.Interpreters[ext]
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("exec builder: no interpreter for extension %q", ext)
	}
	return append([]string(nil), argv...), nil
}
