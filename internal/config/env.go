package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	rcerrors "github.com/hpv-information-centre/reportcompiler/internal/errors"
)

// EnvFiles are loaded from the specification directory, in order. Variables
// already present in the environment are never overwritten.
var EnvFiles = []string{".env", ".env.local"}

// LoadEnv loads the dotenv files of dir that exist.
func LoadEnv(dir string) error {
	for _, name := range EnvFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return rcerrors.WrapConfiguration(err, "cannot load environment file").WithContext("path", path)
		}
	}
	return nil
}
