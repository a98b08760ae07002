package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotenv loads a .env file into the process environment before the
// config file is parsed, so ${VAR} references in certmate.yaml resolve.
// It walks up from the working directory and loads the first .env found;
// existing environment variables always win.
func LoadDotenv() error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return godotenv.Load(candidate)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil // reached the root, no .env anywhere
		}
		dir = parent
	}
}
