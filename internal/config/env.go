package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// ReadEnvFile parses a dotenv file without touching the process environment.
func ReadEnvFile(path string) (map[string]string, error) {
	return godotenv.Read(path)
}

// LoadDotEnv loads the first existing file of paths (default .env, .env.local)
// into the process environment. Variables already set are not overridden.
// It returns the loaded path, or "" when none exists.
func LoadDotEnv(paths ...string) (string, error) {
	if len(paths) == 0 {
		paths = []string{".env", ".env.local"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", nil
}
