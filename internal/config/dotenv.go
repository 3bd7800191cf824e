package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given .env files (default: ./.env)
// into the process environment. Variables that are already set are kept,
// and a missing file is not an error.
func LoadDotEnv(log *slog.Logger, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			log.Debug("config: loaded .env file", slog.String("path", f))
		case errors.Is(err, fs.ErrNotExist):
			continue
		default:
			return fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}
	return nil
}
