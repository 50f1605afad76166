// ABOUTME: Loads environment variables from .env files at startup.
// ABOUTME: Sets variables only when not already present in the environment (no clobber).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads each existing file in order. Missing files are skipped;
// variables already set in the process environment are never overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
