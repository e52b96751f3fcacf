package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files from the working directory and from the directory
// of the running executable. Variables that are already set are left untouched.
// It returns the files that were loaded so the caller can log them once a logger
// exists.
func LoadEnvFiles() []string {
	candidates := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), ".env"))
	}

	var loaded []string
	seen := make(map[string]bool)
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if err := godotenv.Load(abs); err == nil {
			loaded = append(loaded, abs)
		}
	}
	return loaded
}
