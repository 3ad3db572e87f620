package config

import (
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv reads dir/.env and then dir/.env.local. Either file may be
// missing. Values from .env.local take precedence.
func LoadDotEnv(dir string) {
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	_ = godotenv.Overload(filepath.Join(dir, ".env.local"))
}
