// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: moonshot-api-key, gemini-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Key files and the environment variables that stand in for them.
const (
	MoonshotKeyFile = "moonshot-api-key"
	GeminiKeyFile   = "gemini-api-key"

	MoonshotKeyEnv = "KIMI_API_KEY"
	GeminiKeyEnv   = "GEMINI_API_KEY"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged as warnings but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			zap.L().Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// APIKey returns the key for an extraction backend ("chat" or "gemini"):
// the key file from secrets when present, otherwise the environment
// variable. It returns "" when neither is set.
func APIKey(secrets map[string]string, backend string) string {
	file, env := MoonshotKeyFile, MoonshotKeyEnv
	if backend == "gemini" {
		file, env = GeminiKeyFile, GeminiKeyEnv
	}
	if v := secrets[file]; v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(env))
}
