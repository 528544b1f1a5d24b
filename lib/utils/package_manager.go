package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var lockfiles = []struct {
	name           string
	packageManager string
}{
	{"bun.lock", "bun"},
	{"bun.lockb", "bun"},
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"package-lock.json", "npm"},
}

// DetectPackageManager reads the packageManager field of package.json, then
// falls back to the lockfiles found next to it. npm is the default.
func DetectPackageManager(root *string) (*string, error) {
	rootDir := ""
	if root != nil {
		rootDir = *root
	}

	data, err := os.ReadFile(filepath.Join(rootDir, "package.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no package.json found in %q", rootDir)
		}
		return nil, err
	}

	var pkg struct {
		PackageManager string `json:"packageManager"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("invalid package.json: %w", err)
	}

	if pkg.PackageManager != "" {
		// "pnpm@9.1.0" names the manager before the version.
		name, _, _ := strings.Cut(pkg.PackageManager, "@")
		return &name, nil
	}

	for _, l := range lockfiles {
		if _, err := os.Stat(filepath.Join(rootDir, l.name)); err == nil {
			name := l.packageManager
			return &name, nil
		}
	}

	npm := "npm"
	return &npm, nil
}
