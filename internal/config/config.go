// Package config loads tool configuration from TOML files: a global file
// under the user config dir and a per-repo file, repo values winning.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Repo-level config file names, checked in order.
var repoConfigNames = []string{".ai-sessions.toml", ".ais.toml"}

// Config is the merged tool configuration. Zero values mean "not set".
type Config struct {
	Sessions  SessionsConfig  `toml:"sessions"`
	Changelog ChangelogConfig `toml:"changelog"`
}

// SessionsConfig points at transcript trees.
type SessionsConfig struct {
	CodexDir  string `toml:"codex_dir"`
	ClaudeDir string `toml:"claude_dir"`
}

// ChangelogConfig configures entry generation.
type ChangelogConfig struct {
	Evaluator string `toml:"evaluator"`
	Model     string `toml:"model"`
	Actor     string `toml:"actor"`
	Jobs      int    `toml:"jobs"`
}

// Load merges the global config and the repo config found at repoRoot.
// Missing files are fine; malformed TOML is an error.
func Load(repoRoot string) (Config, error) {
	var cfg Config

	if globalPath := globalConfigPath(); globalPath != "" {
		if err := loadInto(globalPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	if repoRoot != "" {
		for _, name := range repoConfigNames {
			path := filepath.Join(repoRoot, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			var repo Config
			if err := loadInto(path, &repo); err != nil {
				return Config{}, err
			}
			cfg = merge(cfg, repo)
			break
		}
	}

	return cfg, nil
}

func globalConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "aisessions", "config.toml")
}

func loadInto(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// merge overlays non-zero repo values onto the base config.
func merge(base, over Config) Config {
	out := base
	if over.Sessions.CodexDir != "" {
		out.Sessions.CodexDir = over.Sessions.CodexDir
	}
	if over.Sessions.ClaudeDir != "" {
		out.Sessions.ClaudeDir = over.Sessions.ClaudeDir
	}
	if over.Changelog.Evaluator != "" {
		out.Changelog.Evaluator = over.Changelog.Evaluator
	}
	if over.Changelog.Model != "" {
		out.Changelog.Model = over.Changelog.Model
	}
	if over.Changelog.Actor != "" {
		out.Changelog.Actor = over.Changelog.Actor
	}
	if over.Changelog.Jobs != 0 {
		out.Changelog.Jobs = over.Changelog.Jobs
	}
	return out
}

// EnsureGitignore makes sure pattern is ignored in the repo's .gitignore,
// appending it when absent. Creates the file if the repo has none.
func EnsureGitignore(repoRoot, pattern string) error {
	path := filepath.Join(repoRoot, ".gitignore")

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read .gitignore: %w", err)
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if strings.TrimSpace(line) == pattern {
			return nil
		}
	}

	content := string(raw)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += pattern + "\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("update .gitignore: %w", err)
	}
	return nil
}
