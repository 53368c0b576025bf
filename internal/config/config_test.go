package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMergesRepoOverGlobal(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	globalDir := filepath.Join(configHome, "aisessions")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	global := `[changelog]
evaluator = "codex"
jobs = 2

[sessions]
codex_dir = "/global/codex"
`
	if err := os.WriteFile(filepath.Join(globalDir, "config.toml"), []byte(global), 0o644); err != nil {
		t.Fatalf("write global config: %v", err)
	}

	repoRoot := t.TempDir()
	repo := `[changelog]
evaluator = "claude"
actor = "dev@example.com"
`
	if err := os.WriteFile(filepath.Join(repoRoot, ".ai-sessions.toml"), []byte(repo), 0o644); err != nil {
		t.Fatalf("write repo config: %v", err)
	}

	cfg, err := Load(repoRoot)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Changelog.Evaluator != "claude" {
		t.Fatalf("repo value must win, got %q", cfg.Changelog.Evaluator)
	}
	if cfg.Changelog.Jobs != 2 {
		t.Fatalf("global value must survive when repo is silent, got %d", cfg.Changelog.Jobs)
	}
	if cfg.Changelog.Actor != "dev@example.com" {
		t.Fatalf("repo-only value missing, got %q", cfg.Changelog.Actor)
	}
	if cfg.Sessions.CodexDir != "/global/codex" {
		t.Fatalf("global sessions dir missing, got %q", cfg.Sessions.CodexDir)
	}
}

func TestLoadWithoutConfigFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	repoRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(repoRoot, ".ais.toml"), []byte("not = [valid"), 0o644); err != nil {
		t.Fatalf("write repo config: %v", err)
	}
	if _, err := Load(repoRoot); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnsureGitignore(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".gitignore")

	if err := EnsureGitignore(root, ".changelog/"); err != nil {
		t.Fatalf("EnsureGitignore failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read .gitignore: %v", err)
	}
	if string(raw) != ".changelog/\n" {
		t.Fatalf("unexpected content: %q", raw)
	}

	// Idempotent.
	if err := EnsureGitignore(root, ".changelog/"); err != nil {
		t.Fatalf("EnsureGitignore failed: %v", err)
	}
	raw, _ = os.ReadFile(path)
	if strings.Count(string(raw), ".changelog/") != 1 {
		t.Fatalf("pattern appended twice: %q", raw)
	}

	// Appends to an existing file without a trailing newline.
	if err := os.WriteFile(path, []byte("node_modules"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := EnsureGitignore(root, ".changelog/"); err != nil {
		t.Fatalf("EnsureGitignore failed: %v", err)
	}
	raw, _ = os.ReadFile(path)
	if string(raw) != "node_modules\n.changelog/\n" {
		t.Fatalf("unexpected content: %q", raw)
	}
}
