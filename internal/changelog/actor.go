package changelog

import (
	"os"
	"os/exec"
	"strings"
)

// actorEnvVars are consulted in order; the first non-empty value wins.
var actorEnvVars = []string{
	"CHANGELOG_ACTOR",
	"CTX_ACTOR",
	"GIT_AUTHOR_EMAIL",
	"GIT_AUTHOR_NAME",
	"USER",
}

// DetectActor resolves who the changelog entries belong to: environment
// overrides first, then the git identity configured for repoRoot. Returns
// "" when nothing is configured.
func DetectActor(repoRoot string) string {
	for _, name := range actorEnvVars {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}

	cmd := exec.Command("git", "config", "user.email")
	if repoRoot != "" {
		cmd.Dir = repoRoot
	}
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// SlugifyActor maps an actor identity to a filesystem-safe ledger
// directory name. Empty or fully-stripped identities collapse to
// "unknown".
func SlugifyActor(actor string) string {
	slug := strings.ToLower(strings.TrimSpace(actor))
	slug = strings.ReplaceAll(slug, "@", "-at-")

	var b strings.Builder
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-._")
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
