package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aisessions/internal/changelog"
	"aisessions/internal/config"
	"aisessions/internal/evaluator"
	"aisessions/internal/format"
	"aisessions/internal/parser"
	"aisessions/internal/store"
	"aisessions/internal/view"
)

var rootCmd = &cobra.Command{
	Use:   "aisessions",
	Short: "Browse coding-agent session transcripts and keep a per-repo changelog",
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	}

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newViewCmd())
	rootCmd.AddCommand(newHTMLCmd())
	rootCmd.AddCommand(newChangelogCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "aisessions: %v\n", err)
		os.Exit(1)
	}
}

func newListCmd() *cobra.Command {
	var (
		cwd          string
		all          bool
		afterStr     string
		beforeStr    string
		limit        int
		formatFlag   string
		noHeader     bool
		summaryWidth int
		sessionsDir  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List session transcripts in reverse chronological order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && cwd != "" {
				return errors.New("--cwd cannot be used with --all")
			}

			var after, before *time.Time
			if afterStr != "" {
				t, err := time.Parse(time.RFC3339, afterStr)
				if err != nil {
					return fmt.Errorf("invalid --after value: %w", err)
				}
				after = &t
			}
			if beforeStr != "" {
				t, err := time.Parse(time.RFC3339, beforeStr)
				if err != nil {
					return fmt.Errorf("invalid --before value: %w", err)
				}
				before = &t
			}

			opts := store.ListOptions{
				Root:       sessionsDir,
				After:      after,
				Before:     before,
				Limit:      limit,
				MaxSummary: summaryWidth,
			}

			if !all {
				if cwd != "" {
					opts.CWD = cwd
				} else {
					wd, err := os.Getwd()
					if err != nil {
						return fmt.Errorf("determine current directory: %w", err)
					}
					opts.CWD = wd
				}
				opts.ExactCWD = true
			} else if cwd != "" {
				opts.CWD = cwd
			}

			result, err := store.ListSessions(opts)
			if err != nil {
				return err
			}

			errs := cmd.ErrOrStderr()
			for _, warn := range result.Warnings {
				fmt.Fprintf(errs, "warning: %v\n", warn)
			}

			return format.WriteSummaries(cmd.OutOrStdout(), result.Summaries, !noHeader, strings.ToLower(formatFlag))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cwd, "cwd", "", "filter sessions whose cwd equals the provided path")
	flags.BoolVar(&all, "all", false, "include sessions from all directories")
	flags.StringVar(&afterStr, "after", "", "include sessions starting on/after the given RFC3339 timestamp")
	flags.StringVar(&beforeStr, "before", "", "include sessions starting on/before the given RFC3339 timestamp")
	flags.IntVar(&limit, "limit", 0, "limit number of sessions returned (0 means no limit)")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for plain output")
	flags.IntVar(&summaryWidth, "summary-width", 160, "maximum characters included in the summary column")
	flags.StringVar(&sessionsDir, "sessions-dir", defaultSessionsDir(), "override the sessions directory")

	return cmd
}

func newViewCmd() *cobra.Command {
	var (
		roleArg      string
		raw          bool
		wrap         int
		maxEvents    int
		sessionsDir  string
		formatFlag   string
		forceColor   bool
		forceNoColor bool
	)

	cmd := &cobra.Command{
		Use:   "view <session-id-or-path>",
		Short: "Render a session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}

			path, err := resolveSessionPath(args[0], sessionsDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			outFile, _ := out.(*os.File)

			return view.Run(view.Options{
				Path:         path,
				Format:       formatFlag,
				Wrap:         wrap,
				MaxEvents:    maxEvents,
				RoleArg:      roleArg,
				ForceColor:   forceColor,
				ForceNoColor: forceNoColor,
				RawFile:      raw,
				Out:          out,
				OutFile:      outFile,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&roleArg, "role", "R", "", "comma-separated roles to include (default: user,assistant; use 'all' for every role)")
	flags.BoolVar(&raw, "raw", false, "output raw JSONL without formatting")
	flags.IntVar(&wrap, "wrap", 0, "wrap message body at the given column width")
	flags.IntVar(&maxEvents, "max", 0, "show only the most recent N events (0 means no limit)")
	flags.StringVar(&sessionsDir, "sessions-dir", defaultSessionsDir(), "override the sessions directory")
	flags.StringVar(&formatFlag, "format", "text", "output format: text or chat")
	flags.BoolVar(&forceColor, "color", false, "force-enable ANSI colors even when stdout is not a TTY")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable ANSI colors regardless of terminal detection")

	return cmd
}

func newHTMLCmd() *cobra.Command {
	var (
		output   string
		label    string
		toolName string
	)

	cmd := &cobra.Command{
		Use:   "html <session-path>",
		Short: "Export a session transcript as paginated HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := parser.ParseSessionFile(args[0])
			if err != nil {
				return err
			}

			if output == "" {
				output = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])) + "-html"
			}

			indexPath, err := view.WriteHTML(session, output, view.HTMLOptions{
				Label:    label,
				ToolName: toolName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", indexPath)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "output directory (default: derived from the transcript name)")
	flags.StringVar(&label, "label", "", "session title shown in page headers")
	flags.StringVar(&toolName, "tool", "", "display name of the source tool")

	return cmd
}

func newChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate and manage per-repo changelog entries",
	}
	cmd.AddCommand(newChangelogGenerateCmd())
	cmd.AddCommand(newChangelogBackfillCmd())
	return cmd
}

func newChangelogGenerateCmd() *cobra.Command {
	var (
		projectRoot   string
		sessionDir    string
		start         string
		end           string
		sourceJSONL   string
		sourceMatch   string
		tool          string
		label         string
		actor         string
		evaluatorName string
		model         string
		priorPrompts  int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one changelog entry from a session window",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveProjectRoot(projectRoot)
			if err != nil {
				return err
			}

			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			eval, err := buildEvaluator(firstNonEmpty(evaluatorName, cfg.Changelog.Evaluator), firstNonEmpty(model, cfg.Changelog.Model), root)
			if err != nil {
				return err
			}

			if err := config.EnsureGitignore(root, changelog.LedgerDirName+"/"); err != nil {
				slog.Warn("could not update .gitignore", "error", err)
			}

			ledger := changelog.NewLedger(root)
			result, err := changelog.Generate(cmd.Context(), ledger, eval, changelog.Request{
				Tool:            tool,
				Label:           label,
				ProjectRoot:     root,
				SessionDir:      sessionDir,
				Start:           start,
				End:             end,
				SourceJSONL:     sourceJSONL,
				SourceMatchJSON: sourceMatch,
				PriorPrompts:    priorPrompts,
				Actor:           firstNonEmpty(actor, cfg.Changelog.Actor),
			})
			if err != nil {
				return err
			}

			printStatus(cmd, result)
			if result.Status == changelog.StatusFailed || result.Status == changelog.StatusRateLimited {
				return fmt.Errorf("changelog generation failed: %w", result.Err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&projectRoot, "project-root", "", "target repo root (default: git toplevel of CWD)")
	flags.StringVar(&sessionDir, "session-dir", "", "session output directory recorded in the entry")
	flags.StringVar(&start, "start", "", "window start timestamp (RFC3339)")
	flags.StringVar(&end, "end", "", "window end timestamp (RFC3339)")
	flags.StringVar(&sourceJSONL, "source-jsonl", "", "transcript JSONL to digest")
	flags.StringVar(&sourceMatch, "source-match", "", "source_match.json recorded in the entry")
	flags.StringVar(&tool, "tool", "", "source tool: codex or claude")
	flags.StringVar(&label, "label", "", "human session label recorded in the entry")
	flags.StringVar(&actor, "actor", "", "override actor recorded in the entry")
	flags.StringVar(&evaluatorName, "evaluator", "", "which CLI evaluates the digest: codex or claude")
	flags.StringVar(&model, "model", "", "override model for the selected evaluator")
	flags.IntVar(&priorPrompts, "prior-prompts", 0, "pre-window prompts kept as context (default 3)")
	cobra.CheckErr(cmd.MarkFlagRequired("start"))
	cobra.CheckErr(cmd.MarkFlagRequired("end"))
	cobra.CheckErr(cmd.MarkFlagRequired("source-jsonl"))

	return cmd
}

func newChangelogBackfillCmd() *cobra.Command {
	var (
		projectRoot   string
		sessionsDirs  []string
		actor         string
		evaluatorName string
		model         string
		dryRun        bool
		limit         int
		jobs          int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Backfill changelog entries from existing session output directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveProjectRoot(projectRoot)
			if err != nil {
				return err
			}

			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			eval, err := buildEvaluator(firstNonEmpty(evaluatorName, cfg.Changelog.Evaluator), firstNonEmpty(model, cfg.Changelog.Model), root)
			if err != nil {
				return err
			}

			if !dryRun {
				if err := config.EnsureGitignore(root, changelog.LedgerDirName+"/"); err != nil {
					slog.Warn("could not update .gitignore", "error", err)
				}
			}

			if jobs == 0 {
				jobs = cfg.Changelog.Jobs
			}

			ledger := changelog.NewLedger(root)
			summary, err := changelog.Backfill(cmd.Context(), ledger, eval, changelog.BackfillOptions{
				ProjectRoot:  root,
				SessionsDirs: sessionsDirs,
				Actor:        firstNonEmpty(actor, cfg.Changelog.Actor),
				DryRun:       dryRun,
				Limit:        limit,
				Jobs:         jobs,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.Halted {
				color.New(color.FgYellow).Fprintf(out, "Backfill halted: processed %d run(s).\n", summary.Processed)
			} else {
				fmt.Fprintf(out, "Backfill complete: processed %d run(s).\n", summary.Processed)
			}
			fmt.Fprintf(out, "appended=%d skipped=%d failed=%d\n", summary.Appended, summary.Skipped, summary.Failed)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&projectRoot, "project-root", "", "target repo root containing .codex/.claude session outputs (default: git toplevel of CWD)")
	flags.StringArrayVar(&sessionsDirs, "sessions-dir", nil, "session parent dir to scan; repeatable (default: <root>/.codex/sessions and <root>/.claude/sessions)")
	flags.StringVar(&actor, "actor", "", "override actor recorded in each entry")
	flags.StringVar(&evaluatorName, "evaluator", "", "which CLI evaluates digests: codex or claude")
	flags.StringVar(&model, "model", "", "override model for the selected evaluator")
	flags.BoolVar(&dryRun, "dry-run", false, "print what would be done without writing entries")
	flags.IntVar(&limit, "limit", 0, "maximum number of runs to process (0 means no limit)")
	flags.IntVar(&jobs, "jobs", 0, "number of session directories processed concurrently (default 1)")

	return cmd
}

func printStatus(cmd *cobra.Command, result changelog.Result) {
	out := cmd.OutOrStdout()
	switch result.Status {
	case changelog.StatusAppended:
		color.New(color.FgGreen).Fprintf(out, "appended run_id=%s\n", result.RunID)
	case changelog.StatusExists:
		color.New(color.FgYellow).Fprintf(out, "exists run_id=%s\n", result.RunID)
	case changelog.StatusRateLimited:
		color.New(color.FgRed).Fprintf(out, "rate_limited run_id=%s\n", result.RunID)
	default:
		color.New(color.FgRed).Fprintf(out, "failed run_id=%s\n", result.RunID)
	}
}

func buildEvaluator(name, model, dir string) (evaluator.Evaluator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "codex":
		return &evaluator.Codex{Model: model, Dir: dir}, nil
	case "claude":
		return &evaluator.Claude{Model: model, Dir: dir}, nil
	default:
		return nil, fmt.Errorf("unknown evaluator: %s", name)
	}
}

func resolveProjectRoot(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	if top, err := gitToplevel(); err == nil && top != "" {
		return top, nil
	}
	return os.Getwd()
}

func gitToplevel() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func resolveSessionPath(arg, root string) (string, error) {
	if arg == "" {
		return "", errors.New("session identifier is empty")
	}

	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return arg, nil
	}

	candidate := filepath.Join(root, arg)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, nil
	}

	return store.FindSessionPath(root, arg)
}

func defaultSessionsDir() string {
	if dir := os.Getenv("AISESSIONS_SESSIONS_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codex", "sessions")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
