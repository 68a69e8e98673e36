// Thedrop generates and sends The Drop, a daily newsletter synthesized
// from the newsletters already sitting in a labeled Gmail mailbox.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); secrets referenced
// as ${VARS} in it may come from the environment or a .env file.
//
// Usage:
//
//	thedrop send                 Generate today's issue and send it
//	thedrop preview              Generate but write HTML to a file instead of sending
//	thedrop version              Print version and build information
//
// Flags:
//
//	-config <path>       Explicit config file location
//	-days <n>            Fetch the last n days instead of since the last run
//	-include-read        Include messages already marked read
//	-preview-file <path> Where preview writes its HTML (default preview.html)
//	-log-level <level>   trace, debug, info, warn, or error
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/r8slab/the-drop/internal/buildinfo"
	"github.com/r8slab/the-drop/internal/config"
	"github.com/r8slab/the-drop/internal/corpus"
	"github.com/r8slab/the-drop/internal/mailstore"
	"github.com/r8slab/the-drop/internal/parse"
	"github.com/r8slab/the-drop/internal/pipeline"
	"github.com/r8slab/the-drop/internal/prompt"
	"github.com/r8slab/the-drop/internal/render"
	"github.com/r8slab/the-drop/internal/state"
	"github.com/r8slab/the-drop/internal/synth"
)

// defaultLookback bounds the first run, when no last-run time exists yet.
const defaultLookback = 72 * time.Hour

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options is the parsed command line.
type options struct {
	command     string
	configPath  string
	days        int
	includeRead bool
	previewFile string
	logLevel    string
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small enough that manual parsing is clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	opts := options{previewFile: "preview.html"}

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			opts.configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-days" && i+1 < len(args):
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid -days value: %q", args[i+1])
			}
			opts.days = n
			i++
		case args[i] == "-include-read":
			opts.includeRead = true
		case args[i] == "-preview-file" && i+1 < len(args):
			opts.previewFile = args[i+1]
			i++
		case args[i] == "-log-level" && i+1 < len(args):
			opts.logLevel = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-log-level="):
			opts.logLevel = strings.TrimPrefix(args[i], "-log-level=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && opts.command == "":
			opts.command = args[i]
		default:
			return fmt.Errorf("unknown argument: %s", args[i])
		}
	}

	switch opts.command {
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "send", "preview":
		return runIssue(ctx, stdout, opts)
	case "":
		printUsage(stderr)
		return fmt.Errorf("no command given")
	default:
		return fmt.Errorf("unknown command: %s", opts.command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `thedrop - automated daily newsletter generator

Usage:
  thedrop send                 Generate today's issue and send it
  thedrop preview              Generate but write HTML to a file instead of sending
  thedrop version              Print version and build information

Flags:
  -config <path>       Explicit config file location
  -days <n>            Fetch the last n days instead of since the last run
  -include-read        Include messages already marked read
  -preview-file <path> Where preview writes its HTML (default preview.html)
  -log-level <level>   trace, debug, info, warn, or error
`)
	return nil
}

// runIssue wires the pipeline and executes one generation.
func runIssue(ctx context.Context, stdout io.Writer, opts options) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Secrets may live in a .env next to the binary; a missing file is
	// not an error.
	_ = godotenv.Load()

	cfgPath, err := config.FindConfig(opts.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	if levelName == "" {
		levelName = "info"
	}
	level, err := config.ParseLogLevel(levelName)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stdout, level).With("run_id", uuid.NewString())
	logger.Info("starting", "version", buildinfo.Version, "config", cfgPath, "command", opts.command)

	if cfg.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic api_key not configured")
	}
	preview := opts.command == "preview"
	if !preview && cfg.Newsletter.SendTo == "" {
		return fmt.Errorf("newsletter send_to not configured")
	}

	store, err := state.NewStore(filepath.Join(cfg.DataDir, "thedrop.db"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	since, err := runWindow(store, opts.days)
	if err != nil {
		return err
	}

	mailStore, err := mailstore.NewGmailStore(ctx,
		cfg.Gmail.Source.CredentialsFile, cfg.Gmail.Source.TokenFile,
		cfg.Gmail.LabelPrefix, cfg.Gmail.MaxMessages, logger)
	if err != nil {
		return fmt.Errorf("source account: %w", err)
	}
	mailer, err := mailstore.NewGmailMailer(ctx,
		cfg.Gmail.Sender.CredentialsFile, cfg.Gmail.Sender.TokenFile,
		cfg.Gmail.Sender.Address, logger)
	if err != nil {
		return fmt.Errorf("sender account: %w", err)
	}

	tiers, err := corpus.ParseTierTable(cfg.Newsletter.Tiers)
	if err != nil {
		return fmt.Errorf("newsletter tiers: %w", err)
	}
	renderer, err := render.NewRenderer(cfg.Newsletter.TemplateFile, cfg.Newsletter.HeaderImage, logger)
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Deps{
		Store:     mailStore,
		Mailer:    mailer,
		Synth:     synth.NewAnthropicClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model, logger),
		Builder:   corpus.NewBuilder(tiers, logger),
		Assembler: prompt.NewAssembler(prompt.Limits{
			MaxBytes:        cfg.Prompt.MaxBytes,
			MaxItemBytes:    cfg.Prompt.MaxItemBytes,
			MaxLinksPerItem: cfg.Prompt.MaxLinksPerItem,
		}, logger),
		Parser:   parse.NewParser(render.SectionNames(), logger),
		Renderer: renderer,
		Logger:   logger,
	}, pipeline.Options{
		SendTo:          cfg.Newsletter.SendTo,
		MaxOutputTokens: cfg.Anthropic.MaxOutputTokens,
		DryRun:          preview,
		MaxSkipRatio:    cfg.Newsletter.MaxSkipRatio,
	})

	result, err := p.Run(ctx, mailstore.FetchOptions{
		Since:       since,
		IncludeRead: opts.includeRead,
	})
	if err != nil {
		logger.Error("run failed", "error", err)
		if !preview {
			p.NotifyFailure(ctx, err)
		}
		return err
	}

	if preview && result.HTML != "" {
		if err := os.WriteFile(opts.previewFile, []byte(result.HTML), 0o644); err != nil {
			return fmt.Errorf("write preview: %w", err)
		}
		fmt.Fprintf(stdout, "Preview written to %s\nSubject: %s\n", opts.previewFile, result.Subject)
		return nil
	}

	if result.Sent {
		now := time.Now()
		if err := store.SetLastRun(now); err != nil {
			logger.Error("recording last run failed", "error", err)
		}
		if err := store.RecordIssue(state.IssueRecord{
			SentAt:  now,
			Subject: result.Subject,
			Sources: result.Sources,
			Items:   result.Items,
			Bytes:   len(result.HTML),
		}); err != nil {
			logger.Error("recording issue failed", "error", err)
		}
	}
	return nil
}

// runWindow decides how far back this run fetches. An explicit -days
// wins; otherwise the window opens at the last successful run, or
// defaultLookback ago when no run has completed yet.
func runWindow(store *state.Store, days int) (time.Time, error) {
	if days > 0 {
		return time.Now().Add(-time.Duration(days) * 24 * time.Hour), nil
	}
	last, err := store.LastRun()
	if err != nil {
		return time.Time{}, fmt.Errorf("read last run: %w", err)
	}
	if last.IsZero() {
		return time.Now().Add(-defaultLookback), nil
	}
	return last, nil
}
