// Command usher computes protocol guidance for multi-agent work dispatch:
// what to do next for a bead, as literal safe-to-run commands, from the
// distributed claims, workspace, and review state.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/usher-cli/usher/internal/guidance"
	"github.com/usher-cli/usher/internal/journal"
	"github.com/usher-cli/usher/internal/lock"
	"github.com/usher-cli/usher/internal/log"
)

var version = "0.1.0-dev"

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 2
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start", "review", "finish", "merge", "resume", "cleanup":
		return runGuidance(cmd, args)
	case "doctor":
		return runDoctor(args)
	case "serve":
		return runServe(args)
	case "watch":
		return runWatch(args)
	case "journal":
		return runJournalNoun(args)
	case "config":
		return runConfigNoun(args)
	case "version", "--version":
		fmt.Println("usher " + version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 2
	}
}

// commonFlags are shared by every guidance command.
type commonFlags struct {
	configPath string
	format     string
	execute    bool
	agent      string
	project    string
}

func bindCommonFlags(fs *flag.FlagSet) *commonFlags {
	fl := &commonFlags{}
	fs.StringVar(&fl.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&fl.format, "format", "text", "Output format: text, json, or color")
	fs.BoolVar(&fl.execute, "execute", false, "Run the emitted steps instead of printing them")
	fs.StringVar(&fl.agent, "agent", "", "Agent identity (overrides config)")
	fs.StringVar(&fl.project, "project", "", "Project name (overrides config)")
	return fl
}

// takesTarget reports whether a guidance command needs one positional
// argument, and what it is.
func takesTarget(command string) (string, bool) {
	switch command {
	case "start", "review", "finish":
		return "bead", true
	case "merge":
		return "workspace", true
	}
	return "", false
}

func runGuidance(command string, args []string) int {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	var force bool
	if command == "finish" {
		fs.BoolVar(&force, "force", false, "Bypass the review gate (surfaced as a warning)")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	format, err := guidance.ParseFormat(fl.format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	argName, needsTarget := takesTarget(command)
	var target string
	if needsTarget {
		if fs.NArg() != 1 {
			fmt.Fprintf(os.Stderr, "Usage: usher %s <%s> [flags]\n", command, argName)
			return 2
		}
		target = fs.Arg(0)
	} else if fs.NArg() != 0 {
		fmt.Fprintf(os.Stderr, "Usage: usher %s [flags]\n", command)
		return 2
	}

	a, err := buildApp(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Execute-mode runs mutate shared state; one at a time per agent.
	if fl.execute {
		runLock, err := lock.Acquire(a.cfg.StateDir, a.cfg.Agent)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to acquire run lock: %v\n", err)
			return 1
		}
		defer runLock.Release()
	}

	if command == "resume" {
		return emitResume(ctx, a, format)
	}

	var g *guidance.Guidance
	switch command {
	case "start":
		g, err = a.handler.Start(ctx, target)
	case "review":
		g, err = a.handler.Review(ctx, target)
	case "finish":
		g, err = a.handler.Finish(ctx, target, force)
	case "merge":
		g, err = a.handler.Merge(ctx, target)
	case "cleanup":
		g, err = a.handler.Cleanup(ctx)
	}
	if err != nil {
		log.Error("guidance failed", "command", command, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if fl.execute && g.Executed && g.Report != nil {
		recordRun(ctx, a, command, g.Bead, g)
	}
	return emit(g, format)
}

func emitResume(ctx context.Context, a *app, format guidance.Format) int {
	set, err := a.handler.Resume(ctx)
	if err != nil {
		log.Error("guidance failed", "command", "resume", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, g := range set.PerBead {
		if code := emit(g, format); code != 0 {
			return code
		}
	}
	return emit(set.Summary, format)
}

// emit renders one guidance to stdout. Rendering fails only when the
// fail-closed validation pass rejects an embedded identifier.
func emit(g *guidance.Guidance, format guidance.Format) int {
	out, err := guidance.Render(g, format)
	if err != nil {
		log.Error("guidance rejected by validation", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(out)
	return 0
}

// recordRun journals the execution report. Journaling is best effort:
// losing a journal row must not fail a run whose side effects already
// happened.
func recordRun(ctx context.Context, a *app, command, bead string, g *guidance.Guidance) {
	j, err := journal.Open(ctx, journalPath(a.cfg))
	if err != nil {
		log.Warn("journal unavailable", "error", err)
		return
	}
	defer j.Close()
	if _, err := j.Record(ctx, command, bead, a.cfg.Agent, *g.Report); err != nil {
		log.Warn("journal write failed", "error", err)
	}
}

func printUsage() {
	fmt.Print(`usher - protocol guidance for multi-agent work dispatch

Usage:
  usher <command> [args] [flags]

Guidance Commands:
  start <bead>      Claim a bead and set up a workspace for it
  review <bead>     Where the review stands and what to do about it
  finish <bead>     Merge the bead's workspace and close it out
  merge <workspace> Merge a workspace into the integration target
  resume            Assess every held bead claim
  cleanup           Release everything and sign off

Operations:
  doctor            Check tools, config, and state directory
  serve             Read-only HTTP status API
  watch             Live TUI over claims and workspaces
  journal list      Recent executed runs
  journal show <id> One run with its step outcomes

Config:
  config check      Validate config and verify integrity hashes
  config lock       Authorize current config (update integrity hashes)

General:
  version           Print version
  help              This help

Common Flags:
  --config PATH     Configuration file (default ~/.usher/config.yaml)
  --format FMT      text, json, or color (default text)
  --execute         Run the emitted steps instead of printing them
  --agent NAME      Agent identity (overrides config)
  --project NAME    Project name (overrides config)

Exit codes: 0 guidance produced (any status), 1 operational failure,
2 usage error.
`)
}
