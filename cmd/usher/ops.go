package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/usher-cli/usher/internal/api"
	"github.com/usher-cli/usher/internal/config"
	"github.com/usher-cli/usher/internal/doctor"
	"github.com/usher-cli/usher/internal/journal"
	"github.com/usher-cli/usher/internal/log"
	"github.com/usher-cli/usher/internal/tui/watch"
)

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "Output the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := buildApp(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d := doctor.New(a.cfg, claimsProber{svc: a.claims})
	result := d.Validate(ctx)

	if *jsonOut {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(doctor.RenderText(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := buildApp(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	if a.cfg.API.Token == "" {
		fmt.Fprintln(os.Stderr, "api.token is required to serve; refusing an unauthenticated API")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := api.New(api.Config{Listen: a.cfg.API.Listen, Token: a.cfg.API.Token},
		a.col, a.handler, log.WithComponent("api"))
	if err := srv.Start(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	a, err := buildApp(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(a.col), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		return 1
	}
	return 0
}

func runJournalNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: usher journal <list|show> [args]")
		return 2
	}
	switch args[0] {
	case "list":
		return runJournalList(args[1:])
	case "show":
		return runJournalShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown journal action: %s\n", args[0])
		return 2
	}
}

func runJournalList(args []string) int {
	fs := flag.NewFlagSet("journal list", flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	limit := fs.Int("limit", 20, "How many runs to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, journalPath(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	runs, err := j.List(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(out))
		return 0
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return 0
	}
	for _, r := range runs {
		outcome := "ok"
		if r.Halted {
			outcome = "HALTED"
		}
		bead := r.Bead
		if bead == "" {
			bead = "-"
		}
		fmt.Printf("%s  %-8s %-12s %2d step(s)  %-6s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Command, bead, r.StepCount, outcome, r.ID)
	}
	return 0
}

func runJournalShow(args []string) int {
	fs := flag.NewFlagSet("journal show", flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: usher journal show <run-id>")
		return 2
	}

	cfg, err := loadConfig(fl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		return 1
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, journalPath(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer j.Close()

	run, rows, err := j.Show(ctx, fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, _ := json.MarshalIndent(map[string]any{"run": run, "steps": rows}, "", "  ")
		fmt.Println(string(out))
		return 0
	}
	fmt.Printf("run %s: %s", run.ID, run.Command)
	if run.Bead != "" {
		fmt.Printf(" %s", run.Bead)
	}
	fmt.Printf(" by %s at %s\n", run.Agent, run.StartedAt.Format("2006-01-02 15:04:05"))
	for _, sr := range rows {
		mark := "ok"
		if !sr.Success {
			mark = "FAIL"
		}
		fmt.Printf("  [%d] %-4s %s\n", sr.Seq, mark, sr.Command)
		if sr.Stderr != "" {
			fmt.Printf("        stderr: %s\n", sr.Stderr)
		}
	}
	if run.Halted {
		fmt.Println("  run halted before completing all steps")
	}
	return 0
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: usher config <check|lock> [flags]")
		return 2
	}
	action := args[0]
	fs := flag.NewFlagSet("config "+action, flag.ContinueOnError)
	fl := bindCommonFlags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	path := fl.configPath
	if path == "" {
		path = defaultConfigPath()
	}
	if !fileExists(path) {
		fmt.Fprintf(os.Stderr, "No config file at %s\n", path)
		return 1
	}

	switch action {
	case "check":
		if _, err := config.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Config invalid: %v\n", err)
			return 1
		}
		warning, err := config.Verify(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Integrity check failed: %v\n", err)
			return 1
		}
		if warning != "" {
			fmt.Println("WARNING: " + warning)
		}
		fmt.Println("config ok: " + path)
		return 0
	case "lock":
		if _, err := config.Load(path); err != nil {
			fmt.Fprintf(os.Stderr, "Refusing to lock an invalid config: %v\n", err)
			return 1
		}
		if err := config.Lock(path); err != nil {
			fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
			return 1
		}
		fmt.Println("config locked: " + config.ChecksumPath(path))
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 2
	}
}
