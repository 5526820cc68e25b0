package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/usher-cli/usher/internal/announce"
	"github.com/usher-cli/usher/internal/claims"
	"github.com/usher-cli/usher/internal/collector"
	"github.com/usher-cli/usher/internal/config"
	"github.com/usher-cli/usher/internal/handlers"
	"github.com/usher-cli/usher/internal/log"
	"github.com/usher-cli/usher/internal/mutex"
	"github.com/usher-cli/usher/internal/review"
	"github.com/usher-cli/usher/internal/shellsafe"
	"github.com/usher-cli/usher/internal/spawn"
	"github.com/usher-cli/usher/internal/steps"
	"github.com/usher-cli/usher/internal/tracker"
	"github.com/usher-cli/usher/internal/wsm"
)

// app holds the wired-up collaborators one CLI invocation needs.
type app struct {
	cfg     *config.Config
	col     *collector.Collector
	handler *handlers.Handler
	claims  *claims.Service
	ann     *announce.Service
}

// loadConfig resolves the configuration: an explicit --config path, the
// conventional ~/.usher/config.yaml, or pure defaults when identity is
// given on the command line.
func loadConfig(fl *commonFlags) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case fl.configPath != "":
		cfg, err = config.Load(fl.configPath)
	case fileExists(defaultConfigPath()):
		cfg, err = config.Load(defaultConfigPath())
	default:
		if fl.agent == "" || fl.project == "" {
			return nil, fmt.Errorf("no config file found; pass --config, or both --agent and --project")
		}
		cfg = config.Default(fl.agent, fl.project)
	}
	if err != nil {
		return nil, err
	}
	if fl.agent != "" {
		cfg.Agent = fl.agent
	}
	if fl.project != "" {
		cfg.Project = fl.project
	}
	if cfg.Agent == "" || cfg.Project == "" {
		return nil, fmt.Errorf("agent and project are required (config or flags)")
	}
	return cfg, nil
}

// buildApp wires the services, collector, and handler for one invocation.
func buildApp(fl *commonFlags) (*app, error) {
	cfg, err := loadConfig(fl)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.LogLevel)

	runner := spawn.NewRunner()
	cl := claims.NewService(runner, cfg.Tools.Claims, cfg.Agent, cfg.Timeouts.Tool)
	ws := wsm.NewService(runner, cfg.Tools.Workspace, cfg.Timeouts.Tool)
	rv := review.NewService(runner, cfg.Tools.Review, cfg.Timeouts.Tool)
	tr := tracker.NewService(runner, cfg.Tools.Tracker, cfg.Timeouts.Tool)
	an := announce.NewService(runner, cfg.Tools.Announce, cfg.Timeouts.Tool)

	col := collector.New(cl, ws, rv, tr, cfg.Agent, cfg.Project)
	build := shellsafe.NewBuilder(cfg.ShellTools(), cfg.Agent, cfg.Project)
	executor := steps.New(spawn.NewShellRunner(), cfg.Timeouts.Step)
	mtx := mutex.New(cl, an, cfg.Project, cfg.Lease.TTLSecs)

	h := handlers.New(cfg, col, build, executor, mtx, ws, an,
		handlers.Options{Execute: fl.execute})

	return &app{cfg: cfg, col: col, handler: h, claims: cl, ann: an}, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".usher", "config.yaml")
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func journalPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "journal.db")
}

// claimsProber adapts the claims service to the doctor's reachability
// check.
type claimsProber struct{ svc *claims.Service }

func (p claimsProber) Probe(ctx context.Context) error {
	_, err := p.svc.List(ctx, true)
	return err
}
