// ABOUTME: Wiring between resolved configuration and the versioning engine
// ABOUTME: Builds logger, metrics, journal and lock collaborators once per command

package cli

import (
	"context"
	"fmt"
	"os/user"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nainya/assetstore/internal/config"
	"github.com/nainya/assetstore/internal/lockfile"
	"github.com/nainya/assetstore/internal/logger"
	"github.com/nainya/assetstore/internal/metrics"
	"github.com/nainya/assetstore/pkg/query"
	"github.com/nainya/assetstore/pkg/version"
	"github.com/nainya/assetstore/pkg/wal"
)

// App holds the state shared by every command of one invocation
type App struct {
	// global flags
	configFile    string
	projectRoot   string
	workspaceRoot string
	userName      string
	keep          int
	noLock        bool
	noJournal     bool
	logLevel      string
	jsonOutput    bool

	cfg        *config.Config
	configPath string
	log        *logger.Logger
	metrics    *metrics.Metrics
	journal    *wal.Journal
	engine     *version.Engine
	query      *query.Engine
	identity   version.Identity
}

// overrides collects the global flags the user actually set
func (a *App) overrides(cmd *cobra.Command) map[string]any {
	flags := cmd.Flags()
	out := make(map[string]any)
	if flags.Changed("project-root") {
		out["project_root"] = a.projectRoot
	}
	if flags.Changed("workspace") {
		out["workspace_root"] = a.workspaceRoot
	}
	if flags.Changed("user") {
		out["user"] = a.userName
	}
	if flags.Changed("keep") {
		out["versions_to_keep"] = a.keep
	}
	if flags.Changed("no-lock") {
		out["lock.enabled"] = !a.noLock
	}
	if flags.Changed("no-journal") {
		out["journal.enabled"] = !a.noJournal
	}
	if flags.Changed("log-level") {
		out["log.level"] = a.logLevel
	}
	return out
}

// loadConfig resolves configuration without touching the asset tree
func (a *App) loadConfig(cmd *cobra.Command) error {
	cfg, path, err := config.Load(config.LoadOptions{
		ConfigFile: a.configFile,
		Overrides:  a.overrides(cmd),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.configPath = path

	logger.InitGlobalLogger(logger.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Output: cmd.ErrOrStderr(),
	})
	a.log = logger.GetGlobalLogger()
	return nil
}

// setup builds the engine for commands that operate on assets
func (a *App) setup(cmd *cobra.Command) error {
	if err := a.loadConfig(cmd); err != nil {
		return err
	}
	cfg := a.cfg

	ident, err := resolveIdentity(cfg.User)
	if err != nil {
		return err
	}
	a.identity = ident
	a.metrics = metrics.NewMetrics()

	engineCfg := version.Config{
		WorkspaceRoot:         cfg.WorkspaceRoot,
		DefaultVersionsToKeep: cfg.VersionsToKeep,
		Logger:                a.log,
		Metrics:               a.metrics,
		Directory:             osDirectory{},
	}
	if cfg.Lock.Enabled {
		engineCfg.Mutex = lockfile.New(cfg.Lock.RetryDelay, cfg.Lock.Timeout)
	}
	if cfg.Journal.Enabled {
		a.journal = &wal.Journal{Path: cfg.Journal.Path}
		if err := a.journal.Open(); err != nil {
			return fmt.Errorf("open journal %s: %w", cfg.Journal.Path, err)
		}
		engineCfg.Journal = a.journal
	}

	a.engine, err = version.NewEngine(engineCfg)
	if err != nil {
		return err
	}
	a.query = query.NewEngine(a.engine.Store().Fs())

	a.log.Debug("engine ready").
		Str("project_root", cfg.ProjectRoot).
		Str("workspace_root", cfg.WorkspaceRoot).
		Str("user", ident.Login).
		Str("config", a.configPath).
		Send()
	return nil
}

// teardown closes the journal and exports metrics
func (a *App) teardown() error {
	var firstErr error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			firstErr = err
		}
		a.journal = nil
	}
	if a.metrics != nil && a.cfg != nil && a.cfg.Metrics.Textfile != "" {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.log.Warn("metrics export failed").Err(err).Str("path", a.cfg.Metrics.Textfile).Send()
		}
	}
	return firstErr
}

// path resolves a command argument against the project root
func (a *App) path(arg string) string {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}
	return filepath.Join(a.cfg.ProjectRoot, arg)
}

// workingCopy resolves a working copy argument against the workspace root
func (a *App) workingCopy(arg string) string {
	if filepath.IsAbs(arg) {
		return filepath.Clean(arg)
	}
	return filepath.Join(a.cfg.WorkspaceRoot, arg)
}

func (a *App) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func resolveIdentity(login string) (version.Identity, error) {
	if login == "" {
		current, err := user.Current()
		if err != nil {
			return version.Identity{}, fmt.Errorf("cannot determine user: %w", err)
		}
		login = current.Username
	}
	name, _ := osDirectory{}.RealName(login)
	return version.Identity{Login: login, RealName: name}, nil
}

// osDirectory looks users up in the operating system account database
type osDirectory struct{}

func (osDirectory) RealName(login string) (string, bool) {
	u, err := user.Lookup(login)
	if err != nil || u.Name == "" {
		return "", false
	}
	return u.Name, true
}
