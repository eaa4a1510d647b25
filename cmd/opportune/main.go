package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/opportune/internal/adapters/catalog"
	"github.com/hylla/opportune/internal/adapters/events"
	serveradapter "github.com/hylla/opportune/internal/adapters/server"
	servercommon "github.com/hylla/opportune/internal/adapters/server/common"
	"github.com/hylla/opportune/internal/adapters/storage/memory"
	"github.com/hylla/opportune/internal/adapters/storage/sqlite"
	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/config"
	"github.com/hylla/opportune/internal/domain"
	"github.com/hylla/opportune/internal/platform"
	"github.com/hylla/opportune/internal/platform/telemetry"
	"github.com/spf13/cobra"
)

var version = "dev"

type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// clock is the wall clock used by the service.
var clock = time.Now

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	devMode    bool
	actorID    string
	jsonOut    bool

	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "opportune",
		Short:         "Track architect-matching opportunities from draft to completion",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", "", "application name for config/data path resolution")
	flags.BoolVar(&opts.devMode, "dev", version == "dev", "use dev mode paths (<app>-dev)")
	flags.StringVar(&opts.actorID, "actor", "", "actor id recorded on mutations")
	flags.BoolVar(&opts.jsonOut, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newPathsCommand(opts),
		newServeCommand(opts),
		newTUICommand(opts),
		newCreateCommand(opts),
		newListCommand(opts),
		newShowCommand(opts),
		newSubmitCommand(opts),
		newCancelCommand(opts),
		newReactivateCommand(opts),
		newHistoryCommand(opts),
		newDashboardCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
	)
	return root
}

// runtime is the wired application for one command invocation.
type runtime struct {
	appName string
	cfg     config.Config
	paths   platform.Paths
	logger  *runtimeLogger
	service *app.Service
	adapter *servercommon.AppServiceAdapter
	closers []func() error
}

// resolve computes the app name, dev mode and paths from flags and environment.
func (o *rootOptions) resolve(cmd *cobra.Command, env config.Env) (string, bool, platform.Paths, error) {
	appName := strings.TrimSpace(o.appName)
	if appName == "" {
		appName = env.AppName
	}
	if appName == "" {
		appName = "opportune"
	}
	devMode := o.devMode
	if !cmd.Flags().Changed("dev") && env.DevMode != nil {
		devMode = *env.DevMode
	}
	paths, err := platform.DefaultPathsWithOptions(platform.Options{AppName: appName, DevMode: devMode})
	if err != nil {
		return "", false, platform.Paths{}, err
	}
	return appName, devMode, paths, nil
}

// open loads configuration and wires storage, catalog, events, telemetry and the service.
func (o *rootOptions) open(cmd *cobra.Command, quietConsole bool) (rt *runtime, err error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	appName, devMode, paths, err := o.resolve(cmd, env)
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		configPath = env.ConfigPath
	}
	if configPath == "" {
		configPath = paths.ConfigPath
	}
	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if cfg, err = cfg.ApplyEnv(env); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if dbPath := strings.TrimSpace(o.dbPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(o.stderr, appName, devMode, cfg.Logging, paths.LogDir, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	if quietConsole {
		logger.SetConsoleEnabled(false)
	}
	rt = &runtime{appName: appName, cfg: cfg, paths: paths, logger: logger}
	rt.closers = append(rt.closers, logger.Close)
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", cmd.Name())
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	shutdownTelemetry, err := telemetry.Setup(cmd.Context(), telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("configure telemetry: %w", err)
	}
	rt.closers = append(rt.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTelemetry(ctx)
	})

	var (
		repo   app.Repository
		pinger servercommon.Pinger
	)
	switch cfg.Database.Backend {
	case config.BackendMemory:
		logger.Warn("using in-memory repository; data is lost on exit")
		repo = memory.New()
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
		if err := paths.EnsureDirs(); err != nil {
			return nil, fmt.Errorf("create app dirs: %w", err)
		}
		if err := config.EnsureConfigDir(cfg.Database.Path); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		sqliteRepo, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		rt.closers = append(rt.closers, sqliteRepo.Close)
		repo, pinger = sqliteRepo, sqliteRepo
	}

	var skills app.SkillsCatalog
	if len(cfg.Skills) > 0 {
		static, err := catalog.NewStatic(catalogSkills(cfg.Skills))
		if err != nil {
			return nil, fmt.Errorf("build skills catalog: %w", err)
		}
		skills = static
		logger.Debug("skills catalog loaded", "skills", len(cfg.Skills))
	}

	bus := events.New()
	for _, sink := range logger.activeSinks() {
		bus.On(events.Wildcard, events.LogHandler(sink))
	}
	rt.closers = append(rt.closers, func() error {
		bus.Close()
		return nil
	})

	staleDraft, awaitingSelection, reactivationWarning := cfg.Lifecycle.Thresholds()
	rt.service = app.NewService(repo, skills, bus, uuid.NewString, func() time.Time { return clock() }, app.ServiceConfig{
		Matching: cfg.Matching,
		Attachments: app.AttachmentPolicy{
			MaxBytes:            cfg.Lifecycle.MaxAttachmentBytes,
			AllowedContentTypes: cfg.Lifecycle.AllowedContentTypes,
		},
		Attention: app.AttentionThresholds{
			StaleDraftAfter:        staleDraft,
			AwaitingSelectionAfter: awaitingSelection,
			ReactivationWarning:    reactivationWarning,
			RecentLimit:            cfg.Lifecycle.RecentLimit,
		},
		OnPublishError: func(ev app.Event, err error) {
			logger.Warn("event publish failed", "event", string(ev.Name), "opportunity_id", ev.OpportunityID, "err", err)
		},
	})
	rt.adapter = servercommon.NewAppServiceAdapter(rt.service, pinger, clock)
	return rt, nil
}

// Close releases every resource opened by open, newest first.
func (rt *runtime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// actorContext attaches the --actor flag to ctx as a user actor.
func (o *rootOptions) actorContext(ctx context.Context) (context.Context, error) {
	return servercommon.WithActor(ctx, o.actorID, string(app.ActorTypeUser))
}

func catalogSkills(in []config.SkillConfig) []app.CatalogSkill {
	out := make([]app.CatalogSkill, 0, len(in))
	for _, s := range in {
		skillType, _ := domain.ParseSkillType(s.Type)
		out = append(out, app.CatalogSkill{
			ID:     s.ID,
			Name:   s.Name,
			Type:   skillType,
			Active: !s.Inactive,
		})
	}
	return out
}
