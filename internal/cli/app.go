// Package cli is the terminal front end: it wires the core packages from
// the runtime settings, asks for share details and turns typed results into
// messages a person can act on.
package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoro11031/netmount/internal/config"
	"github.com/zoro11031/netmount/internal/credentials"
	"github.com/zoro11031/netmount/internal/fstab"
	"github.com/zoro11031/netmount/internal/logging"
	"github.com/zoro11031/netmount/internal/metrics"
	"github.com/zoro11031/netmount/internal/mount"
	"github.com/zoro11031/netmount/internal/service"
	"github.com/zoro11031/netmount/internal/system"
	"github.com/zoro11031/netmount/internal/ui"
)

// AppContext holds all dependencies needed by commands and the menu
type AppContext struct {
	Settings *config.Settings
	// Config remembers the last values typed into the prompts
	Config  *config.Config
	Markers *config.Markers
	UI      *ui.UI
	Service *service.Service
	Metrics *metrics.Collector
	Logger  *zap.Logger

	Runner     *system.PrivilegedRunner
	FileSystem *system.FileSystem
	// Systemd is nil when the host is not booted with systemd
	Systemd *system.ServiceManager
}

// Options adjust NewAppContext
type Options struct {
	NonInteractive bool
	// Mechanism replaces the mount(8) based mechanism; used by tests
	Mechanism mount.Mechanism
	// Table replaces the kernel mount table; used by tests
	Table *system.MountTable
}

// NewAppContext creates an AppContext with all dependencies initialized
func NewAppContext(settings *config.Settings, opts Options) (*AppContext, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	logger, err := logging.New(settings.Log.Level, settings.Log.Format)
	if err != nil {
		return nil, err
	}
	logging.SetBase(logger)

	remembered := config.New(settings.StateFile)
	if err := remembered.Load(); err != nil {
		return nil, fmt.Errorf("failed to load remembered values: %w", err)
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, err
	}

	runner := system.NewPrivilegedRunner(system.NewCommandRunner(), settings.UseSudo)

	mechanism := opts.Mechanism
	if mechanism == nil {
		mechanism = mount.NewCommandMechanism(runner, settings.MountBinary, settings.UmountBinary)
	}
	table := opts.Table
	if table == nil {
		table = system.NewMountTable()
	}

	var backend credentials.SecretBackend
	switch settings.SecretBackend {
	case "memory":
		backend = credentials.NewMemoryBackend()
	default:
		backend = credentials.NewKeyringBackend(settings.KeyringService)
	}
	store := credentials.NewStore(backend)

	fsys := system.NewFileSystem(runner)
	executor := mount.NewExecutor(mount.ExecutorConfig{
		Mechanism:  mechanism,
		Table:      table,
		FileSystem: fsys,
		Store:      store,
		RuntimeDir: settings.RuntimeDir,
		Observer:   collector,
	})

	var systemd *system.ServiceManager
	if sm := system.NewServiceManager(runner); sm.Available() {
		systemd = sm
	}
	var reloader service.Reloader
	if settings.DaemonReload && systemd != nil {
		reloader = systemd
	}

	markers := config.NewMarkers(settings.PendingDir)

	fstabOpts := []fstab.Option{fstab.WithBackup(settings.BackupFstab), fstab.WithLogger(logger)}
	var dirOpts []credentials.DirectoryOption
	// /etc/fstab and the credentials directory belong to root
	if runner.Escalates() {
		admin := system.NewPrivilegedFiles(runner)
		fstabOpts = append(fstabOpts, fstab.WithWriter(admin))
		dirOpts = append(dirOpts, credentials.WithAdminFiles(admin))
	}

	svc := service.New(service.Config{
		Executor:    executor,
		Fstab:       fstab.NewManager(settings.FstabPath, fstabOpts...),
		Store:       store,
		Credentials: credentials.NewDirectory(settings.CredentialsDir, dirOpts...),
		Table:       table,
		Network:     system.NewNetwork(settings.ProbeTimeout),
		Pending:     markers,
		Reloader:    reloader,
		Recorder:    collector,
		Concurrency: settings.MountConcurrency,
	})

	out := ui.New()
	out.SetNonInteractive(opts.NonInteractive)

	return &AppContext{
		Settings: settings,
		Config:   remembered,
		Markers:  markers,
		UI:       out,
		Service:  svc,
		Metrics:  collector,
		Logger:   logger,

		Runner:     runner,
		FileSystem: fsys,
		Systemd:    systemd,
	}, nil
}

// Context returns ctx carrying the application logger
func (a *AppContext) Context(ctx context.Context) context.Context {
	return logging.WithLogger(ctx, a.Logger)
}

// Close removes any credentials file a cancelled mount left behind and
// writes the metrics textfile
func (a *AppContext) Close() error {
	var errs []error
	if err := a.Service.Janitor().ReleaseAll(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Metrics.WriteToTextfile(a.Settings.MetricsTextfile); err != nil {
		errs = append(errs, err)
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
