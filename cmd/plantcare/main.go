package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Joseda-hg/plantcare/internal/access"
	"github.com/Joseda-hg/plantcare/internal/config"
	"github.com/Joseda-hg/plantcare/internal/db"
	"github.com/Joseda-hg/plantcare/internal/identity"
	"github.com/Joseda-hg/plantcare/internal/logging"
	"github.com/Joseda-hg/plantcare/internal/metrics"
	"github.com/Joseda-hg/plantcare/internal/telemetry"
	"github.com/Joseda-hg/plantcare/internal/tui"
	"github.com/Joseda-hg/plantcare/internal/web"
	"github.com/spf13/cobra"
)

var version = "dev"

// consolePrincipal is the operator at the terminal. The console has no login
// screen, so whoever runs it without --read-only acts as an administrator.
var consolePrincipal = access.Principal{
	Authenticated: true,
	Email:         "console",
	Roles:         []string{access.RoleAdmin, access.RoleUser},
}

type rootFlags struct {
	configPath string
	dbPath     string
	driver     string
	web        bool
	webOnly    bool
	readOnly   bool
	port       int
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:          "plantcare",
		Short:        "Keep track of plants and their maintenance",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "database path (sqlite) or connection URL (postgres)")
	cmd.PersistentFlags().StringVar(&flags.driver, "driver", "", "database driver: sqlite or postgres")
	cmd.Flags().BoolVar(&flags.web, "web", false, "also start the web server")
	cmd.Flags().BoolVar(&flags.webOnly, "web-only", false, "run the web server without the console")
	cmd.Flags().IntVar(&flags.port, "port", 0, "web server port")
	cmd.Flags().BoolVar(&flags.readOnly, "read-only", false, "open the console without write access")

	cmd.AddCommand(newSeedCommand(flags), newUserCommand(flags))
	return cmd
}

func run(ctx context.Context, flags *rootFlags) error {
	// the console owns the terminal, so logs only go to stderr in web-only mode
	logOut := io.Discard
	if flags.webOnly {
		logOut = os.Stderr
	}

	a, err := openApp(flags, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		status  string
		notices chan string
		webDone chan struct{}
	)
	if a.cfg.Web.Enabled || flags.webOnly {
		if err := identity.Seed(ctx, a.store, a.cfg.Admin.Email, a.cfg.Admin.Password); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}

		server := web.NewServer(web.Options{
			Store:         a.store,
			Identity:      identity.New(a.store, a.cfg.Web.SessionSecret, a.cfg.Web.SecureCookies, a.logger),
			Policy:        access.DefaultPolicy(),
			Metrics:       a.metrics,
			Reporter:      a.reporter,
			Logger:        a.logger,
			CSRF:          a.cfg.Web.CSRF,
			SecureCookies: a.cfg.Web.SecureCookies,
			LoginRate:     a.cfg.Web.LoginRate,
		})
		addr := fmt.Sprintf(":%d", a.cfg.Web.Port)
		if flags.webOnly {
			return server.ListenAndServe(ctx, addr)
		}

		if err := server.Listen(addr); err != nil {
			a.logger.Error("web server not started", "error", err)
			status = "Web server not started: " + err.Error()
		} else {
			notices = make(chan string, 1)
			webDone = make(chan struct{})
			go func() {
				defer close(webDone)
				defer close(notices)
				if err := server.ListenAndServe(ctx, addr); err != nil {
					a.logger.Error("web server stopped", "error", err)
					notices <- "Web server stopped: " + err.Error()
				}
			}()
		}
	}

	principal := consolePrincipal
	if flags.readOnly {
		principal = access.AnonymousPrincipal
	}
	err = tui.Run(tui.Options{
		Store:         a.store,
		Policy:        access.DefaultPolicy(),
		Principal:     principal,
		Recorder:      a.metrics,
		Logger:        a.logger.With("module", "console"),
		OnPlantDelete: a.cfg.Database.OnPlantDelete,
		Status:        status,
		Notices:       notices,
	})

	// the store must outlive the web server's in-flight requests
	stop()
	if webDone != nil {
		<-webDone
	}
	return err
}

// app holds what every command needs: config, logger, store and the
// optional error reporter and metrics.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	store    *db.Store
	reporter *telemetry.Reporter
	metrics  *metrics.Metrics
}

func openApp(flags *rootFlags, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log, logOut)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}

	a.reporter, err = telemetry.New(cfg.Sentry, version, nil)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init error reporting: %w", err)
	}
	if cfg.Metrics.Enabled {
		a.metrics, err = metrics.New()
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.DSN != ":memory:" {
		if err := config.EnsureDir(cfg.Database.DSN); err != nil {
			a.Close()
			return nil, err
		}
	}
	sqlDB, err := db.Open(db.Options{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		OnPlantDelete: cfg.Database.OnPlantDelete,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = db.NewStore(sqlDB, cfg.Database.Driver)
	logger.Info("store opened",
		"driver", a.store.Driver(),
		"on_plant_delete", cfg.Database.OnPlantDelete,
		"error_reporting", a.reporter.Enabled(),
	)
	return a, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	a.reporter.Flush(2 * time.Second)
	_ = a.closeLog()
}

// loadConfig reads the config file and applies the command line overrides.
// The file is written back only when a session secret had to be generated.
func loadConfig(flags *rootFlags) (config.Config, error) {
	cfgPath := flags.configPath
	if cfgPath == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return config.Config{}, err
		}
		cfgPath = path
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}

	generated, err := cfg.EnsureSessionSecret()
	if err != nil {
		return config.Config{}, err
	}
	if generated {
		if err := config.Save(cfgPath, cfg); err != nil {
			return config.Config{}, err
		}
	}

	if flags.driver != "" {
		cfg.Database.Driver = flags.driver
	}
	if flags.dbPath != "" {
		cfg.Database.DSN = flags.dbPath
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == config.DriverSQLite {
		cfg.Database.DSN = filepath.Join(filepath.Dir(cfgPath), "plantcare.db")
	}
	if flags.web {
		cfg.Web.Enabled = true
	}
	if flags.port != 0 {
		cfg.Web.Port = flags.port
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
