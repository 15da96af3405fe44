package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/repro/internal/async"
	"github.com/getsentry/repro/internal/auth"
	"github.com/getsentry/repro/internal/capture/router"
	"github.com/getsentry/repro/internal/config"
	"github.com/getsentry/repro/internal/httpserver"
	"github.com/getsentry/repro/internal/logging"
	"github.com/getsentry/repro/internal/monitor"
	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *logrus.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "async_capture_server",
		Short:         "Reproduces error capture from an async view with a lazily resolved request user",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	v, err := config.NewViper()
	if err != nil {
		root.RunE = func(*cobra.Command, []string) error { return err }
		return root
	}
	a.v = v
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.load()
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "optional YAML config file")
	root.PersistentFlags().String("database", "", "SQLite database path")
	_ = v.BindPFlag("database.path", root.PersistentFlags().Lookup("database"))

	root.AddCommand(a.serveCommand(), a.migrateCommand(), a.createSuperuserCommand())
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := logging.InitLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) openStore(ctx context.Context) (*auth.SQLiteStore, error) {
	store, err := auth.OpenSQLiteStore(a.cfg.Database.Path, a.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	options := monitor.NewClientOptions(a.cfg.Sentry)
	options.Integrations = func(integrations []sentry.Integration) []sentry.Integration {
		return append(integrations, monitor.NewUserIntegration(a.logger))
	}
	flush, err := monitor.InitSentry(options, a.logger)
	if err != nil {
		return err
	}
	defer flush()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	executor := async.NewExecutor(a.logger)
	defer executor.Close()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router.CreateRouter(store, executor, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Infof("Visit http://localhost%s/ to reproduce, log in at /admin/ to attach a session", a.cfg.Server.Addr)
	return httpserver.Run(ctx, srv, a.logger)
}

func (a *app) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the user and session tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(context.Background())
			if err != nil {
				return err
			}
			a.logger.Infof("Database %s is up to date", a.cfg.Database.Path)
			return store.Close()
		},
	}
}

func (a *app) createSuperuserCommand() *cobra.Command {
	var input auth.NewUser
	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a staff superuser for the admin site",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			input.IsStaff = true
			input.IsSuperuser = true
			user, err := store.CreateUser(ctx, input)
			if errors.Is(err, auth.ErrUserExists) {
				return fmt.Errorf("username %q is already taken: %w", input.Username, err)
			}
			if err != nil {
				return err
			}
			a.logger.Infof("Superuser %s created successfully", user.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&input.Username, "username", "admin", "username")
	cmd.Flags().StringVar(&input.Email, "email", "", "email address")
	cmd.Flags().StringVar(&input.Password, "password", "", "password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
