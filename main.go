package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/karzamisca/TaskManager-sub000/internal/audit"
	"github.com/karzamisca/TaskManager-sub000/internal/config"
	"github.com/karzamisca/TaskManager-sub000/internal/database"
	"github.com/karzamisca/TaskManager-sub000/internal/handlers"
	"github.com/karzamisca/TaskManager-sub000/internal/logging"
	"github.com/karzamisca/TaskManager-sub000/internal/profile"
	"github.com/karzamisca/TaskManager-sub000/internal/scheduler"
	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
	"github.com/karzamisca/TaskManager-sub000/internal/staging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "docdesk",
		Short:        "Document desk backed by a remote SFTP file store",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(
		newServeCmd(),
		newListCmd(),
		newStatusCmd(),
		newAuditCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// bootstrap loads settings and opens the log file and database. The
// returned func releases both.
func bootstrap() (func(), error) {
	config.Load()
	logging.Init(config.Cfg)
	if err := database.Init(); err != nil {
		logging.Close()
		return nil, fmt.Errorf("database init: %w", err)
	}
	return func() {
		if err := database.Close(); err != nil {
			logrus.WithError(err).Warn("database close")
		}
		logging.Close()
	}, nil
}

func newManager() *sftpmanager.Manager {
	opts := config.Cfg.ManagerOptions()
	opts.Logger = logrus.WithField("component", "sftp")
	return sftpmanager.NewManager(sftpmanager.NewSSHDialer(), opts)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	mgr := newManager()

	area, err := staging.New(config.Cfg.StagingPath())
	if err != nil {
		return fmt.Errorf("staging init: %w", err)
	}
	defer area.Release()

	auditor, err := audit.NewAuditor(database.DB, config.Cfg.AuditRetentionDays)
	if err != nil {
		return fmt.Errorf("audit init: %w", err)
	}
	mgr.AddConnectionListener(auditor.ConnectionListener())

	folders, err := config.LoadFolders(config.Cfg.FoldersFile)
	if err != nil {
		return err
	}
	logrus.WithField("folders", folders.Names()).Info("folder map loaded")

	sched := scheduler.New()
	jobs := []struct {
		name, spec string
		fn         func(context.Context) error
	}{
		{"audit-purge", config.Cfg.AuditPurgeSchedule, scheduler.PurgeJob(auditor)},
		{"staging-sweep", config.Cfg.StagingSweepSchedule, scheduler.SweepJob(area, config.Cfg.StagingMaxAge)},
		{"remote-probe", config.Cfg.ProbeSchedule, scheduler.ProbeJob(mgr, 30*time.Second)},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if err := sched.Add(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	sched.Start()

	h := handlers.New(mgr, area, auditor, profile.Store{}, folders)
	srv := &http.Server{
		Addr:              config.Cfg.ListenAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.Cfg.SFTPConnectOnStart {
		go func() {
			cfg, err := profile.Load()
			if err != nil {
				logrus.WithError(err).Warn("connect on start: no usable profile")
				return
			}
			ctx, cancel := context.WithTimeout(sigCtx, cfg.ConnectTimeout+time.Minute)
			defer cancel()
			if err := mgr.Connect(ctx, cfg); err != nil {
				logrus.WithError(err).Warn("connect on start failed")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-sigCtx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown")
	}
	if err := mgr.Disconnect(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("sftp disconnect")
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("scheduler stop")
	}
	logrus.Info("server stopped")
	return nil
}
