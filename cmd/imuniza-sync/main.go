package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mobile-luiz/VacinACS/internal/config"
	"github.com/mobile-luiz/VacinACS/internal/database"
	"github.com/mobile-luiz/VacinACS/internal/logging"
	"github.com/mobile-luiz/VacinACS/internal/notify"
	"github.com/mobile-luiz/VacinACS/internal/registry"
	"github.com/mobile-luiz/VacinACS/internal/remote"
	"github.com/mobile-luiz/VacinACS/internal/server"
	syncengine "github.com/mobile-luiz/VacinACS/internal/sync"
	"github.com/mobile-luiz/VacinACS/internal/vaccines"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "imuniza-sync",
		Short: "VacinACS community-health sync daemon",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("agent-uid", "", "Community health agent uid owning the synced records")
	cmd.PersistentFlags().String("remote-base-url", "", "Remote tree store base URL")
	cmd.PersistentFlags().String("remote-root-path", defaults.GetString("remote.root_path"), "Remote tree root path")
	cmd.PersistentFlags().Duration("sync-interval", defaults.GetDuration("sync.interval"), "Periodic sync cadence")
	cmd.PersistentFlags().Int("deletion-fan-out", defaults.GetInt("sync.deletion_fan_out"), "Concurrent workers for deletion batches")
	cmd.PersistentFlags().Bool("notifications-disabled", defaults.GetBool("notifications.disabled"), "Disable reminder scheduling")
	cmd.PersistentFlags().String("signing-secret", "", "Remote store signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "agent.uid", "agent-uid")
	bindFlag(cmd, "remote.base_url", "remote-base-url")
	bindFlag(cmd, "remote.root_path", "remote-root-path")
	bindFlag(cmd, "sync.interval", "sync-interval")
	bindFlag(cmd, "sync.deletion_fan_out", "deletion-fan-out")
	bindFlag(cmd, "notifications.disabled", "notifications-disabled")
	bindFlag(cmd, "remote.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	individualStore, err := registry.NewStore(registry.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	doseStore, err := vaccines.NewStore(vaccines.StoreConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var tokens remote.TokenSource
	if appConfig.RemoteSigningKey != "" {
		tokens = remote.NewHS256TokenSource(remote.HS256TokenConfig{
			SigningSecret: []byte(appConfig.RemoteSigningKey),
			Issuer:        "imuniza-sync",
			Audience:      "imuniza-remote",
			Subject:       appConfig.AgentUID,
		})
	}

	remoteClient, err := remote.NewClient(remote.ClientConfig{
		BaseURL:  appConfig.RemoteBaseURL,
		RootPath: appConfig.RemoteRootPath,
		Tokens:   tokens,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var reminders notify.Scheduler
	var timerScheduler *notify.TimerScheduler
	if !appConfig.NotificationsOff {
		timerScheduler = notify.NewTimerScheduler(notify.TimerSchedulerConfig{
			Clock:  time.Now,
			Logger: logger,
		})
		defer timerScheduler.Close()
		reminders = timerScheduler
	}

	engine, err := syncengine.NewEngine(syncengine.EngineConfig{
		Individuals:    individualStore,
		Doses:          doseStore,
		Remote:         remoteClient,
		Reminders:      reminders,
		AgentUID:       appConfig.AgentUID,
		Clock:          time.Now,
		DeletionFanOut: appConfig.DeletionFanOut,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	orchestrator, err := syncengine.NewOrchestrator(syncengine.OrchestratorConfig{
		Engine:   engine,
		Interval: appConfig.SyncInterval,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Individuals: individualStore,
		Doses:       doseStore,
		DoseSyncer:  engine,
		SyncControl: orchestrator,
		AgentUID:    appConfig.AgentUID,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go orchestrator.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
