package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/auth"
	"github.com/inkwell-labs/inkwell/backend/internal/config"
	"github.com/inkwell-labs/inkwell/backend/internal/database"
	"github.com/inkwell-labs/inkwell/backend/internal/directory"
	"github.com/inkwell-labs/inkwell/backend/internal/ids"
	"github.com/inkwell-labs/inkwell/backend/internal/logging"
	"github.com/inkwell-labs/inkwell/backend/internal/mailqueue"
	"github.com/inkwell-labs/inkwell/backend/internal/notes"
	"github.com/inkwell-labs/inkwell/backend/internal/notify"
	"github.com/inkwell-labs/inkwell/backend/internal/presence"
	"github.com/inkwell-labs/inkwell/backend/internal/server"
	"github.com/inkwell-labs/inkwell/backend/internal/sharing"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "inkwell-api",
		Short: "Inkwell collaboration backend service",
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
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().Int("presence-sweep-interval", defaults.GetInt("presence.sweep_interval_s"), "Presence sweep interval in seconds")
	cmd.PersistentFlags().Int("presence-idle-timeout", defaults.GetInt("presence.idle_timeout_s"), "Presence idle timeout in seconds")
	cmd.PersistentFlags().Int("email-poll-interval", defaults.GetInt("email.poll_interval_s"), "Email worker poll interval in seconds")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "presence.sweep_interval_s", "presence-sweep-interval")
	bindFlag(cmd, "presence.idle_timeout_s", "presence-idle-timeout")
	bindFlag(cmd, "email.poll_interval_s", "email-poll-interval")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
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

	idProvider := ids.NewUUIDProvider()

	tokenManager := auth.NewTokenManager(auth.TokenManagerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.TokenTTL,
	})

	noteStore, err := notes.NewStore(notes.StoreConfig{Database: db})
	if err != nil {
		return err
	}
	userDirectory, err := directory.NewService(directory.ServiceConfig{
		Database:   db,
		IDProvider: idProvider,
	})
	if err != nil {
		return err
	}
	dispatcher, err := notify.NewDispatcher(notify.DispatcherConfig{
		Database:   db,
		IDProvider: idProvider,
	})
	if err != nil {
		return err
	}
	mailQueue, err := mailqueue.NewQueue(mailqueue.QueueConfig{
		Database:   db,
		IDProvider: idProvider,
	})
	if err != nil {
		return err
	}

	mailWorker, err := mailqueue.NewWorker(mailqueue.WorkerConfig{
		Database:     db,
		Sender:       &mailqueue.LoggingSender{Logger: logger},
		Logger:       logger,
		PollInterval: appConfig.MailPollEvery,
	})
	if err != nil {
		return err
	}
	defer mailWorker.Close()

	registry := presence.NewRegistry(presence.RegistryConfig{
		SweepInterval: appConfig.PresenceSweepEvery,
		IdleTimeout:   appConfig.PresenceIdleAfter,
		Logger:        logger,
	})
	defer registry.Close()

	grantStore, err := sharing.NewGrantStore(db)
	if err != nil {
		return err
	}
	pendingStore, err := sharing.NewPendingStore(db)
	if err != nil {
		return err
	}
	accessController, err := sharing.NewAccessController(noteStore, grantStore)
	if err != nil {
		return err
	}
	workflow, err := sharing.NewWorkflow(sharing.WorkflowConfig{
		Access:    accessController,
		Notes:     noteStore,
		Grants:    grantStore,
		Pending:   pendingStore,
		Directory: userDirectory,
		Notifier:  dispatcher,
		Mail:      mailQueue,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	collabService, err := sharing.NewService(sharing.ServiceConfig{
		Access:    accessController,
		Workflow:  workflow,
		Notes:     noteStore,
		Grants:    grantStore,
		Pending:   pendingStore,
		Directory: userDirectory,
		Presence:  registry,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Collab:        collabService,
		Notes:         noteStore,
		Directory:     userDirectory,
		Notifications: dispatcher,
		Tokens:        tokenManager,
		IDProvider:    idProvider,
		Logger:        logger,
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
