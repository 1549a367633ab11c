package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arvoredolab/arvoredo/backend/internal/auth"
	"github.com/arvoredolab/arvoredo/backend/internal/config"
	"github.com/arvoredolab/arvoredo/backend/internal/database"
	"github.com/arvoredolab/arvoredo/backend/internal/logging"
	"github.com/arvoredolab/arvoredo/backend/internal/server"
	"github.com/arvoredolab/arvoredo/backend/internal/trees"
	"github.com/arvoredolab/arvoredo/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "arvoredo-api",
		Short: "Arvoredo tree survey backend service",
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
	cmd.PersistentFlags().Int("access-ttl-hours", defaults.GetInt("auth.access_ttl_hours"), "Access token TTL in hours")
	cmd.PersistentFlags().Int("refresh-ttl-hours", defaults.GetInt("auth.refresh_ttl_hours"), "Refresh token TTL in hours")
	cmd.PersistentFlags().Int("max-login-attempts", defaults.GetInt("auth.max_login_attempts"), "Failed logins before temporary lockout")
	cmd.PersistentFlags().String("signing-secret", "", "JWT signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.access_ttl_hours", "access-ttl-hours")
	bindFlag(cmd, "auth.refresh_ttl_hours", "refresh-ttl-hours")
	bindFlag(cmd, "auth.max_login_attempts", "max-login-attempts")
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

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		AccessTTL:     appConfig.AccessTokenTTL,
		RefreshTTL:    appConfig.RefreshTokenTTL,
	})

	userService, err := users.NewService(users.ServiceConfig{
		Database:         db,
		Tokens:           tokenIssuer,
		Lockouts:         users.NewMemoryLockoutStore(),
		Logger:           logger,
		MaxLoginAttempts: appConfig.MaxLoginAttempts,
		BcryptCost:       appConfig.BcryptCost,
	})
	if err != nil {
		return err
	}

	treeStore, err := trees.NewStore(db)
	if err != nil {
		return err
	}
	treeService, err := trees.NewService(trees.ServiceConfig{
		Store:      treeStore,
		Clock:      time.Now,
		IDProvider: trees.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenIssuer,
		UserService:  userService,
		TreeService:  treeService,
		Logger:       logger,
		CORSOrigins:  appConfig.CORSOrigins,
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
