package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/confessions/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/confessions"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/config"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/database"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/server"
	"github.com/MarcoPoloResearchLab/confessions/backend/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "confessions-api",
		Short: "Campus confessions backend service",
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
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-url", defaults.GetString("database.url"), "Database URL (postgres://... or sqlite://path)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("tauth-signing-secret", "", "TAuth session signing secret (overrides env)")
	cmd.PersistentFlags().String("tauth-issuer", defaults.GetString("tauth.issuer"), "Expected TAuth session issuer")
	cmd.PersistentFlags().String("tauth-cookie-name", defaults.GetString("tauth.cookie_name"), "TAuth session cookie name")
	cmd.PersistentFlags().Duration("tauth-leeway", defaults.GetDuration("tauth.leeway"), "Clock skew tolerated on session expiry")
	cmd.PersistentFlags().String("admin-user-ids", defaults.GetString("admin.user_ids"), "Comma-separated user ids that are always admins")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma-separated CORS origins; empty allows any origin without credentials")
	cmd.PersistentFlags().Int("create-per-minute", defaults.GetInt("ratelimit.create_per_minute"), "Confession and comment submissions per minute per IP (0 disables)")
	cmd.PersistentFlags().Int("create-burst", defaults.GetInt("ratelimit.burst"), "Submission burst per IP")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.url", "database-url")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "tauth.signing_secret", "tauth-signing-secret")
	bindFlag(cmd, "tauth.issuer", "tauth-issuer")
	bindFlag(cmd, "tauth.cookie_name", "tauth-cookie-name")
	bindFlag(cmd, "tauth.leeway", "tauth-leeway")
	bindFlag(cmd, "admin.user_ids", "admin-user-ids")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "ratelimit.create_per_minute", "create-per-minute")
	bindFlag(cmd, "ratelimit.burst", "create-burst")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

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

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseURL, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
		Leeway:        appConfig.TAuthLeeway,
	})
	if err != nil {
		return err
	}

	memberDirectory, err := users.NewService(users.ServiceConfig{
		Database:        db,
		Clock:           time.Now,
		BootstrapAdmins: appConfig.AdminUserIDs,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	store, err := confessions.NewStore(confessions.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: confessions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:         sessionValidator,
		Members:          memberDirectory,
		Store:            store,
		Ledger:           confessions.NewLedger(store),
		Moderator:        confessions.NewModerator(store),
		Comments:         confessions.NewCommentService(store),
		Realtime:         server.NewRealtimeDispatcher(),
		Logger:           logger,
		AllowedOrigins:   appConfig.AllowedOrigins,
		CreatesPerMinute: appConfig.CreatesPerMinute,
		CreateBurst:      appConfig.CreateBurst,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
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
