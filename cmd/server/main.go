package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tyemirov/tokengate/internal/authkit"
	"github.com/tyemirov/tokengate/internal/revocation"
	"github.com/tyemirov/tokengate/internal/stream"
	"github.com/tyemirov/tokengate/internal/web"
	"github.com/tyemirov/tokengate/pkg/tokencodec"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context) (authkit.GoogleTokenValidator, error) {
	return authkit.NewGoogleTokenValidator(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tokengate",
		Short:   "Token auth service: provider login, signed access and refresh tokens, revocation, and a gated stream",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	flags := rootCmd.Flags()
	flags.String("listen_addr", ":8080", "HTTP listen address")
	flags.String("log_level", "info", "Log level (debug, info, warn, error)")
	flags.String("jwt_signing_key", "", "HS256 signing secret for access and refresh tokens")
	flags.String("jwt_issuer", "tokengate", "Issuer embedded in and required of every token")
	flags.Duration("access_ttl", 15*time.Minute, "Access token TTL")
	flags.Duration("refresh_ttl", 14*24*time.Hour, "Refresh token TTL")
	flags.Duration("revocation_ttl", time.Hour, "Minimum time a logged-out token stays revoked")
	flags.String("refresh_cookie_name", "refresh_token", "Name of the refresh token cookie")
	flags.String("cookie_domain", "", "Cookie domain; empty for host-only")
	flags.Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	flags.String("login_redirect_url", "", "Where provider logins redirect with the access token appended")
	flags.String("oauth_callback_base_url", "http://localhost:8080", "Public base URL providers redirect back to")
	flags.String("google_client_id", "", "Google OAuth client ID (also the ID token audience)")
	flags.String("google_client_secret", "", "Google OAuth client secret")
	flags.String("naver_client_id", "", "Naver OAuth client ID")
	flags.String("naver_client_secret", "", "Naver OAuth client secret")
	flags.String("kakao_client_id", "", "Kakao OAuth client ID")
	flags.String("kakao_client_secret", "", "Kakao OAuth client secret")
	flags.String("database_url", "", "User store URL (postgres:// or sqlite://; leave empty for in-memory store)")
	flags.String("redis_addr", "", "Redis address for the shared revocation store; leave empty for in-process")
	flags.String("redis_password", "", "Redis password")
	flags.Int("redis_db", 0, "Redis database index")
	flags.Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	flags.String("cors_allowed_origins", "", "Comma-separated origins allowed when CORS is enabled")
	flags.Duration("state_ttl", defaultStateTTL, "Lifetime of an OAuth2 authorization state")

	flags.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag(flag.Name, flag)
	})

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeMissingJWTIssuer        = "config.missing_jwt_issuer"
	configCodeInvalidAccessTTL        = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL       = "config.invalid_refresh_ttl"
	configCodeInvalidRevocationTTL    = "config.invalid_revocation_ttl"
	configCodeInvalidLogLevel         = "config.invalid_log_level"
	configCodeDotEnv                  = "config.dotenv"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeGoogleValidatorInit     = "config.google_validator_init"
	configCodeProviderInit            = "config.oauth_provider_init"
	configCodeUserStoreInit           = "config.user_store_init"
	configCodeRevocationStoreInit     = "config.revocation_store_init"
	configCodeMetricsInit             = "config.metrics_init"
	configCodeCORS                    = "config.cors"
)

const defaultStateTTL = 5 * time.Minute

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return configError(configCodeDotEnv, err.Error())
	}
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig reads and validates the token and cookie settings.
func LoadServerConfig() (authkit.ServerConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}
	jwtIssuer := strings.TrimSpace(viper.GetString("jwt_issuer"))
	if jwtIssuer == "" {
		return authkit.ServerConfig{}, configError(configCodeMissingJWTIssuer, "jwt_issuer must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}
	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}
	revocationTTL := viper.GetDuration("revocation_ttl")
	if revocationTTL <= 0 {
		return authkit.ServerConfig{}, configError(configCodeInvalidRevocationTTL, "revocation_ttl must be greater than zero")
	}

	sameSite := http.SameSiteStrictMode
	if viper.GetBool("enable_cors") {
		sameSite = http.SameSiteNoneMode
	}

	return authkit.ServerConfig{
		GoogleWebClientID: viper.GetString("google_client_id"),
		JWTSigningKey:     []byte(jwtSigningKey),
		JWTIssuer:         jwtIssuer,
		AccessTTL:         accessTTL,
		RefreshTTL:        refreshTTL,
		RevocationTTL:     revocationTTL,
		RefreshCookieName: viper.GetString("refresh_cookie_name"),
		CookieDomain:      viper.GetString("cookie_domain"),
		LoginRedirectURL:  viper.GetString("login_redirect_url"),
		SameSiteMode:      sameSite,
		AllowInsecureHTTP: viper.GetBool("dev_insecure_http"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authkit.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}
	if commandContext == nil {
		commandContext = context.Background()
	}

	logger, loggerErr := buildLogger(viper.GetString("log_level"))
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	listenAddr := viper.GetString("listen_addr")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := web.SplitOrigins(viper.GetString("cors_allowed_origins"))

	codec, codecErr := tokencodec.New(tokencodec.Config{
		SigningKey: serverConfig.JWTSigningKey,
		Issuer:     serverConfig.JWTIssuer,
	})
	if codecErr != nil {
		return configError(configCodeMissingJWTSigningKey, codecErr.Error())
	}

	userStore, userStoreErr := buildUserStore(commandContext, logger, viper.GetString("database_url"))
	if userStoreErr != nil {
		return fmt.Errorf("%s: %w", configCodeUserStoreInit, userStoreErr)
	}
	revocations, revocationErr := buildRevocationStore(commandContext, logger)
	if revocationErr != nil {
		return fmt.Errorf("%s: %w", configCodeRevocationStoreInit, revocationErr)
	}
	providers, providersErr := buildProviderRegistry(logger)
	if providersErr != nil {
		return fmt.Errorf("%s: %w", configCodeProviderInit, providersErr)
	}

	var googleValidator authkit.GoogleTokenValidator
	if serverConfig.GoogleWebClientID != "" {
		validator, validatorErr := buildGoogleTokenValidator(commandContext)
		if validatorErr != nil {
			return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		googleValidator = validator
	}

	metricsRecorder, metricsErr := authkit.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	if metricsErr != nil {
		return fmt.Errorf("%s: %w", configCodeMetricsInit, metricsErr)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return fmt.Errorf("%s: %w", configCodeCORS, corsErr)
		}
		router.Use(corsMiddleware)
	}

	sessions := authkit.NewSessionIssuer(codec, serverConfig.AccessTTL, serverConfig.RefreshTTL)
	login := authkit.NewLoginService(authkit.NewReconciler(userStore), sessions, logger, metricsRecorder)
	authenticator := authkit.NewAuthenticator(codec, revocations, logger, metricsRecorder)

	authkit.MountAuthRoutes(router, serverConfig, authkit.AuthServices{
		Codec:           codec,
		Login:           login,
		Sessions:        sessions,
		Revocations:     revocations,
		States:          authkit.NewMemoryStateStore(stateTTL()),
		Providers:       providers,
		GoogleValidator: googleValidator,
		Logger:          logger,
		Metrics:         metricsRecorder,
	})

	protected := router.Group("/api")
	protected.Use(authenticator.Middleware(), authkit.RequireIdentity())
	protected.GET("/me", web.HandleWhoAmI(logger, userStore))
	protected.PATCH("/me", web.HandleUpdateProfile(logger, userStore))
	protected.PUT("/users/role", authkit.RequireRole(authkit.RoleAdmin), web.HandleAssignRole(logger, userStore))

	router.GET("/ws", authenticator.HandshakeGate(), stream.NewHandler(logger, corsAllowedOrigins).Serve)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stopSignals)
		select {
		case <-stopSignals:
		case <-shutdownCtx.Done():
			return
		}
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func stateTTL() time.Duration {
	if configured := viper.GetDuration("state_ttl"); configured > 0 {
		return configured
	}
	return defaultStateTTL
}

func buildLogger(level string) (*zap.Logger, error) {
	parsedLevel, parseErr := zapcore.ParseLevel(strings.TrimSpace(level))
	if parseErr != nil {
		return nil, configError(configCodeInvalidLogLevel, parseErr.Error())
	}
	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = zap.NewAtomicLevelAt(parsedLevel)
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return loggerConfig.Build()
}

func buildUserStore(ctx context.Context, logger *zap.Logger, databaseURL string) (authkit.UserStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		logger.Info("using in-memory user store")
		return authkit.NewMemoryUserStore(), nil
	}
	persistentStore, storeErr := authkit.NewDatabaseUserStore(ctx, databaseURL)
	if storeErr != nil {
		return nil, storeErr
	}
	logger.Info("using persistent user store", zap.String("driver", persistentStore.Driver()))
	return persistentStore, nil
}

func buildRevocationStore(ctx context.Context, logger *zap.Logger) (revocation.Store, error) {
	redisAddr := viper.GetString("redis_addr")
	if strings.TrimSpace(redisAddr) == "" {
		logger.Info("using in-process revocation store")
		return revocation.NewMemoryStore(), nil
	}
	client, connectErr := revocation.Connect(ctx, redisAddr, viper.GetString("redis_password"), viper.GetInt("redis_db"))
	if connectErr != nil {
		return nil, connectErr
	}
	logger.Info("using redis revocation store", zap.String("addr", redisAddr))
	return revocation.NewRedisStore(client, ""), nil
}

// buildProviderRegistry registers every provider whose client id is configured.
func buildProviderRegistry(logger *zap.Logger) (*authkit.ProviderRegistry, error) {
	callbackBase := strings.TrimRight(viper.GetString("oauth_callback_base_url"), "/")
	clients := make([]authkit.ProviderClient, 0, len(authkit.SupportedProviders()))
	for _, provider := range authkit.SupportedProviders() {
		clientID := viper.GetString(string(provider) + "_client_id")
		if strings.TrimSpace(clientID) == "" {
			continue
		}
		settings, settingsErr := authkit.DefaultOAuthProviderSettings(provider)
		if settingsErr != nil {
			return nil, settingsErr
		}
		settings.ClientID = clientID
		settings.ClientSecret = viper.GetString(string(provider) + "_client_secret")
		settings.RedirectURL = callbackBase + "/login/oauth2/code/" + string(provider)
		client, clientErr := authkit.NewOAuthProviderClient(settings)
		if clientErr != nil {
			return nil, clientErr
		}
		clients = append(clients, client)
		logger.Info("oauth provider enabled", zap.String("provider", string(provider)))
	}
	return authkit.NewProviderRegistry(clients...), nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		duration := time.Since(startTime)
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", duration),
		)
	}
}
