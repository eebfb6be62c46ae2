package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/certguard/certguard/internal/email"
	"github.com/certguard/certguard/internal/health"
	"github.com/certguard/certguard/internal/identity"
	"github.com/certguard/certguard/internal/issuance"
	"github.com/certguard/certguard/internal/registry/handler"
	"github.com/certguard/certguard/internal/users"
	"github.com/certguard/certguard/internal/verification"
	"github.com/certguard/certguard/internal/webhooks"
)

// grpcServiceName is the name reported by the gRPC health service.
const grpcServiceName = "certguard.Registry"

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("certguard exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	if err := loadConfig(logger); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── Stores ───────────────────────────────────────────────────────────────
	st, err := openStores(ctx, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	startCtx, startCancel := context.WithTimeout(ctx, viper.GetDuration("store.timeout"))
	if err := st.ledger.EnsureGenesis(startCtx); err != nil {
		startCancel()
		return fmt.Errorf("initialise ledger: %w", err)
	}
	if report, err := st.ledger.VerifyIntegrity(startCtx); err != nil {
		logger.Warn("ledger integrity check could not run", zap.Error(err))
	} else if !report.IsValid {
		logger.Warn("ledger integrity check FAILED", zap.Int("failures", len(report.Failures)))
	} else {
		n, _ := st.ledger.Len(startCtx)
		root, _ := st.ledger.Root(startCtx)
		handler.SetLedgerRecords(n)
		logger.Info("ledger verified", zap.Int("entries", n), zap.String("root", root))
	}
	startCancel()

	// ── Identity ─────────────────────────────────────────────────────────────
	key, err := identity.LoadOrCreateKey(viper.GetString("identity.key_file"))
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	httpPort := viper.GetInt("server.port")
	issuerURL := viper.GetString("server.issuer_url")
	if issuerURL == "" {
		issuerURL = fmt.Sprintf("http://localhost:%d", httpPort)
	}
	tokens := identity.NewTokenIssuer(key, issuerURL, viper.GetDuration("identity.token_ttl"))

	userSvc := users.NewService(st.users, logger)
	var seeds []users.SeedAccount
	if err := viper.UnmarshalKey("users", &seeds); err != nil {
		return fmt.Errorf("parse users: %w", err)
	}
	if len(seeds) == 0 {
		logger.Warn("no users configured, seeding demo accounts; do not use in production")
		seeds = users.DemoAccounts()
	}
	if err := userSvc.Seed(ctx, seeds); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}

	// ── Email Sender ─────────────────────────────────────────────────────────
	var mailer email.Sender
	if host := viper.GetString("email.smtp_host"); host != "" {
		mailer = email.NewSMTPSender(email.SMTPConfig{
			Host:     host,
			Port:     viper.GetInt("email.smtp_port"),
			Username: viper.GetString("email.smtp_username"),
			Password: viper.GetString("email.smtp_password"),
			From:     viper.GetString("email.from_address"),
		})
		logger.Info("SMTP email sender configured", zap.String("host", host))
	} else {
		mailer = email.NewNoopSender(logger)
		logger.Info("email sender: noop (set email.smtp_host to enable SMTP)")
	}

	// ── Services ─────────────────────────────────────────────────────────────
	issuer := issuance.NewService(st.ledger, issuance.Config{
		RejectOverCapacity: viper.GetBool("issuance.reject_over_capacity"),
		QRSize:             viper.GetInt("issuance.qr_size"),
	}, logger)
	if url := viper.GetString("issuance.suggest_url"); url != "" {
		issuer.SetSuggester(issuance.NewHTTPSuggester(url, viper.GetDuration("issuance.suggest_timeout")))
		logger.Info("field suggestion enabled", zap.String("endpoint", url))
	}

	vcfg := verification.DefaultConfig()
	if v := viper.GetStringSlice("verification.institutions"); len(v) > 0 {
		vcfg.Institutions = v
	}
	if v := viper.GetStringSlice("verification.courses"); len(v) > 0 {
		vcfg.Courses = v
	}
	vcfg.RequireWatermark = viper.GetBool("verification.require_watermark")
	vcfg.BatchConcurrency = viper.GetInt("verification.batch_concurrency")
	hooks := webhooks.NewService(st.webhooks, logger)
	hooks.SetMetricsRecorder(handler.RecordWebhookDelivery)

	engine := verification.NewEngine(st.ledger, st.blacklist, st.verifylog, vcfg, logger)
	notifiers := verification.Notifiers{hooks}
	if to := viper.GetStringSlice("alerts.recipient"); len(to) > 0 {
		notifiers = append(notifiers, verification.NewEmailNotifier(mailer, to...))
	}
	engine.SetNotifier(notifiers)

	// ── Health ───────────────────────────────────────────────────────────────
	checker := health.New(st.probes(), health.Config{
		CheckInterval: viper.GetDuration("health.interval"),
		ProbeTimeout:  viper.GetDuration("store.timeout"),
	}, logger)
	checker.SetMetricsRecord(handler.RecordHealthCheck)

	grpcHealth := grpchealth.NewServer()
	grpcHealth.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	checker.SetTransitionHook(func(ctx context.Context, probe string, healthy bool, err error) {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if !checker.Snapshot().Healthy {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		grpcHealth.SetServingStatus(grpcServiceName, status)

		event, payload := webhooks.EventHealthRecovered, map[string]string{"probe": probe}
		if !healthy {
			event = webhooks.EventHealthDegraded
			if err != nil {
				payload["error"] = err.Error()
			}
		}
		hooks.Dispatch(ctx, event, payload)

		if !healthy && len(viper.GetStringSlice("alerts.recipient")) > 0 {
			msg := email.Message{
				To:      viper.GetStringSlice("alerts.recipient"),
				Subject: "[CertGuard] " + probe + " is degraded",
				Body:    fmt.Sprintf("Health probe %q failed: %v\n", probe, err),
			}
			if sendErr := mailer.Send(ctx, msg); sendErr != nil {
				logger.Warn("health alert email failed (non-fatal)", zap.Error(sendErr))
			}
		}
	})
	go checker.Start(ctx)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Certificate images travel as data URIs.
	maxBody := viper.GetInt64("server.max_body_bytes")
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	rps := viper.GetFloat64("server.rate_limit_rps")
	router.Use(handler.RateLimiter(ctx, rps, int(rps*2)))
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		report := checker.Snapshot()
		code := http.StatusOK
		if !report.Healthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1", handler.RequestTimeout(viper.GetDuration("store.timeout")))
	handler.NewAuthHandler(userSvc, tokens, logger).Register(v1)
	handler.NewCertificateHandler(issuer, st.ledger, tokens, logger).Register(v1)
	handler.NewVerifyHandler(engine, logger).Register(v1)
	handler.NewLedgerHandler(st.ledger, tokens, logger).Register(v1)
	handler.NewBlacklistHandler(st.blacklist, tokens, logger).Register(v1)
	handler.NewDashboardHandler(st.verifylog, tokens, logger).Register(v1)
	webhooks.NewHandler(hooks, tokens, logger).Register(v1)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("certguard HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── gRPC health + reflection ─────────────────────────────────────────────
	var grpcServer *grpc.Server
	if grpcPort := viper.GetInt("server.grpc_port"); grpcPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
		if err != nil {
			return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
		}
		grpcServer = grpc.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, grpcHealth)
		reflection.Register(grpcServer)

		go func() {
			logger.Info("certguard gRPC health listening", zap.Int("port", grpcPort))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Fatal("gRPC serve error", zap.Error(err))
			}
		}()
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutting down certguard...")
	grpcHealth.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	hooks.Wait()

	logger.Info("certguard stopped")
	return nil
}

func loadConfig(logger *zap.Logger) error {
	viper.SetConfigName("certguard")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.grpc_port", 9090)
	viper.SetDefault("server.issuer_url", "")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.max_body_bytes", 10<<20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("mongo.url", "")
	viper.SetDefault("mongo.database", "certguard")
	viper.SetDefault("store.timeout", "10s")
	viper.SetDefault("health.interval", "1m")
	viper.SetDefault("identity.key_file", "certs/session.key")
	viper.SetDefault("identity.token_ttl", "8h")
	viper.SetDefault("verification.require_watermark", false)
	viper.SetDefault("verification.institutions", verification.DefaultInstitutions)
	viper.SetDefault("verification.courses", verification.DefaultCourses)
	viper.SetDefault("verification.batch_concurrency", 8)
	viper.SetDefault("issuance.reject_over_capacity", true)
	viper.SetDefault("issuance.qr_size", 256)
	viper.SetDefault("issuance.suggest_url", "")
	viper.SetDefault("issuance.suggest_timeout", "30s")
	viper.SetDefault("email.smtp_host", "")
	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.smtp_username", "")
	viper.SetDefault("email.smtp_password", "")
	viper.SetDefault("email.from_address", "noreply@certguard.local")
	viper.SetDefault("alerts.recipient", []string{})

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
