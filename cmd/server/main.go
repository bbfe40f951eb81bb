package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformplatform/identity-core/internal/clock"
	"github.com/platformplatform/identity-core/internal/config"
	"github.com/platformplatform/identity-core/internal/db"
	"github.com/platformplatform/identity-core/internal/devcode"
	"github.com/platformplatform/identity-core/internal/email"
	"github.com/platformplatform/identity-core/internal/extlogin/provider"
	extloginrepo "github.com/platformplatform/identity-core/internal/extlogin/repository"
	extloginservice "github.com/platformplatform/identity-core/internal/extlogin/service"
	"github.com/platformplatform/identity-core/internal/identity"
	"github.com/platformplatform/identity-core/internal/security"
	"github.com/platformplatform/identity-core/internal/server"
	sessionrepo "github.com/platformplatform/identity-core/internal/session/repository"
	sessionservice "github.com/platformplatform/identity-core/internal/session/service"
	"github.com/platformplatform/identity-core/internal/telemetry"
	otelsetup "github.com/platformplatform/identity-core/internal/telemetry/otel"
	"github.com/platformplatform/identity-core/internal/telemetry/producer"
	verificationrepo "github.com/platformplatform/identity-core/internal/verification/repository"
	verificationservice "github.com/platformplatform/identity-core/internal/verification/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, "identity-core", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	var emitters telemetry.MultiEmitter
	emitters = append(emitters, otelsetup.NewEventEmitter(providers.LoggerProvider))
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
	}
	var emitter telemetry.EventEmitter = emitters

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	keys, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	tokens := security.NewTokenProvider(keys, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	envelope, err := security.NewEnvelope(cfg.CookieEncryptionKey)
	if err != nil {
		log.Fatalf("cookie encryption key: %v", err)
	}

	clk := clock.System{}

	// The identity store is a collaborator seam; deployments replace this
	// with the platform user service. The in-memory store serves dev setups.
	identities := identity.NewMemoryRepository()

	sessions := sessionservice.New(
		sessionrepo.NewPostgresRepository(database), tokens,
		identity.Lookup{Repo: identities}, cfg.RefreshTTL(), clk, emitter,
	)

	var sender email.Sender = email.LogSender{}
	if cfg.SMTPAddr != "" {
		host, port, err := net.SplitHostPort(cfg.SMTPAddr)
		if err != nil {
			log.Fatalf("SMTP_ADDR: %v", err)
		}
		sender = email.NewSMTPSender(host, port, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
	}

	var devCodes devcode.Store
	if cfg.CodeReturnToClient {
		devCodes = devcode.NewMemoryStore(clk)
		log.Println("dev code mode enabled; plain codes are retrievable via /dev endpoints")
	}

	verifications := verificationservice.New(
		verificationrepo.NewPostgresRepository(database),
		security.NewHasher(cfg.BcryptCost), sender, devCodes, clk, emitter,
	)

	registry := provider.NewRegistry(
		provider.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret, nil),
		provider.NewGitHub(cfg.GitHubClientID, cfg.GitHubClientSecret, nil),
	)
	extlogins := extloginservice.New(
		extloginrepo.NewPostgresRepository(database), registry, envelope,
		clk, emitter, cfg.PublicBaseURL, cfg.ProductSlug,
	)

	srv := server.New(server.Deps{
		Sessions:      sessions,
		Verifications: verifications,
		ExternalLogin: extlogins,
		Identities:    identities,
		Emitter:       emitter,
		DB:            database,
		DevCodes:      devCodes,
	}, cfg.ProductSlug, cfg.RefreshTTL(), cfg.Env == "production")

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Let in-flight async emits finish before tearing down their backends.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	if err := providers.Shutdown(ctx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
