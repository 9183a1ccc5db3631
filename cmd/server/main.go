package main

import (
	"context"
	"crypto"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowlytix/licensing/internal/audit"
	auditrepo "flowlytix/licensing/internal/audit/repository"
	"flowlytix/licensing/internal/config"
	customerrepo "flowlytix/licensing/internal/customer/repository"
	"flowlytix/licensing/internal/db"
	"flowlytix/licensing/internal/entitlement"
	"flowlytix/licensing/internal/grace"
	"flowlytix/licensing/internal/ledger"
	"flowlytix/licensing/internal/licensing"
	"flowlytix/licensing/internal/security"
	"flowlytix/licensing/internal/server"
	subscriptionrepo "flowlytix/licensing/internal/subscription/repository"
	subscriptionservice "flowlytix/licensing/internal/subscription/service"
	"flowlytix/licensing/internal/telemetry"
	telemetryotel "flowlytix/licensing/internal/telemetry/otel"
	"flowlytix/licensing/internal/telemetry/producer"
	"flowlytix/licensing/internal/token"
)

// customerExists adapts the customer repository to the subscription service's
// existence check.
type customerExists struct {
	repo customerrepo.Repository
}

func (c customerExists) Exists(ctx context.Context, id string) (bool, error) {
	cust, err := c.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return false, err
	}
	return cust != nil, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "flowlytix-licensing", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	var (
		signer crypto.Signer
		pub    crypto.PublicKey
	)
	if cfg.JWTPrivateKey == "" {
		if cfg.Env == "production" {
			log.Fatal("JWT_PRIVATE_KEY must be set in production")
		}
		log.Println("JWT_PRIVATE_KEY not set; using an ephemeral key pair, issued tokens will not survive a restart")
		signer, pub, err = security.NewTestKeyPair()
		if err != nil {
			log.Fatalf("generate key pair: %v", err)
		}
	} else {
		signer, err = security.ParsePrivateKey(cfg.JWTPrivateKey)
		if err != nil {
			log.Fatalf("JWT_PRIVATE_KEY: %v", err)
		}
		pub, err = security.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			log.Fatalf("JWT_PUBLIC_KEY: %v", err)
		}
	}

	policy := grace.NewPolicy(cfg.GraceDuration(), cfg.SkewDuration())
	codec := token.NewCodec(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenLifetime(), policy)

	var (
		subRepo  subscriptionservice.SubscriptionRepo
		custRepo customerrepo.Repository
		ldg      ledger.Ledger
		audRepo  auditrepo.Repository
		pinger   server.Pinger
	)
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer conn.Close()
		subRepo = subscriptionrepo.NewPostgresRepository(conn)
		custRepo = customerrepo.NewPostgresRepository(conn)
		ldg = ledger.NewPostgres(conn)
		audRepo = auditrepo.NewPostgresRepository(conn)
		pinger = conn
	} else {
		log.Println("DATABASE_URL not set; running on in-memory storage, for development only")
		subRepo = subscriptionrepo.NewMemoryRepository()
		custRepo = customerrepo.NewMemoryRepository()
		ldg = ledger.NewMemory()
	}

	var kafkaProducer *producer.KafkaProducer
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer, err = producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		log.Printf("telemetry: emitting licensing events to Kafka topic %s", cfg.TelemetryKafkaTopic)
	}
	var kafkaEmitter telemetry.EventEmitter
	if kafkaProducer != nil {
		kafkaEmitter = kafkaProducer
	}
	emitter := telemetry.Multi(
		telemetryotel.NewEventEmitter(providers.LoggerProvider),
		kafkaEmitter,
	)

	auditLogger := audit.NewLogger(audRepo, server.ClientIPFromContext)

	subSvc := subscriptionservice.NewService(subRepo, customerExists{repo: custRepo}, ldg)
	licSvc := licensing.NewService(subRepo, ldg, codec, policy, emitter)

	evaluator, err := entitlement.NewOPAEvaluator()
	if err != nil {
		log.Fatalf("entitlement: %v", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)

	router := server.NewRouter(server.RouterConfig{
		Licensing:    server.NewLicensingHandler(licSvc, subSvc, evaluator, auditLogger),
		Admin:        server.NewAdminHandler(custRepo, subSvc, licSvc, ldg, auditLogger, audRepo),
		Hasher:       hasher,
		AdminKeyHash: cfg.AdminAPIKeyHash,
		DB:           pinger,
		Policy:       evaluator,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("licensing server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	// Let in-flight async telemetry emits finish before tearing down exporters.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("kafka close: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}
