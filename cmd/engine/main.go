package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/ethergraph-engine/internal/anomaly"
	"github.com/rawblock/ethergraph-engine/internal/api"
	"github.com/rawblock/ethergraph-engine/internal/cluster"
	"github.com/rawblock/ethergraph-engine/internal/compliance"
	"github.com/rawblock/ethergraph-engine/internal/config"
	"github.com/rawblock/ethergraph-engine/internal/db"
	"github.com/rawblock/ethergraph-engine/internal/graph"
	"github.com/rawblock/ethergraph-engine/internal/ingest"
	"github.com/rawblock/ethergraph-engine/internal/trace"
)

func main() {
	log.Println("Starting EtherGraph Analysis Engine (Microservice: eth-graph-analytics)...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: %v. Copy .env.example to .env and fill in your values.", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The graph store is the one hard dependency.
	graphClient, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatalf("FATAL: failed to connect to graph store at %s: %v", cfg.Neo4jURI, err)
	}
	defer graphClient.Close(context.Background())

	if err := graphClient.EnsureSchema(ctx); err != nil {
		log.Printf("Warning: graph schema init failed: %v", err)
	}

	// Optional audit store.
	var audit api.AuditRecorder
	if cfg.DatabaseURL != "" {
		auditStore, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: failed to connect to PostgreSQL, continuing without the audit trail. Error: %v", err)
		} else {
			defer auditStore.Close()
			if err := auditStore.InitSchema(ctx); err != nil {
				log.Printf("Warning: audit schema init failed: %v", err)
			}
			audit = auditStore
		}
	}

	// Engines.
	tracer := trace.New(graphClient)
	clusters := cluster.New(graphClient)
	scoring := anomaly.New(graphClient)
	overlay := compliance.New(graphClient)

	// Optional transaction provider.
	var ingestor api.IngestService
	if cfg.EtherscanAPIKey != "" {
		provider := ingest.NewEtherscanClient(cfg.EtherscanBaseURL, cfg.EtherscanAPIKey)
		ingestor = ingest.NewIngestor(provider, graphClient)
	} else {
		log.Println("Warning: ETHERSCAN_API_KEY not set, /ingest/:address is disabled")
	}

	// Optional Kafka transaction feed.
	if cfg.KafkaBrokers != "" {
		consumer, err := ingest.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaTopic, graphClient)
		if err != nil {
			log.Printf("Warning: failed to start Kafka consumer, continuing without the feed. Error: %v", err)
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("Warning: Kafka consumer stopped: %v", err)
				}
			}()
		}
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	router := api.SetupRouter(api.Deps{
		Tracer:         tracer,
		Clusters:       clusters,
		Scoring:        scoring,
		Compliance:     overlay,
		Ingestor:       ingestor,
		SampleStore:    graphClient,
		Audit:          audit,
		Hub:            wsHub,
		AuthToken:      cfg.AuthToken,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimitRPM:   cfg.RateLimitRPM,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Engine running on :%s (API Node: eth-graph-analytics)", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}
}
