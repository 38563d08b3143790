package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"icefloe/config"
	"icefloe/proxy"
	"icefloe/replication"
	"icefloe/storage"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}

	// Initialize components
	replicator, err := replication.NewReplicator(cfg, store)
	if err != nil {
		log.Fatalf("Failed to create replicator: %v", err)
	}

	proxy, err := proxy.NewDuckDBProxy(cfg)
	if err != nil {
		log.Fatalf("Failed to create proxy: %v", err)
	}

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start replication
	go func() {
		if err := replicator.Start(ctx); err != nil {
			log.Printf("Replication error: %v", err)
			cancel()
		}
	}()

	// Start proxy server
	go func() {
		if err := proxy.Start(ctx); err != nil {
			log.Printf("Proxy error: %v", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	select {
	case <-sigChan:
		log.Println("Shutting down...")
	case <-ctx.Done():
		log.Println("Context cancelled...")
	}
}

// newStorage picks the warehouse backend: S3 when a bucket is configured,
// the local filesystem path otherwise.
func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Iceberg.S3.Bucket == "" {
		return storage.NewLocalStorage(cfg.Iceberg.Path), nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Iceberg.S3.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Iceberg.S3.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Iceberg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Iceberg.S3.Endpoint)
			o.UsePathStyle = true
		}
	})

	return storage.NewS3Storage(client, cfg.Iceberg.S3.Bucket, cfg.Iceberg.S3.Prefix), nil
}
