// Command mnemon runs the memory server on stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mnemon-dev/mnemon/config"
	"github.com/mnemon-dev/mnemon/mcp"
	"github.com/mnemon-dev/mnemon/memory"
	"github.com/mnemon-dev/mnemon/memory/embedder/cached"
	"github.com/mnemon-dev/mnemon/memory/embedder/mock"
	chromemstore "github.com/mnemon-dev/mnemon/memory/store/chromem"
	qdrantstore "github.com/mnemon-dev/mnemon/memory/store/qdrant"
	"github.com/mnemon-dev/mnemon/retry"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	mode := flag.String("mode", "", "serving mode override: full, tools-only, prompts-only")
	storeKind := flag.String("store", "qdrant", "vector store backend: qdrant or chromem")
	useMock := flag.Bool("mock", false, "use the deterministic mock embedder (no model files needed)")
	flag.Parse()

	// stdout carries the protocol; diagnostics go to stderr.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags)

	if err := run(*configPath, *mode, *storeKind, *useMock); err != nil {
		log.Fatalf("mnemon: %v", err)
	}
}

func run(configPath, mode, storeKind string, useMock bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Server.Mode = config.Mode(mode)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log.Printf("mnemon %s starting (mode=%s, store=%s)", Version, cfg.Server.Mode, storeKind)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	var store memory.VectorStore
	switch storeKind {
	case "qdrant":
		qs, err := qdrantstore.New(qdrantstore.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return fmt.Errorf("qdrant store: %w", err)
		}
		defer qs.Close()
		store = qs
	case "chromem":
		cs, err := chromemstore.New()
		if err != nil {
			return fmt.Errorf("chromem store: %w", err)
		}
		store = cs
	default:
		return fmt.Errorf("unknown store backend %q", storeKind)
	}

	var embedder memory.Embedder
	if useMock {
		embedder = mock.NewWithDimensions(cfg.Embedding.Dimension)
		log.Printf("Using mock embedder (%d dims)", cfg.Embedding.Dimension)
	} else {
		embedder, err = newModelEmbedder(cfg)
		if err != nil {
			return fmt.Errorf("embedder: %w", err)
		}
	}
	if cfg.Embedding.CacheEntries > 0 {
		ce, err := cached.New(embedder, cfg.Embedding.CacheEntries)
		if err != nil {
			return fmt.Errorf("embedding cache: %w", err)
		}
		defer ce.Close()
		embedder = ce
	}

	stats := retry.NewStats()
	retrier := retry.New(retry.Policy{
		Attempts:        cfg.ErrorHandling.RetryAttempts,
		BaseDelay:       cfg.ErrorHandling.BaseDelay,
		MaxDelay:        cfg.ErrorHandling.MaxDelay,
		ExponentialBase: cfg.ErrorHandling.ExponentialBase,
		Jitter:          cfg.ErrorHandling.JitterEnabled,
	}, stats)

	registry := memory.NewRegistry(store, cfg.Embedding.Dimension)
	svc := memory.NewService(store, embedder, registry, retrier, memory.ServiceConfig{
		SimilarityThreshold: cfg.Deduplication.SimilarityThreshold,
		NearMissThreshold:   cfg.Deduplication.NearMissThreshold,
		DedupLogging:        cfg.Deduplication.LoggingEnabled,
		ChunkSize:           cfg.Chunking.Size,
		ChunkOverlap:        cfg.Chunking.Overlap,
	})

	server := mcp.NewServer(cfg, svc, stats)
	if err := server.Run(ctx, os.Stdin, os.Stdout); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
