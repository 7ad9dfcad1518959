package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/vietddude/docsync/internal/control"
	"github.com/vietddude/docsync/internal/core/config"
	"github.com/vietddude/docsync/internal/infra/docstore"
	"github.com/vietddude/docsync/internal/infra/docstore/memory"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	ctx := context.Background()

	cfg := config.Default()
	if user := os.Getenv("DOCSYNC_DEMO_USER"); user != "" {
		cfg.Store.Username = user
	}

	// 1. Shared storage; the first client built is broken
	storage := memory.NewStorage()
	var built atomic.Int32
	factory := func(ctx context.Context) (docstore.Client, error) {
		c := memory.NewClient(storage, cfg.Store.Username)
		if built.Add(1) == 1 {
			c.Inject(memory.Fault{
				Op:  "get",
				Err: docstore.NewError(docstore.CodeInternal, "INTERNAL ASSERTION FAILED: Unexpected state (ID: b815)"),
			})
		}
		return c, nil
	}

	// 2. Build the layer around it
	layer, err := control.NewLayer(ctx, cfg, control.WithFactory(factory))
	if err != nil {
		log.Fatalf("create layer: %v", err)
	}
	defer layer.Close(ctx)

	if err := layer.Client().Set(ctx, "users", "ada", map[string]any{"name": "Ada"}); err != nil {
		log.Fatalf("seed document: %v", err)
	}

	// 3. Subscribe so recovery has something to drain
	if _, err := layer.Subscribe(ctx, "users", "ada", func(doc docstore.Document) {
		fmt.Printf("📡 Change on %s/%s: %v\n", doc.Collection, doc.ID, doc.Data)
	}); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	fmt.Println("=== Reading through a broken client ===")

	// 4. The read hits the assertion failure, recovery rebuilds the client,
	// and the read runs once more
	doc, err := control.WithRecovery(ctx, layer, "load_profile",
		func(ctx context.Context, c docstore.Client) (docstore.Document, error) {
			return c.Get(ctx, "users", "ada")
		})
	if err != nil {
		log.Fatalf("load profile: %v", err)
	}
	fmt.Printf("Loaded %s: %v\n\n", doc.ID, doc.Data)

	// 5. Recovery state and telemetry
	state := layer.RecoveryState()
	fmt.Println("=== Recovery ===")
	fmt.Printf("  Phase: %s\n", state.Phase)
	fmt.Printf("  Generation: %d\n", state.Generation)
	fmt.Printf("  Attempts: %d / %d\n\n", state.AttemptsSinceCooldown, state.MaxAttempts)

	stats := layer.Telemetry().Stats()
	fmt.Println("=== Telemetry ===")
	fmt.Printf("  Total errors: %d\n", stats.TotalErrors)
	for typ, n := range stats.CountsByType {
		fmt.Printf("  %s: %d\n", typ, n)
	}
	fmt.Println()

	// 6. Diagnostics against the rebuilt client
	fmt.Println("=== Diagnostics ===")
	for _, r := range layer.Diagnose(ctx) {
		fmt.Printf("  %-8s %-8s %s\n", r.Test, r.Status, r.Message)
	}
}
