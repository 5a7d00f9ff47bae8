package admin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/ingest"
)

func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <client-id> <store-url>",
		Short: "Sync a client's knowledge base from a Shopify store",
		Long:  "Fetch the store's public product catalog and replace the client's chunks atomically",
		Args:  cobra.ExactArgs(2),
		RunE:  runSync,
	}

	cmd.Flags().String("extra", "", "Markdown file with store info and FAQs to keep alongside products")

	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clientID := args[0]
	storeURL := strings.TrimSuffix(args[1], "/")
	extraPath, _ := cmd.Flags().GetString("extra")

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc := buildKnowledgeService(pool, cfg)
	syncer := ingest.NewShopifySyncer(ingest.NewShopifyClient(), svc)

	extraChunks, err := loadExtraChunks(extraPath, storeURL)
	if err != nil {
		return err
	}

	count, err := syncer.Sync(ctx, clientID, storeURL, extraChunks)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	fmt.Printf("Synced %d chunks for %s from %s\n", count, clientID, storeURL)
	return nil
}

func loadExtraChunks(path, storeURL string) ([]domain.ChunkInput, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ingest.ParseCatalog(string(data), storeURL), nil
}
