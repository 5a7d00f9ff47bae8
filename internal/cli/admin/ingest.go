package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/ingest"
	"github.com/teamauresta/agent-harbor/internal/storage"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest knowledge documents",
		Long:  "Load markdown documents into a client's knowledge base from local files or object storage",
	}

	cmd.AddCommand(IngestFileCmd())
	cmd.AddCommand(IngestS3Cmd())

	return cmd
}

func IngestFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file <client-id> <path>...",
		Short: "Ingest local markdown files",
		Long:  "Parse local markdown catalogs or policy documents and upsert their chunks",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runIngestFile,
	}

	cmd.Flags().String("store-url", "", "Store URL used to build product links")
	cmd.Flags().Bool("replace", false, "Replace all existing chunks instead of upserting")

	return cmd
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clientID := args[0]
	paths := args[1:]
	storeURL, _ := cmd.Flags().GetString("store-url")
	replace, _ := cmd.Flags().GetBool("replace")

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

	inputs, err := parseFiles(paths, storeURL)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no chunks parsed from %d file(s)", len(paths))
	}

	var count int
	if replace {
		count, err = svc.ReplaceClient(ctx, clientID, inputs)
	} else {
		count, err = svc.UpsertBatch(ctx, clientID, inputs)
	}
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("Ingested %d chunks for %s\n", count, clientID)
	return nil
}

func parseFiles(paths []string, storeURL string) ([]domain.ChunkInput, error) {
	var inputs []domain.ChunkInput
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, ingest.ParseDocument(filepath.Base(path), string(data), storeURL)...)
	}
	return inputs, nil
}

func IngestS3Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "s3 <client-id>",
		Short: "Ingest documents from object storage",
		Long:  "Pull the client's markdown documents from the configured S3 bucket and upsert their chunks",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngestS3,
	}

	cmd.Flags().String("store-url", "", "Store URL used to build product links")

	return cmd
}

func runIngestS3(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clientID := args[0]
	storeURL, _ := cmd.Flags().GetString("store-url")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasS3() {
		return fmt.Errorf("HARBOR_S3_ENDPOINT, HARBOR_S3_ACCESS_KEY_ID and HARBOR_S3_SECRET_ACCESS_KEY are required")
	}

	pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := buildKnowledgeService(pool, cfg)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	source := ingest.NewS3Source(s3Client, svc, storeURL)

	count, err := source.Ingest(ctx, clientID)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Printf("Ingested %d chunks for %s from s3://%s/%s/\n", count, clientID, cfg.S3Bucket, clientID)
	return nil
}
