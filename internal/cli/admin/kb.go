package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/teamauresta/agent-harbor/internal/config"
	"github.com/teamauresta/agent-harbor/internal/database"
	"github.com/teamauresta/agent-harbor/internal/domain"
	"github.com/teamauresta/agent-harbor/internal/service"
)

func KBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Manage the knowledge base",
		Long:  "Inspect, search, and wipe per-client knowledge chunks",
	}

	cmd.AddCommand(KBStatsCmd())
	cmd.AddCommand(KBSearchCmd())
	cmd.AddCommand(KBWipeCmd())

	return cmd
}

func KBStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <client-id>",
		Short: "Show chunk counts for a client",
		Long:  "Show chunk counts grouped by source type for the specified client",
		Args:  cobra.ExactArgs(1),
		RunE:  runKBStats,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runKBStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clientID := args[0]
	outputFormat, _ := cmd.Flags().GetString("output")

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

	counts, err := svc.Stats(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputFormat == "json" {
		var total int64
		bySource := map[string]int64{}
		for _, c := range counts {
			bySource[string(c.SourceType)] = c.Count
			total += c.Count
		}
		data := map[string]interface{}{
			"client_id": clientID,
			"total":     total,
			"by_source": bySource,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		var total int64
		for _, c := range counts {
			fmt.Printf("%-10s %d\n", c.SourceType, c.Count)
			total += c.Count
		}
		fmt.Printf("%-10s %d\n", "total", total)
	}

	return nil
}

func KBSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <client-id> <query>",
		Short: "Search a client's knowledge base",
		Long:  "Run a semantic search against the specified client's chunks",
		Args:  cobra.ExactArgs(2),
		RunE:  runKBSearch,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntP("top-k", "k", 0, "Number of results (0 = server default)")
	cmd.Flags().StringSlice("source-type", nil, "Restrict to source types (product, faq, policy, bundle)")

	return cmd
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clientID := args[0]
	query := args[1]
	outputFormat, _ := cmd.Flags().GetString("output")
	topK, _ := cmd.Flags().GetInt("top-k")
	sourceTypes, _ := cmd.Flags().GetStringSlice("source-type")

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

	input := service.SearchInput{
		ClientID: clientID,
		Query:    query,
		TopK:     topK,
	}
	for _, st := range sourceTypes {
		input.SourceTypes = append(input.SourceTypes, domain.SourceType(st))
	}

	results, err := svc.Search(ctx, input)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(results) == 0 {
			fmt.Println("No results")
			return nil
		}
		for i, r := range results {
			fmt.Printf("%d. [%.3f] %s (%s/%s)\n", i+1, r.Score, r.Title, r.SourceType, r.SourceID)
			fmt.Printf("   %s\n", r.Content)
		}
	}

	return nil
}

func KBWipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe <client-id>",
		Short: "Delete all chunks for a client",
		Long:  "Delete every knowledge chunk belonging to the specified client",
		Args:  cobra.ExactArgs(1),
		RunE:  runKBWipe,
	}

	cmd.Flags().Bool("yes", false, "Skip confirmation prompt")

	return cmd
}

func runKBWipe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	clientID := args[0]
	yes, _ := cmd.Flags().GetBool("yes")

	if !yes {
		fmt.Printf("Delete ALL chunks for client %q? Type the client id to confirm: ", clientID)
		var confirm string
		if _, err := fmt.Scanln(&confirm); err != nil || confirm != clientID {
			return fmt.Errorf("aborted")
		}
	}

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

	deleted, err := svc.DeleteClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	fmt.Printf("Deleted %d chunks for %s\n", deleted, clientID)
	return nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
}
