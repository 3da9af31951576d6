// Command index groups the indexing operations exposed over HTTP
// (internal/server/handlers_ops.go) behind direct CLI subcommands: start,
// cancel, stats and search live in this file, watch in index_watch.go.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Indexing operations against a profile's buckets",
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var indexStartCmd = &cobra.Command{
	Use:   "start <profile> <bucket>",
	Short: "Run start_initial_index against a bucket",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxRequests, _ := cmd.Flags().GetInt("max-requests")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		result, err := appCore.StartInitialIndex(cmd.Context(), args[0], args[1], maxRequests, batchSize)
		if err != nil {
			return fmt.Errorf("start initial index: %w", err)
		}
		return printJSON(result)
	},
}

var indexCancelCmd = &cobra.Command{
	Use:   "cancel <profile> <bucket>",
	Short: "Run cancel_indexing against an in-flight job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := appCore.CancelIndexing(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("cancel indexing: %w", err)
		}
		fmt.Println("cancelling")
		return nil
	},
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats <profile> <bucket>",
	Short: "Run get_bucket_index_stats (or get_prefix_index_stats with --prefix)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		if prefix != "" {
			stats, err := appCore.GetPrefixIndexStats(cmd.Context(), args[0], args[1], prefix)
			if err != nil {
				return fmt.Errorf("get prefix index stats: %w", err)
			}
			return printJSON(stats)
		}
		stats, err := appCore.GetBucketIndexStats(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("get bucket index stats: %w", err)
		}
		return printJSON(stats)
	},
}

var indexSearchCmd = &cobra.Command{
	Use:   "search <profile> <bucket> <query>",
	Short: "Run search_objects_in_index (substring or glob)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix, _ := cmd.Flags().GetString("prefix")
		limit, _ := cmd.Flags().GetInt("limit")
		minSize, _ := cmd.Flags().GetString("min-size")
		maxSize, _ := cmd.Flags().GetString("max-size")

		objects, err := appCore.SearchObjectsInIndexWithSizeRange(cmd.Context(), args[0], args[1], args[2], prefix, minSize, maxSize, limit)
		if err != nil {
			return fmt.Errorf("search objects in index: %w", err)
		}
		return printJSON(objects)
	},
}

func init() {
	indexStartCmd.Flags().Int("max-requests", 0, "override index_defaults.max_initial_requests for this run")
	indexStartCmd.Flags().Int("batch-size", 0, "override index_defaults.batch_size for this run")
	indexStatsCmd.Flags().String("prefix", "", "report stats for this prefix instead of the whole bucket")
	indexSearchCmd.Flags().String("prefix", "", "constrain the search to this prefix")
	indexSearchCmd.Flags().Int("limit", 100, "maximum number of results")
	indexSearchCmd.Flags().String("min-size", "", "minimum object size, e.g. 10MB")
	indexSearchCmd.Flags().String("max-size", "", "maximum object size, e.g. 1GB")

	indexCmd.AddCommand(indexStartCmd, indexCancelCmd, indexStatsCmd, indexSearchCmd)
}
