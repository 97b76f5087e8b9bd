package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Semantically search processed documents",
	Long:  `Searches the record store with a natural language query and returns the most similar processed documents.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", 10, "maximum number of results")
	queryCmd.Flags().String("type", "", "filter by document type, e.g. invoice")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queryText := args[0]

	limit, _ := cmd.Flags().GetInt("limit")
	typeFilter, _ := cmd.Flags().GetString("type")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	newLogger(cfg)

	var filter *vectordb.SearchFilter
	if typeFilter != "" {
		t, err := doctype.Parse(typeFilter)
		if err != nil {
			return err
		}
		filter = &vectordb.SearchFilter{Type: t.String()}
	}

	embedder, err := app.NewEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	store, err := vectordb.OpenChromemStore(cfg.Store.Dir, embedder)
	if err != nil {
		return err
	}
	if store.Count() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Record store is empty. Run `docintake process <root>` first.")
		return nil
	}

	results, err := store.Search(ctx, queryText, limit, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printQueryResultsJSON(results)
	}
	fmt.Fprint(cmd.OutOrStdout(), vectordb.FormatResults(results))
	return nil
}

type queryResultJSON struct {
	Rank       int     `json:"rank"`
	Similarity float64 `json:"similarity"`
	Filename   string  `json:"filename"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Snippet    string  `json:"snippet"`
}

func printQueryResultsJSON(results []vectordb.SearchResult) error {
	out := make([]queryResultJSON, 0, len(results))
	for i, r := range results {
		conf, _ := strconv.ParseFloat(r.Record.Metadata["confidence"], 64)
		out = append(out, queryResultJSON{
			Rank:       i + 1,
			Similarity: float64(r.Similarity),
			Filename:   r.Record.Key,
			Type:       r.Record.Metadata["type"],
			Confidence: conf,
			Snippet:    truncate(r.Record.Text, 200),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
