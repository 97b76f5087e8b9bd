package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/pipeline"
	"github.com/ziadkadry99/docintake/internal/vectordb"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List processed records",
	RunE: func(cmd *cobra.Command, args []string) error {
		label, _ := cmd.Flags().GetString("type")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		database, records, err := openRecordStore()
		if err != nil {
			return err
		}
		defer database.Close()

		recs, err := records.ListRecords(cmd.Context(), db.ListFilter{Label: label, RunID: runID, Limit: limit})
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeRecordsJSON(cmd.OutOrStdout(), recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No records found.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILENAME\tTYPE\tCONFIDENCE\tFIELDS\tUPDATED")
		for _, r := range recs {
			filled := 0
			for _, v := range r.Fields {
				if v != nil {
					filled++
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d/%d\t%s\n", r.Filename, r.Label, r.Confidence,
				filled, len(r.FieldOrder), r.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		database, records, err := openRecordStore()
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := records.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTATUS\tPROCESSED\tFAILED\tSTARTED\tROOT")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", r.ID, r.Status, r.Processed, r.Failed,
				r.StartedAt.Format("2006-01-02 15:04:05"), r.Root)
		}
		return tw.Flush()
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <filename>...",
	Short: "Remove processed records by file name",
	Long: `Removes each named record from the vector store and the record
database. Re-processing the file later stores it again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		emb, err := app.NewEmbedder(cfg)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		store, err := vectordb.OpenChromemStore(cfg.Store.Dir, emb)
		if err != nil {
			return err
		}
		database, records, err := app.OpenRecords(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		p := pipeline.New(pipeline.Deps{Store: store, Records: records}, pipeline.Options{Logger: logger})
		for _, name := range args {
			if err := p.Forget(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
		}
		return nil
	},
}

func init() {
	recordsCmd.Flags().String("type", "", "filter by document type")
	recordsCmd.Flags().String("run", "", "filter by batch run ID")
	recordsCmd.Flags().Int("limit", 50, "maximum number of records")
	recordsCmd.Flags().Bool("json", false, "output as JSON")
	runsCmd.Flags().Int("limit", 10, "maximum number of runs")
	recordsCmd.AddCommand(runsCmd, recordsDeleteCmd)
	rootCmd.AddCommand(recordsCmd)
}

func openRecordStore() (*db.DB, *db.RecordStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	newLogger(cfg)
	return app.OpenRecords(cfg)
}

type recordJSON struct {
	Filename   string         `json:"filename"`
	Type       string         `json:"type"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
	RunID      string         `json:"run_id,omitempty"`
	UpdatedAt  string         `json:"updated_at"`
}

func writeRecordsJSON(w io.Writer, recs []db.StoredRecord) error {
	out := make([]recordJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordJSON{
			Filename:   r.Filename,
			Type:       r.Label.String(),
			Confidence: r.Confidence,
			Entities:   r.Fields,
			RunID:      r.RunID,
			UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
