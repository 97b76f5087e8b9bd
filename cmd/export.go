package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/db"
	"github.com/ziadkadry99/docintake/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export processed records to a spreadsheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("out")
		label, _ := cmd.Flags().GetString("type")
		runID, _ := cmd.Flags().GetString("run")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		database, records, err := app.OpenRecords(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		n, err := export.WriteXLSX(cmd.Context(), records, db.ListFilter{Label: label, RunID: runID}, f, logger)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(outPath)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records to %s\n", n, outPath)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "records.xlsx", "output spreadsheet path")
	exportCmd.Flags().String("type", "", "only export records of this document type")
	exportCmd.Flags().String("run", "", "only export records written by this batch run")
	rootCmd.AddCommand(exportCmd)
}
