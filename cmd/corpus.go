package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/corpus"
	"github.com/ziadkadry99/docintake/internal/ocr"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Prepare the labeled training corpus",
}

var corpusSplitCmd = &cobra.Command{
	Use:   "split <input> <output>",
	Short: "OCR labeled folders into corpus sample files",
	Long: `Reads <input>/<label>/ for every known document type, OCRs each file,
and writes <output>/samples_<label>.json. Files that fail OCR are reported
and left out.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signalContext()
		defer stop()

		ex := ocr.NewExtractor(app.OCRConfig(cfg.OCR), logger)
		results, err := corpus.Split(ctx, ex, args[0], args[1], logger)
		out := cmd.OutOrStdout()
		for _, r := range results {
			for _, e := range r.Errors {
				fmt.Fprintf(out, "Error processing %v\n", e)
			}
			fmt.Fprintf(out, "Saved %d samples to %s\n", r.Samples, r.File)
		}
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintf(out, "No label folders found under %s\n", args[0])
		}
		return nil
	},
}

func init() {
	corpusCmd.AddCommand(corpusSplitCmd)
	rootCmd.AddCommand(corpusCmd)
}
