package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/pipeline"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <file>",
	Short: "Analyze one document without storing it",
	Long: `Runs a single document through OCR, classification and field
extraction and prints the result. Nothing is persisted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		policyName, _ := cmd.Flags().GetString("policy")
		var policy classifier.Policy
		if policyName != "" {
			p, err := classifier.ParsePolicy(policyName)
			if err != nil {
				return err
			}
			policy = p
		}

		ctx, stop := signalContext()
		defer stop()

		rt, err := openRuntime(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer rt.Close()

		res, err := rt.Pipeline.Analyze(ctx, args[0], policy)
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printAnalysis(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	classifyCmd.Flags().Bool("json", false, "output the analysis as JSON")
	classifyCmd.Flags().String("policy", "", "confidence policy: softmax or inverse_distance")
	rootCmd.AddCommand(classifyCmd)
}

func printAnalysis(w io.Writer, a *pipeline.Analysis) {
	fmt.Fprintf(w, "Type:       %s\n", a.DocumentType)
	fmt.Fprintf(w, "Confidence: %.4f\n", a.Confidence)
	if len(a.Entities) > 0 {
		fmt.Fprintln(w, "Fields:")
		keys := make([]string, 0, len(a.Entities))
		for k := range a.Entities {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := a.Entities[k]
			if v == nil {
				v = "-"
			}
			fmt.Fprintf(w, "  %-28s %v\n", k+":", v)
		}
	}
	fmt.Fprintf(w, "\n%s\n", truncate(a.RawText, 500))
}
