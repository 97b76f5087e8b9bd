package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/doctype"
	"github.com/ziadkadry99/docintake/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or inspect the reference index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the reference index from the training corpus",
	Long: `Embeds every labeled sample in the corpus directory and persists the
index. An existing index is kept unless it is stale or --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signalContext()
		defer stop()

		emb, err := app.NewEmbedder(cfg)
		if err != nil {
			return err
		}
		res, err := app.LoadIndex(ctx, cfg, emb, force, logger)
		if err != nil {
			return err
		}
		if !res.Built {
			fmt.Fprintf(cmd.OutOrStdout(), "Index at %s is current (%d vectors). Use --force to rebuild.\n", cfg.Index.Dir, res.Index.Len())
			return nil
		}
		printIndexInfo(cmd.OutOrStdout(), cfg.Index.Dir, res.Index, res.Manifest)
		return nil
	},
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the persisted reference index",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !index.Exists(cfg.Index.Dir) {
			return fmt.Errorf("no index at %s; run `docintake index build` first", cfg.Index.Dir)
		}
		idx, manifest, err := index.Load(cfg.Index.Dir)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeIndexInfoJSON(cmd.OutOrStdout(), idx, manifest)
		}
		printIndexInfo(cmd.OutOrStdout(), cfg.Index.Dir, idx, manifest)
		return nil
	},
}

func init() {
	indexBuildCmd.Flags().Bool("force", false, "rebuild even if a current index exists")
	indexInfoCmd.Flags().Bool("json", false, "output as JSON")
	indexCmd.AddCommand(indexBuildCmd, indexInfoCmd)
	rootCmd.AddCommand(indexCmd)
}

type labelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// histogram returns label counts ordered by code.
func histogram(idx *index.Index) []labelCount {
	h := idx.Histogram()
	codes := make([]int, 0, len(h))
	for c := range h {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	out := make([]labelCount, 0, len(codes))
	for _, c := range codes {
		name := fmt.Sprintf("code %d", c)
		if t, err := doctype.FromCode(c); err == nil {
			name = t.String()
		}
		out = append(out, labelCount{Label: name, Count: h[c]})
	}
	return out
}

func printIndexInfo(w io.Writer, dir string, idx *index.Index, m *index.Manifest) {
	fmt.Fprintf(w, "Index:     %s\n", dir)
	fmt.Fprintf(w, "Vectors:   %d\n", idx.Len())
	fmt.Fprintf(w, "Dimension: %d\n", idx.Dim())
	if m != nil {
		fmt.Fprintf(w, "Embedder:  %s\n", m.Embedder)
		fmt.Fprintf(w, "Schema:    v%d\n", m.SchemaVersion)
		if !m.BuiltAt.IsZero() {
			fmt.Fprintf(w, "Built:     %s\n", m.BuiltAt.Format("2006-01-02 15:04:05"))
		}
		r := m.Report
		fmt.Fprintf(w, "Build:     %d added, %d missing text/label, %d unknown label, %d unreadable files\n",
			r.Added, r.SkippedMissing, r.SkippedUnknownLabel, r.SkippedFiles)
	}
	fmt.Fprintln(w, "\nLabels:")
	for _, lc := range histogram(idx) {
		fmt.Fprintf(w, "  %-24s %d\n", lc.Label, lc.Count)
	}
}

func writeIndexInfoJSON(w io.Writer, idx *index.Index, m *index.Manifest) error {
	out := struct {
		Vectors  int             `json:"vectors"`
		Dim      int             `json:"dim"`
		Manifest *index.Manifest `json:"manifest,omitempty"`
		Labels   []labelCount    `json:"labels"`
	}{idx.Len(), idx.Dim(), m, histogram(idx)}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
