package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docintake/internal/app"
	"github.com/ziadkadry99/docintake/internal/classifier"
	"github.com/ziadkadry99/docintake/internal/llm"
	"github.com/ziadkadry99/docintake/internal/pipeline"
	"github.com/ziadkadry99/docintake/internal/progress"
)

var processCmd = &cobra.Command{
	Use:   "process <root>",
	Short: "OCR, classify, extract and store every document under a directory",
	Long: `Walks the directory, runs each supported document through OCR,
classification and field extraction, and upserts the result keyed by
file name. One line per document is printed to stdout. A document that
fails is reported and skipped; the rest of the batch continues.

With --watch the batch runs once, then new or changed documents are
processed as they appear until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().Bool("watch", false, "keep running and process new or changed documents")
	processCmd.Flags().Duration("settle", 2*time.Second, "quiet period before a changed file is processed in watch mode")
	processCmd.Flags().Bool("fail-on-error", false, "exit with status 1 if any document failed")
	processCmd.Flags().String("policy", "", "confidence policy: softmax or inverse_distance (overrides config)")
	processCmd.Flags().Int("concurrency", 0, "documents processed at once (overrides config)")
	processCmd.Flags().Bool("no-progress", false, "disable the progress display")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	root := args[0]
	watch, _ := cmd.Flags().GetBool("watch")
	settle, _ := cmd.Flags().GetDuration("settle")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fail-on-error") {
		cfg.Pipeline.FailOnError, _ = cmd.Flags().GetBool("fail-on-error")
	}
	if p, _ := cmd.Flags().GetString("policy"); p != "" {
		if _, err := classifier.ParsePolicy(p); err != nil {
			return err
		}
		cfg.Index.Policy = p
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Pipeline.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	logger := newLogger(cfg)

	ctx, stop := signalContext()
	defer stop()

	var opts app.Options
	if !noProgress && !watch {
		opts.OnProgress = progress.Callback(progress.NewReporter(os.Stderr))
	}
	rt, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	out := cmd.OutOrStdout()
	start := time.Now()
	batch, err := rt.Pipeline.ProcessBatch(ctx, root)
	if err != nil {
		return err
	}
	var tally outcomeTally
	for o := range batch {
		tally.add(out, o)
	}

	fmt.Fprintf(os.Stderr, "\nProcessed %d documents in %s: %d succeeded, %d failed\n",
		tally.ok+tally.failed, time.Since(start).Round(time.Millisecond), tally.ok, tally.failed)
	printUsage(os.Stderr, rt.Usage, cfg.Model)

	if watch {
		fmt.Fprintf(os.Stderr, "Watching %s for changes (Ctrl+C to stop)\n", root)
		changes, err := rt.Pipeline.Watch(ctx, root, settle)
		if err != nil {
			return err
		}
		for o := range changes {
			tally.add(out, o)
		}
		printUsage(os.Stderr, rt.Usage, cfg.Model)
	}

	if cfg.Pipeline.FailOnError && tally.failed > 0 {
		return fmt.Errorf("%w: %d of %d", errBatchFailed, tally.failed, tally.ok+tally.failed)
	}
	return nil
}

type outcomeTally struct {
	ok, failed int
}

func (t *outcomeTally) add(w io.Writer, o pipeline.Outcome) {
	if o.OK() {
		t.ok++
	} else {
		t.failed++
	}
	fmt.Fprintln(w, formatOutcome(o))
}

// formatOutcome renders the per-document line printed by process.
func formatOutcome(o pipeline.Outcome) string {
	name := o.File.RelPath
	if name == "" {
		name = o.File.Name
	}
	if !o.OK() {
		return fmt.Sprintf("FAIL  %s  %v", name, o.Err)
	}
	return fmt.Sprintf("OK    %s  %s (%.2f)", name, o.Record.Label, o.Record.Confidence)
}

func printUsage(w io.Writer, u *llm.Usage, model string) {
	calls, in, outTok := u.Snapshot()
	if calls == 0 {
		return
	}
	fmt.Fprintf(w, "Extraction: %d calls, %d input / %d output tokens", calls, in, outTok)
	if cost := llm.EstimateCost(model, in, outTok); cost > 0 {
		fmt.Fprintf(w, " (~$%.4f)", cost)
	}
	fmt.Fprintln(w)
}
