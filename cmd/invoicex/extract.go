package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-trust/internal/ingest"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract one document and print its record as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show every strategy's confidence score and the chosen strategy for one document",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	extractCmd.Flags().Int64("max-mb", 25, "largest accepted document in MiB")
	inspectCmd.Flags().Int64("max-mb", 25, "largest accepted document in MiB")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(inspectCmd)
}

// processFile loads path and runs it through a freshly built engine.
func processFile(cmd *cobra.Command, path string) (*pipeline.Record, error) {
	ctx := cmd.Context()
	logger := newLogger()

	_, eng, err := buildEngine(ctx, logger)
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	maxMB, _ := cmd.Flags().GetInt64("max-mb")
	res, err := ingest.NewFSIngestor(maxMB<<20, logger).IngestPath(ctx, path, "")
	if err != nil {
		return nil, err
	}
	return eng.Processor.Process(ctx, res.Document)
}

func runExtract(cmd *cobra.Command, args []string) error {
	rec, err := processFile(cmd, args[0])
	if err != nil {
		printFailures(cmd, err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runInspect(cmd *cobra.Command, args []string) error {
	rec, err := processFile(cmd, args[0])
	if err != nil {
		printFailures(cmd, err)
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tSCORE\tLENGTH\tKEYWORDS\tSPEED\t")
	for _, s := range rec.Scores {
		mark := ""
		if s.Strategy == rec.Strategy {
			mark = "<- chosen"
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%.3f\t%s\n",
			s.Strategy, s.Score, s.Factors.Length, s.Factors.Keywords, s.Factors.Speed, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nchosen: %s  overall trust: %.3f  trusted: %t\n",
		rec.Strategy, rec.Trust.Overall, rec.Trust.Trusted)
	return nil
}

func printFailures(cmd *cobra.Command, err error) {
	var none *strategy.NoExtractionPossibleError
	if !errors.As(err, &none) {
		return
	}
	for _, f := range none.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", f.Strategy, f.Reason)
	}
}
