package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/invoice-trust/constants"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/export"
	"github.com/joseph-ayodele/invoice-trust/internal/ingest"
	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
	"github.com/joseph-ayodele/invoice-trust/internal/repository"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir|s3://bucket/prefix>",
	Short: "Extract every invoice under a directory or S3 prefix and export the records",
	Long: `Batch loads every supported document under the given directory or S3 prefix,
skipping hidden files and duplicate content, processes them on a worker pool and
writes one row per document to a CSV or XLSX file. An XLSX export also carries a
Metrics sheet with field accuracy and strategy success counts.

With --db (or DB_URL) every extracted record is also stored in sqlite or Postgres.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringP("output", "o", "invoices.xlsx", "output file, .csv or .xlsx")
	f.String("db", "", "record store DSN: sqlite://path or postgres://... (default DB_URL)")
	f.Bool("include-hidden", false, "also load hidden files and folders")
	f.Int64("max-mb", 25, "largest accepted document in MiB")

	_ = viper.BindPFlag("db", f.Lookup("db"))
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := newLogger()
	root := args[0]

	output, _ := cmd.Flags().GetString("output")
	if _, err := export.FormatFor(output); err != nil {
		return err
	}

	cfg, eng, err := buildEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	maxMB, _ := cmd.Flags().GetInt64("max-mb")
	ing, err := newIngestor(ctx, cfg, root, maxMB<<20, logger)
	if err != nil {
		return err
	}
	includeHidden, _ := cmd.Flags().GetBool("include-hidden")
	results, stats, err := ing.IngestDirectory(ctx, root, !includeHidden)
	if err != nil {
		return err
	}
	var skipped []pipeline.LoadFailure
	for _, r := range results {
		if r.Err != "" {
			logger.Warn("batch.ingest.failed", "path", r.SourcePath, "error", r.Err)
			skipped = append(skipped, pipeline.LoadFailure{DocumentID: r.SourcePath, Reason: r.Err})
		}
	}
	docs := ingest.Documents(results)
	logger.Info("batch.ingest.done",
		"root", root,
		"scanned", stats.Scanned,
		"loaded", len(docs),
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)

	batch := pipeline.NewBatch(eng.Processor, logger,
		pipeline.WithWorkers(cfg.Engine.Workers),
		pipeline.WithDocumentTimeout(cfg.Engine.DocumentTimeout),
	)
	outcomes, _ := batch.Run(ctx, docs)
	outcomes, summary := pipeline.AppendLoadFailures(outcomes, skipped)

	dsn := viper.GetString("db")
	if dsn == "" {
		dsn = cfg.Database.DSN
	}
	if dsn != "" {
		if err := storeRecords(ctx, cfg.Database, dsn, outcomes, logger); err != nil {
			return err
		}
	}

	if err := export.WriteFile(output, eng.Processor.FieldNames(), outcomes, eng.Metrics.Snapshot()); err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	if err := out.Encode(map[string]any{"output": output, "summary": summary}); err != nil {
		return err
	}
	if summary.Cancelled > 0 {
		return fmt.Errorf("batch interrupted: %d document(s) cancelled", summary.Cancelled)
	}
	return nil
}

func newIngestor(ctx context.Context, cfg *common.Config, root string, maxBytes int64, logger *slog.Logger) (ingest.Ingestor, error) {
	if !ingest.IsS3URI(root) {
		return ingest.NewFSIngestor(maxBytes, logger), nil
	}
	client, err := ingest.NewS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return ingest.NewS3Ingestor(client, maxBytes, logger), nil
}

func storeRecords(ctx context.Context, dbCfg common.DatabaseConfig, dsn string, outcomes []pipeline.Outcome, logger *slog.Logger) error {
	rc := repository.ConfigFrom(dbCfg)
	rc.DSN = dsn
	db, err := repository.Open(ctx, rc, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	saved := 0
	for _, o := range outcomes {
		if o.Status != constants.OutcomeExtracted {
			continue
		}
		if _, err := db.Save(ctx, o.Record); err != nil {
			logger.Error("batch.store.failed", "document_id", o.DocumentID, "error", err)
			continue
		}
		saved++
	}
	logger.Info("batch.store.done", "dialect", db.Dialect(), "saved", saved)
	return nil
}
