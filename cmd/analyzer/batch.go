package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/batch"
	"nuwa-digital-twin/farm-analysis-backend/internal/export"
	"nuwa-digital-twin/farm-analysis-backend/pkg/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newBatchCmd() *cobra.Command {
	var (
		outputDir       string
		continueOnError bool
		startDate       string
		endDate         string
		summaryCSV      string
		summaryExcel    string
		schedule        string
	)

	cmd := &cobra.Command{
		Use:   "batch [input-dir]",
		Short: "Process a directory of farm files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir := cfg.Batch.InputDir
			if len(args) == 1 {
				inputDir = args[0]
			}
			if outputDir == "" {
				outputDir = cfg.Batch.OutputDir
			}
			if schedule == "" {
				schedule = cfg.Batch.CronSchedule
			}
			continueOnError = continueOnError || cfg.Batch.ContinueOnError

			var repo analysis.Repository
			if cfg.Database.Enabled() {
				db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
				if err != nil {
					return fmt.Errorf("failed to connect to database: %w", err)
				}
				if err := analysis.Migrate(db); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				repo = analysis.NewRepository(db)
			}

			orch := batch.NewOrchestrator(newPipeline(), repo, logger)
			opts := batch.Options{
				InputDir:        inputDir,
				OutputDir:       outputDir,
				ContinueOnError: continueOnError,
				Analysis: analysis.Options{
					NDVIStartDate: startDate,
					NDVIEndDate:   endDate,
				},
			}

			if schedule != "" {
				return runScheduled(cmd, orch, schedule, opts)
			}

			summary, err := orch.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writeReports(cmd, summary, outputDir, summaryCSV, summaryExcel)
		},
	}

	cmd.Flags().StringVar(&outputDir, "output-dir", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep processing after a farm fails")
	cmd.Flags().StringVar(&startDate, "start-date", "", "NDVI start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "NDVI end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&summaryCSV, "summary-csv", "", "summary CSV path (default <output-dir>/summary.csv)")
	cmd.Flags().StringVar(&summaryExcel, "summary-excel", "", "summary Excel path (optional)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression for recurring runs")

	return cmd
}

func writeReports(cmd *cobra.Command, summary *batch.RunSummary, outputDir, summaryCSV, summaryExcel string) error {
	if err := batch.WriteSummary(summary, filepath.Join(outputDir, "summary.json")); err != nil {
		return err
	}

	if summaryCSV == "" {
		summaryCSV = filepath.Join(outputDir, "summary.csv")
	}
	csvFile, err := os.Create(summaryCSV)
	if err != nil {
		return fmt.Errorf("failed to create summary csv: %w", err)
	}
	defer csvFile.Close()
	if err := export.WriteSummaryCSV(csvFile, summary); err != nil {
		return err
	}

	if summaryExcel != "" {
		xlsxFile, err := os.Create(summaryExcel)
		if err != nil {
			return fmt.Errorf("failed to create summary workbook: %w", err)
		}
		defer xlsxFile.Close()
		if err := export.WriteSummaryExcel(xlsxFile, summary); err != nil {
			return err
		}
	}

	if cfg.Storage.Enabled() {
		client, err := storage.NewS3Client(cmd.Context(), cfg.Storage.Region)
		if err != nil {
			logger.Error("skipping artifact upload", zap.Error(err))
		} else {
			uploader := storage.NewArtifactUploader(client, cfg.Storage.Bucket, cfg.Storage.Prefix, logger)
			if n, err := uploader.UploadDirectory(cmd.Context(), outputDir); err != nil {
				logger.Error("artifact upload incomplete", zap.Int("uploaded", n), zap.Error(err))
			} else {
				logger.Info("uploaded artifacts", zap.Int("count", n))
			}
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"Processed %d farms: %d succeeded, %d failed, %d EUDR compliant\n",
		summary.TotalFarms, summary.SuccessfulAnalyses, summary.FailedAnalyses, summary.EUDRCompliant)
	return nil
}

// runScheduled blocks running the batch on a cron schedule until
// interrupted.
func runScheduled(cmd *cobra.Command, orch *batch.Orchestrator, schedule string, opts batch.Options) error {
	scheduler := batch.NewScheduler(orch, logger)
	if err := scheduler.Schedule(schedule, opts); err != nil {
		return err
	}
	defer scheduler.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Scheduled batch runs (%s); press Ctrl-C to stop\n", schedule)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	return nil
}
