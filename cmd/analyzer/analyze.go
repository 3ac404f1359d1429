package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/export"
	"nuwa-digital-twin/farm-analysis-backend/internal/farm"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		ndviOnly          bool
		deforestationOnly bool
		carbonOnly        bool
		startDate         string
		endDate           string
		output            string
		certificate       string
	)

	cmd := &cobra.Command{
		Use:   "analyze <farm.json>",
		Short: "Analyze a single farm file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := farm.LoadRecord(args[0])
			if err != nil {
				return err
			}

			opts := analysis.Options{
				NDVIStartDate: startDate,
				NDVIEndDate:   endDate,
			}
			switch {
			case ndviOnly:
				opts.Branches = []analysis.Branch{analysis.BranchNDVI}
			case deforestationOnly:
				opts.Branches = []analysis.Branch{analysis.BranchDeforestation}
			case carbonOnly:
				opts.Branches = []analysis.Branch{analysis.BranchCarbon}
			}

			doc := newPipeline().Analyze(cmd.Context(), record, opts)

			if output == "" {
				stem := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
				output = filepath.Join(cfg.Batch.OutputDir, stem+"_analysis.json")
			}
			if err := analysis.WriteDocument(doc, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analysis written to %s\n", output)

			if certificate != "" {
				f, err := os.Create(certificate)
				if err != nil {
					return fmt.Errorf("failed to create certificate: %w", err)
				}
				defer f.Close()
				if err := export.WriteComplianceCertificate(f, doc); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Certificate written to %s\n", certificate)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ndviOnly, "ndvi-only", false, "only calculate NDVI")
	cmd.Flags().BoolVar(&deforestationOnly, "deforestation-only", false, "only analyze deforestation")
	cmd.Flags().BoolVar(&carbonOnly, "carbon-only", false, "only calculate carbon baseline")
	cmd.Flags().StringVar(&startDate, "start-date", "", "NDVI start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "NDVI end date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&certificate, "certificate", "", "also write a compliance certificate PDF to this path")
	cmd.MarkFlagsMutuallyExclusive("ndvi-only", "deforestation-only", "carbon-only")

	return cmd
}
