// Command analyzer is the farm analysis CLI: single-farm analysis,
// batch directory processing, IPFS publishing and pin verification.
package main

import (
	"fmt"
	"os"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/carbon"
	"nuwa-digital-twin/farm-analysis-backend/internal/config"
	"nuwa-digital-twin/farm-analysis-backend/internal/deforestation"
	"nuwa-digital-twin/farm-analysis-backend/internal/earthengine"
	"nuwa-digital-twin/farm-analysis-backend/internal/ndvi"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	cfg     *config.Config
	logger  *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "analyzer",
		Short:         "Farm carbon and deforestation analysis toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			var err error
			cfg, err = config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			logger, err = buildLogger(cfg.Logging.Level)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "config.json", "path to config file")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newPublishCmd())
	root.AddCommand(newVerifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newPipeline wires the analysis service against the configured
// provider.
func newPipeline() *analysis.Service {
	client := earthengine.NewHTTPClient(cfg.EarthEngine.BaseURL, cfg.EarthEngine.Project, logger)
	retry := earthengine.RetryPolicy{MaxRetries: cfg.EarthEngine.MaxRetries, Logger: logger}

	return analysis.NewService(
		ndvi.NewCalculator(client, retry, logger),
		deforestation.NewAnalyzer(client, retry, logger),
		carbon.NewEstimator(client, retry, nil, logger),
		logger,
	)
}

func buildLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = parsed
	}
	return zapCfg.Build()
}
