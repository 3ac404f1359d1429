package main

import (
	"fmt"
	"path/filepath"

	"nuwa-digital-twin/farm-analysis-backend/internal/publish"

	"github.com/spf13/cobra"
)

func newPublishCmd() *cobra.Command {
	var (
		batchMode    bool
		dryRun       bool
		onlyEligible bool
	)

	cmd := &cobra.Command{
		Use:   "publish <analysis.json | directory>",
		Short: "Pin analysis documents to IPFS and generate NFT metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creds := publish.PinataCredentials{
				JWT:       cfg.Pinata.JWT,
				APIKey:    cfg.Pinata.APIKey,
				APISecret: cfg.Pinata.APISecret,
			}
			if !dryRun && !creds.Configured() {
				return fmt.Errorf("pinata credentials not configured (set PINATA_JWT or PINATA_API_KEY/PINATA_API_SECRET, or use --dry-run)")
			}

			publisher := publish.NewPublisher(publish.NewPinataClient(creds, logger), logger)
			opts := publish.Options{DryRun: dryRun, OnlyEligible: onlyEligible}

			if batchMode {
				manifest, err := publisher.PublishDirectory(cmd.Context(), args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Published %d farms (%d eligible, %.2f tCO2e), manifest at %s\n",
					manifest.TotalFarms, manifest.EligibleFarms, manifest.TotalCarbonTCO2e,
					filepath.Join(args[0], publish.ManifestFilename))
				return nil
			}

			pin, err := publisher.PublishFile(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pinned %s: %s\n  %s\n  metadata: %s\n",
				pin.FarmName, pin.IpfsHash, pin.IpfsURL, pin.MetadataFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&batchMode, "batch", false, "publish every analysis in a directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate metadata with placeholder hashes, no uploads")
	cmd.Flags().BoolVar(&onlyEligible, "only-eligible", false, "publish only EUDR-compliant farms")

	return cmd
}

func newVerifyCmd() *cobra.Command {
	var hash string

	cmd := &cobra.Command{
		Use:   "verify [manifest.json]",
		Short: "Check pinned hashes against public IPFS gateways",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verifier := publish.NewVerifier(logger)

			if hash != "" {
				result := verifier.VerifyHash(cmd.Context(), hash)
				if !result.Accessible {
					return fmt.Errorf("hash %s is not reachable on any gateway", hash)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s accessible via %s (%s)\n",
					result.Hash, result.Gateway, result.ContentType)
				return nil
			}

			path := publish.ManifestFilename
			if len(args) == 1 {
				path = args[0]
			}
			manifest, err := publish.LoadManifest(path)
			if err != nil {
				return err
			}

			report := verifier.VerifyManifest(cmd.Context(), manifest)
			fmt.Fprintf(cmd.OutOrStdout(), "Verified %d pins: %d accessible, %d skipped (dry-run)\n",
				report.Total, report.Accessible, report.Skipped)
			for _, name := range report.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  FAILED: %s\n", name)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d pins failed verification", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "verify a single CID instead of a manifest")

	return cmd
}
