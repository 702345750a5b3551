package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scottbrown/hecsink/internal/config"
	"github.com/scottbrown/hecsink/internal/hec"
	"github.com/spf13/cobra"
)

var smokeTestCmd = &cobra.Command{
	Use:   "smoke-test",
	Short: "Test Splunk HEC connectivity",
	Long:  "Test connectivity to Splunk HEC and exit",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig(configFile)
		if err != nil {
			fmt.Printf("❌ Error: %v\n", err)
			os.Exit(1)
		}
		applyFlagOverrides(cfg, cmd)
		performSmokeTest(cfg)
	},
}

// performSmokeTest probes the collector's health endpoint with the
// configured credentials.
func performSmokeTest(cfg *config.Config) {
	fmt.Printf("🔍 Testing Splunk HEC connectivity...\n")
	fmt.Printf("URL: %s\n", cfg.Splunk.HECURL)

	client, err := hec.New(buildClientConfig(cfg))
	if err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		fmt.Printf("Please set splunk.hec_url and splunk.hec_token in the config file or use --hec-url/--hec-token\n")
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		fmt.Printf("❌ Error: %v\n", err)
		fmt.Printf("Please verify your Splunk HEC URL and token are correct\n")
		os.Exit(1)
	}

	fmt.Printf("✅ Success: Splunk HEC is reachable and token is valid\n")
}
