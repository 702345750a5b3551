package main

func init() {
	// Add subcommands
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(smokeTestCmd)

	// Root command flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "f", "", "Path to configuration file (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.PersistentFlags().StringVar(&hecURL, "hec-url", "", "Splunk HEC base URL")
	rootCmd.PersistentFlags().StringVar(&hecToken, "hec-token", "", "Splunk HEC token")
	rootCmd.PersistentFlags().StringVar(&hecChannel, "hec-channel", "", "Splunk HEC request channel")
	rootCmd.PersistentFlags().StringVar(&hecIndex, "hec-index", "", "Destination index")
	rootCmd.PersistentFlags().StringVar(&hecSource, "hec-source", "", "Event source label")
	rootCmd.PersistentFlags().StringVar(&hecSourcetype, "hec-sourcetype", "", "Event sourcetype")
	rootCmd.PersistentFlags().StringVar(&sendMode, "send-mode", "", "Batch send mode: parallel or sequential")
	rootCmd.PersistentFlags().BoolVar(&gzipHEC, "hec-gzip", false, "Gzip compress payloads to HEC")
	rootCmd.PersistentFlags().BoolVar(&ignoreSSLErrors, "ignore-ssl-errors", false, "Accept any server certificate (failures still reported)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "TCP ingest listen address (e.g. :9015)")
	rootCmd.PersistentFlags().StringVar(&dlqDir, "dlq-dir", "", "Dead letter queue directory")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics", "", "Prometheus metrics listen address")
	rootCmd.PersistentFlags().IntVar(&maxLineBytes, "max-line-bytes", 0, "Max bytes per ingested line")
}
