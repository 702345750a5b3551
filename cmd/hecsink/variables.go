package main

var (
	configFile      string
	hecURL          string
	hecToken        string
	hecChannel      string
	hecIndex        string
	hecSource       string
	hecSourcetype   string
	sendMode        string
	gzipHEC         bool
	ignoreSSLErrors bool
	listenAddr      string
	dlqDir          string
	metricsAddr     string
	maxLineBytes    int
	verbose         bool
)
