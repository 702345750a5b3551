// Package hecsink implements a Splunk HTTP Event Collector (HEC) sink.
// It provides a batching event serializer and delivery client for the HEC
// JSON event endpoint, plus a forwarding daemon that reads newline-delimited
// JSON log lines and ships them to Splunk.
package hecsink

import (
	"fmt"
)

// AppName is the canonical name of the application binary.
const AppName = "hecsink"

var (
	version string
	build   string
)

// Version returns the application version and build information.
// The version and build values are injected at compile time via ldflags.
func Version() string {
	return fmt.Sprintf("%s (%s)", version, build)
}
