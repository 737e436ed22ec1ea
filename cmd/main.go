// process-service tracks every job application through the recruitment
// pipeline.
//
// Exposes a REST API and a gRPC API used by the Gateway to:
//   - create the APPLIED process of a new application
//   - move a process along the stage graph, recording every hop
//   - read a process, its history, and per-posting / per-applicant lists
//   - report funnel statistics
//
// Publishes EVENT_PROCESS_UPDATED to Redis after each committed transition.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	serviceName = "process-service"
	version     = "1.0.0"
)

var rootCmd = &cobra.Command{
	Use:     serviceName,
	Short:   "Recruitment process state machine",
	Version: version,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
