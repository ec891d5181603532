package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "autoapply",
	Short:         "Auto-apply job application service",
	Long:          "autoapply tracks job postings, scores them against your resume, and drives a browser-automation executor to submit applications within your daily quota.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(resubmitCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(configCmd)
}
