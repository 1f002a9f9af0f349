// Copyright 2025 ZapShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LeeDigitalWorks/zapshare/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "zapshare",
	Short: "ZapShare - anonymous file and text sharing",
	Long: `ZapShare shares files and text snippets behind short retrieval codes.
Codes expire by usage count, by elapsed time, or never. Content lives on a
local filesystem or S3-compatible backend; metadata lives in memory,
PostgreSQL, or MySQL.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
