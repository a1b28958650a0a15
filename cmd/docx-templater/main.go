// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the docx-templater CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/docx-templater/internal/logging"
	"github.com/pdiddy/docx-templater/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// appConfig holds the merged configuration for the running command.
var appConfig types.Config

// logCloser releases the log file opened for the running command.
var logCloser io.Closer

// rootCmd is the base command for the docx-templater CLI.
var rootCmd = &cobra.Command{
	Use:   "docx-templater",
	Short: "Turn legacy merge-field documents into placeholder templates",
	Long: `docx-templater converts legacy .doc files into .docx and rewrites the
bracketed merge fields they carry ([Client Name], [MT05], [DATE:DS("...")])
into {{placeholder}} tokens a modern templating engine can bind.

Run "docx-templater run" in a directory to convert and template every
document in it. Each stage is also available as its own subcommand.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		appConfig = cfg

		logger, closer := logging.New(cfg.Logging, os.Stderr)
		logCloser = closer
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(logging.WithLogger(ctx, logger))

		if used := viper.ConfigFileUsed(); used != "" {
			logger.Info().Str("file", used).Msg("using config file")
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./docx-templater.yaml or ~/.config/docx-templater/docx-templater.yaml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().String("log-file", "", "also write JSON logs to this rotated file")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("docx-templater")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "docx-templater"))
		}
	}

	viper.SetEnvPrefix("DOCX_TEMPLATER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Reading config file:", err)
	}
}

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}
