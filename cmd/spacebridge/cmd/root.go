// Package cmd provides the CLI commands for the spacebridge proxy.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spacebridge/gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "spacebridge",
	Short: "spacebridge - Gradio Space MCP aggregating proxy",
	Long: `spacebridge aggregates a heterogeneous fleet of remote Gradio Space MCP
endpoints behind a single, unified MCP tool-execution server.

A client connects once and sees (a) any built-in tools registered with
the session registry (serve registers none), and (b) a dynamic catalogue of tools
scraped from whatever spaces the session's tool-selection strategy
resolves, with per-invocation SSE bridging, progress relay, and
replica-aware URL rewriting handled transparently.

Configuration:
  Config is loaded from spacebridge.yaml in the current directory,
  $HOME/.spacebridge/, or /etc/spacebridge/.

  Environment variables (GRADIO_SPACE_CACHE_TTL,
  GRADIO_SCHEMA_CACHE_TTL, GRADIO_DISCOVERY_CONCURRENCY,
  GRADIO_SPACE_INFO_TIMEOUT, GRADIO_SCHEMA_TIMEOUT, NO_REPLICA_REWRITE,
  SEARCH_ENABLES_FETCH, DEFAULT_HF_TOKEN) override config file values.

Commands:
  serve       Start the proxy server
  version     Print version information
  config      Print the effective configuration`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./spacebridge.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
