package main

import (
	sproutmcp "github.com/hyperengineering/sprout/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio, exposing
submit, summary, plan, sync and stats as tools.

Example client configuration:

  {
    "mcpServers": {
      "sprout": {
        "command": "sprout",
        "args": ["mcp"],
        "env": {
          "SPROUT_PROFILE": "kitchen-tablet",
          "SPROUT_REMOTE": "http",
          "SPROUT_REMOTE_URL": "https://example.supabase.co",
          "SPROUT_API_KEY": "..."
        }
      }
    }
  }

The server keeps a background sync loop running while a remote is
configured.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadAndValidateConfig()
	if err != nil {
		return err
	}
	cfg.AutoSync = true

	client, closeClient, err := openClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	return sproutmcp.NewServer(client, version).Run()
}
