package main

import (
	"os"

	"github.com/spf13/cobra"
)

// apiBase is the prefix all API routes are mounted under.
const apiBase = "/api/v1alpha1"

var (
	serverURL string
	outputFmt string
	userName  string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "assetgraphctl",
	Short: "CLI for the asset graph server",
	Long: `assetgraphctl manages assets and approval workflows on an asset graph server.

Identity is sent either as a trusted X-Remote-User header (development mode)
or as a JWT bearer token via --token / ASSETGRAPH_TOKEN.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Asset graph server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", "", "Acting user (default: ASSETGRAPH_USER env)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "Bearer token (default: ASSETGRAPH_TOKEN env)")

	rootCmd.AddCommand(healthCmd)
}

// resolvedUser returns the effective acting user.
// Priority: --user flag > ASSETGRAPH_USER env var.
func resolvedUser() string {
	if userName != "" {
		return userName
	}
	return os.Getenv("ASSETGRAPH_USER")
}

// resolvedToken returns the effective bearer token.
func resolvedToken() string {
	if authToken != "" {
		return authToken
	}
	return os.Getenv("ASSETGRAPH_TOKEN")
}
