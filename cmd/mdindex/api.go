package main

import (
	"github.com/jackzampolin/mdindex/internal/api"
	"github.com/jackzampolin/mdindex/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	registry := api.NewRegistry()
	registry.Register(endpoints.All(endpoints.Config{})...)

	apiCmd := registry.BuildCommands(getServerURL)
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://127.0.0.1:8480", "Server URL",
	)
	rootCmd.AddCommand(apiCmd)
}
