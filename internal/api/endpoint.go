// Package api ties each HTTP route of the metadata index server to the
// `mdindex api` command that calls it, and holds the client and output
// encoding those commands share.
package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one server operation, such as an AU action or the pending
// listing, exposed both as a route and as an `mdindex api` command.
type Endpoint interface {
	// Route returns the method, the ServeMux path and the handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the endpoint needs the store and the
	// scheduler, which exist only once the server has started.
	RequiresInit() bool

	// Command returns the `mdindex api` subcommand for the route.
	// getServerURL is read when the command runs, so --server applies.
	Command(getServerURL func() string) *cobra.Command
}
