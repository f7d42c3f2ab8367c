package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Registry is the set of endpoints one server mounts and one CLI exposes.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds endpoints in the order their commands are listed.
func (r *Registry) Register(eps ...Endpoint) {
	r.endpoints = append(r.endpoints, eps...)
}

// RegisterRoutes mounts every route on mux. Routes that need the scheduler
// are wrapped by initMiddleware, which answers them until the server has
// started.
func (r *Registry) RegisterRoutes(mux *http.ServeMux, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		mux.HandleFunc(method+" "+path, handler)
	}
}

// BuildCommands returns an "api" command with one subcommand per
// registered endpoint.
func (r *Registry) BuildCommands(getServerURL func() string) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Inspect and steer the reindexing queue of a running server",
		Long: `Each command calls one endpoint of a running metadata index
(mdindex serve). AU ids are "<plugin id>&<au key>"; quote them in the shell.
Use --server to reach a server on another address.

Examples:
  mdindex api status                                   # Active, recent and failed tasks
  mdindex api pending --limit 20                       # Next AUs in dispatch order
  mdindex api indexing on                              # Start indexing (first time scans all AUs)
  mdindex api au 'org.example.Plugin&base~x'           # What is indexed for one AU
  mdindex api enqueue --full 'org.example.Plugin&base~x' # Reindex one AU from scratch
  mdindex api stop --reschedule 'org.example.Plugin&base~x'`,
	}

	for _, ep := range r.endpoints {
		apiCmd.AddCommand(ep.Command(getServerURL))
	}

	return apiCmd
}

// Endpoints returns the registered endpoints in registration order.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}
