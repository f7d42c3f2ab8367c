package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/mdindex/internal/api"
	"github.com/jackzampolin/mdindex/internal/svcctx"
)

// PendingResponse lists pending AUs in dispatch order.
type PendingResponse struct {
	AuIDs  []string `json:"au_ids"`
	Active []string `json:"active"`
}

// PendingEndpoint handles GET /api/pending.
type PendingEndpoint struct{}

func (e *PendingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/pending", e.handler
}

func (e *PendingEndpoint) RequiresInit() bool { return true }

func (e *PendingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}

	sched := svcctx.SchedulerFrom(r.Context())
	ids, err := sched.PendingAuIDs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, PendingResponse{AuIDs: ids, Active: sched.ActiveAuIDs()})
}

func (e *PendingEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List the AUs waiting to be indexed, next first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/pending"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			var resp PendingResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum AUs to list (default: the configured pending list size)")
	return cmd
}

// IndexingRequest turns indexing on or off.
type IndexingRequest struct {
	Enabled bool `json:"enabled"`
}

// IndexingEndpoint handles PUT /api/indexing.
type IndexingEndpoint struct{}

func (e *IndexingEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/indexing", e.handler
}

func (e *IndexingEndpoint) RequiresInit() bool { return true }

func (e *IndexingEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req IndexingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sched := svcctx.SchedulerFrom(r.Context())
	if err := sched.SetIndexingEnabled(r.Context(), req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
		logger.Info("indexing toggled over the API", "enabled", req.Enabled)
	}
	writeJSON(w, http.StatusOK, IndexingRequest{Enabled: sched.Settings().Enabled})
}

func (e *IndexingEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:       "indexing <on|off>",
		Short:     "Turn metadata indexing on or off",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			client := api.NewClient(getServerURL())
			var resp IndexingRequest
			if err := client.Put(cmd.Context(), "/api/indexing", IndexingRequest{Enabled: enabled}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ConfigEndpoint handles GET /api/config.
type ConfigEndpoint struct{}

func (e *ConfigEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/config", e.handler
}

func (e *ConfigEndpoint) RequiresInit() bool { return true }

func (e *ConfigEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	cm := svcctx.ConfigFrom(r.Context())
	if cm == nil {
		writeError(w, http.StatusServiceUnavailable, "configuration not loaded")
		return
	}
	writeJSON(w, http.StatusOK, cm.Get())
}

func (e *ConfigEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the configuration the server is running with",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]any
			if err := client.Get(cmd.Context(), "/api/config", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// MetricsEndpoint handles GET /metrics in the prometheus exposition format.
type MetricsEndpoint struct {
	Gatherer prometheus.Gatherer
}

func (e *MetricsEndpoint) Route() (string, string, http.HandlerFunc) {
	g := e.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return "GET", "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP
}

func (e *MetricsEndpoint) RequiresInit() bool { return false }

func (e *MetricsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Print the server's prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			text, err := client.GetText(cmd.Context(), "/metrics")
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
}
