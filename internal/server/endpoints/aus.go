package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/mdindex/internal/api"
	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/svcctx"
)

// AuRequest names an AU in a request body.
type AuRequest struct {
	AuID       string `json:"au_id"`
	Full       bool   `json:"full,omitempty"`
	Reschedule bool   `json:"reschedule,omitempty"`
}

// AuActionResponse reports the result of an AU operation.
type AuActionResponse struct {
	AuID    string `json:"au_id"`
	Action  string `json:"action"`
	Applied bool   `json:"applied"`
}

// decodeAuRequest reads and validates an AuRequest body. It writes the
// error response and returns false when the request is unusable.
func decodeAuRequest(w http.ResponseWriter, r *http.Request) (AuRequest, bool) {
	var req AuRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if _, _, err := metadata.SplitAuID(req.AuID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	return req, true
}

// EnqueueEndpoint handles POST /api/aus/enqueue.
type EnqueueEndpoint struct{}

func (e *EnqueueEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/aus/enqueue", e.handler
}

func (e *EnqueueEndpoint) RequiresInit() bool { return true }

func (e *EnqueueEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAuRequest(w, r)
	if !ok {
		return
	}
	if err := svcctx.SchedulerFrom(r.Context()).Enqueue(r.Context(), req.AuID, req.Full); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, AuActionResponse{AuID: req.AuID, Action: "enqueue", Applied: true})
}

func (e *EnqueueEndpoint) Command(getServerURL func() string) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "enqueue <au-id>",
		Short: "Queue an AU for reindexing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AuActionResponse
			if err := client.Post(cmd.Context(), "/api/aus/enqueue", AuRequest{AuID: args[0], Full: full}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Discard the AU's indexed metadata and extract everything again")
	return cmd
}

// DisableEndpoint handles POST /api/aus/disable.
type DisableEndpoint struct{}

func (e *DisableEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/aus/disable", e.handler
}

func (e *DisableEndpoint) RequiresInit() bool { return true }

func (e *DisableEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAuRequest(w, r)
	if !ok {
		return
	}
	if err := svcctx.SchedulerFrom(r.Context()).Disable(r.Context(), req.AuID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AuActionResponse{AuID: req.AuID, Action: "disable", Applied: true})
}

func (e *DisableEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <au-id>",
		Short: "Stop indexing an AU until it is enqueued again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AuActionResponse
			if err := client.Post(cmd.Context(), "/api/aus/disable", AuRequest{AuID: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// StopEndpoint handles POST /api/aus/stop. It cancels the running task of
// an AU, which fails it and requeues the AU at failed priority, or
// reschedules it when asked.
type StopEndpoint struct{}

func (e *StopEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/aus/stop", e.handler
}

func (e *StopEndpoint) RequiresInit() bool { return true }

func (e *StopEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAuRequest(w, r)
	if !ok {
		return
	}
	sched := svcctx.SchedulerFrom(r.Context())
	resp := AuActionResponse{AuID: req.AuID, Action: "cancel"}
	if req.Reschedule {
		resp.Action = "reschedule"
		resp.Applied = sched.Reschedule(req.AuID)
	} else {
		resp.Applied = sched.Cancel(req.AuID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *StopEndpoint) Command(getServerURL func() string) *cobra.Command {
	var reschedule bool
	cmd := &cobra.Command{
		Use:   "stop <au-id>",
		Short: "Stop the running reindexing task of an AU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AuActionResponse
			if err := client.Post(cmd.Context(), "/api/aus/stop", AuRequest{AuID: args[0], Reschedule: reschedule}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&reschedule, "reschedule", false, "Reschedule the task for a fresh pass instead of failing it")
	return cmd
}

// DeleteAuEndpoint handles DELETE /api/aus?au=<au-id>.
type DeleteAuEndpoint struct{}

func (e *DeleteAuEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/aus", e.handler
}

func (e *DeleteAuEndpoint) RequiresInit() bool { return true }

func (e *DeleteAuEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	auID := r.URL.Query().Get("au")
	if _, _, err := metadata.SplitAuID(auID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := svcctx.SchedulerFrom(r.Context()).DeleteAu(r.Context(), auID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AuActionResponse{AuID: auID, Action: "delete", Applied: true})
}

func (e *DeleteAuEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <au-id>",
		Short: "Remove an AU and its metadata from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AuActionResponse
			if err := client.Delete(cmd.Context(), "/api/aus?au="+url.QueryEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// AuMdInfo is the indexing bookkeeping of an AU.
type AuMdInfo struct {
	MdVersion    int   `json:"md_version"`
	ExtractTime  int64 `json:"extract_time"`
	CreationTime int64 `json:"creation_time"`
}

// AuResponse describes the indexing state of one AU.
type AuResponse struct {
	AuID     string    `json:"au_id"`
	Indexed  bool      `json:"indexed"`
	Active   bool      `json:"active"`
	Pending  bool      `json:"pending"`
	Metadata *AuMdInfo `json:"metadata,omitempty"`
	Problems []string  `json:"problems,omitempty"`
}

// GetAuEndpoint handles GET /api/aus?au=<au-id>.
type GetAuEndpoint struct{}

func (e *GetAuEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/aus", e.handler
}

func (e *GetAuEndpoint) RequiresInit() bool { return true }

func (e *GetAuEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auID := r.URL.Query().Get("au")
	pluginID, auKey, err := metadata.SplitAuID(auID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st := svcctx.StoreFrom(ctx)
	resp := AuResponse{
		AuID:   auID,
		Active: slices.Contains(svcctx.SchedulerFrom(ctx).ActiveAuIDs(), auID),
	}
	if _, resp.Indexed, err = st.FindAu(ctx, pluginID, auKey); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if resp.Pending, err = st.IsAuPending(ctx, pluginID, auKey); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	md, err := st.FindAuMd(ctx, pluginID, auKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if md != nil {
		resp.Metadata = &AuMdInfo{MdVersion: md.MdVersion, ExtractTime: md.ExtractTime, CreationTime: md.CreationTime}
	}
	if resp.Problems, err = st.AuProblems(ctx, pluginID, auKey); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !resp.Indexed && !resp.Active && !resp.Pending {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown au %s", auID))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *GetAuEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "au <au-id>",
		Short: "Show the indexing state of an AU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AuResponse
			if err := client.Get(cmd.Context(), "/api/aus?au="+url.QueryEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
