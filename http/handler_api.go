package http

import (
	"errors"

	"github.com/gin-gonic/gin"

	"trafego/trafegodns/provider"
	"trafego/trafegodns/reconcile"
	"trafego/trafegodns/router"
	"trafego/trafegodns/tracker"
	"trafego/trafegodns/types"
)

// APIHandler handles the management endpoints.
type APIHandler struct {
	engine  *reconcile.Engine
	cleaner *reconcile.Cleaner
	tracker *tracker.Tracker
	router  *router.Router
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(eng *reconcile.Engine, cleaner *reconcile.Cleaner, tr *tracker.Tracker, rt *router.Router) *APIHandler {
	return &APIHandler{engine: eng, cleaner: cleaner, tracker: tr, router: rt}
}

// ListRecords handles GET /api/records. The optional "provider" query
// parameter filters by provider instance.
func (h *APIHandler) ListRecords(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		records []types.TrackedRecord
		err     error
	)
	if providerID := c.Query("provider"); providerID != "" {
		if _, ok := h.router.ByID(providerID); !ok {
			Fail(c, 404, "provider not found")
			return
		}
		records, err = h.tracker.ListByProvider(ctx, providerID)
	} else {
		records, err = h.tracker.ListAll(ctx)
	}
	if err != nil {
		Fail(c, 500, err.Error())
		return
	}

	OK(c, gin.H{"count": len(records), "records": records})
}

// providerStatus is one entry in the GET /api/providers response.
type providerStatus struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Zone      string        `json:"zone"`
	Reachable bool          `json:"reachable"`
	Info      provider.Info `json:"info"`
}

// ListProviders handles GET /api/providers.
func (h *APIHandler) ListProviders(c *gin.Context) {
	ctx := c.Request.Context()

	var out []providerStatus
	for _, inst := range h.router.All() {
		info := inst.Provider.Info()
		out = append(out, providerStatus{
			ID:        inst.ID,
			Name:      inst.Name,
			Type:      info.Type,
			Zone:      inst.Zone(),
			Reachable: inst.Provider.TestConnection(ctx),
			Info:      info,
		})
	}
	OK(c, out)
}

// Sync handles POST /api/sync. With a "provider" query parameter only
// that provider is reconciled; otherwise all of them are.
func (h *APIHandler) Sync(c *gin.Context) {
	ctx := c.Request.Context()

	if providerID := c.Query("provider"); providerID != "" {
		result, err := h.engine.SyncProvider(ctx, providerID)
		if err != nil {
			if errors.Is(err, types.ErrProviderNotFound) {
				Fail(c, 404, "provider not found")
				return
			}
			Fail(c, 502, err.Error())
			return
		}
		OK(c, gin.H{providerID: summarize(result)})
		return
	}

	results := h.engine.Sync(ctx)
	out := make(gin.H, len(results))
	for id, result := range results {
		out[id] = summarize(result)
	}
	OK(c, out)
}

// Cleanup handles POST /api/cleanup. "force=true" deletes all orphans
// immediately, skipping the grace period.
func (h *APIHandler) Cleanup(c *gin.Context) {
	force := c.Query("force") == "true"
	stats := h.cleaner.SweepAll(c.Request.Context(), force)
	OK(c, gin.H{"force": force, "providers": stats})
}

// syncSummary is the per-provider shape returned by POST /api/sync.
type syncSummary struct {
	Created   int                `json:"created"`
	Updated   int                `json:"updated"`
	Unchanged int                `json:"unchanged"`
	Errors    []types.BatchError `json:"errors,omitempty"`
}

func summarize(result types.BatchResult) syncSummary {
	return syncSummary{
		Created:   len(result.Created),
		Updated:   len(result.Updated),
		Unchanged: len(result.Unchanged),
		Errors:    result.Errors,
	}
}
