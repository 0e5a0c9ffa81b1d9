package http

import (
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// Health handles GET /health.
func (h *APIHandler) Health(c *gin.Context) {
	OK(c, gin.H{"status": "ok"})
}

// Status handles GET /status and reports the reconciler's state:
// configured providers, ledger counts, and the last completed pass.
func (h *APIHandler) Status(c *gin.Context) {
	tracked, err := h.tracker.ListAll(c.Request.Context())
	if err != nil {
		Fail(c, 500, err.Error())
		return
	}
	orphaned := 0
	for _, entry := range tracked {
		if entry.IsOrphaned {
			orphaned++
		}
	}

	var lastSync any
	if t := h.engine.LastSync(); !t.IsZero() {
		lastSync = t.UTC().Format(time.RFC3339)
	}

	providers := make([]string, 0)
	for _, inst := range h.router.All() {
		providers = append(providers, inst.ID)
	}

	OK(c, gin.H{
		"uptime":           time.Since(startTime).String(),
		"providers":        providers,
		"desired_entries":  len(h.engine.Desired()),
		"tracked_records":  len(tracked),
		"orphaned_records": orphaned,
		"last_sync":        lastSync,
		"grace_period":     h.cleaner.Grace().String(),
	})
}
