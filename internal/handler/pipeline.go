package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradepulse/internal/pipeline"
	"tradepulse/internal/record"
	"tradepulse/internal/risk"
)

type PipelineHandler struct {
	Store    *record.Store
	Queue    *pipeline.Queue
	Cache    *pipeline.ResultCache
	Registry *risk.Registry
}

func (h *PipelineHandler) Register(r *gin.Engine) {
	group := r.Group("/api/pipeline")
	group.GET("/health", h.health)
}

func (h *PipelineHandler) health(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	stats := h.Store.Stats()

	monitors := 0
	var instruments []string
	if h.Registry != nil {
		monitors = h.Registry.Active()
		instruments = h.Registry.ActiveInstruments()
	}

	c.JSON(http.StatusOK, gin.H{
		"records_working_set":   stats.WorkingSet,
		"records_known_ids":     stats.KnownIDs,
		"records_by_status":     stats.ByStatus,
		"queue_depth":           h.Queue.Len(),
		"results_pending_drain": h.Cache.Len(),
		"active_monitors":       monitors,
		"monitored_instruments": instruments,
	})
}
