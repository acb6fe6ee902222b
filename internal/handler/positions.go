package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradepulse/internal/repository"
	"tradepulse/internal/risk"
)

type PositionHandler struct {
	Repo     repository.Repository
	Registry *risk.Registry
}

func (h *PositionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/positions")
	group.GET("", h.list)
	group.GET("/active", h.active)
	group.GET("/:id", h.get)
}

// @Summary List positions
// @Tags positions
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param status query string false "open|closed"
// @Param instrument query string false "instrument"
// @Param order_by query string false "order by field"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/positions [get]
func (h *PositionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	orderBy := parseOrder(c.Query("order_by"), map[string]string{
		"opened_at":    "opened_at",
		"closed_at":    "closed_at",
		"created_at":   "created_at",
		"realized_pnl": "realized_pnl",
	})
	params := repository.ListPositionsParams{
		Limit:      limit,
		Offset:     offset,
		Status:     strQueryPtr(c, "status"),
		Instrument: strQueryPtr(c, "instrument"),
		OrderBy:    orderBy,
		Asc:        boolQueryPtr(c, "ascending"),
	}
	items, err := h.Repo.ListPositions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountPositions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Monitor coverage for open positions
// @Tags positions
// @Success 200 {object} apiResponse
// @Router /api/positions/active [get]
func (h *PositionHandler) active(c *gin.Context) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return
	}
	Ok(c, gin.H{
		"monitors":    h.Registry.Active(),
		"instruments": h.Registry.ActiveInstruments(),
	}, nil)
}

func (h *PositionHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetPosition(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "position not found", nil)
		return
	}
	Ok(c, item, nil)
}
