package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradepulse/internal/repository"
)

type OrderHandler struct {
	Repo repository.Repository
}

func (h *OrderHandler) Register(r *gin.Engine) {
	group := r.Group("/api/orders")
	group.GET("", h.list)
}

func (h *OrderHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOrdersParams{
		Limit:      limit,
		Offset:     offset,
		PositionID: strQueryPtr(c, "position_id"),
		RecordID:   strQueryPtr(c, "record_id"),
		Purpose:    strQueryPtr(c, "purpose"),
		OrderBy:    "created_at",
		Asc:        boolPtr(false),
	}
	items, err := h.Repo.ListOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOrders(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func boolPtr(v bool) *bool { return &v }
