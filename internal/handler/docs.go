package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# TradePulse Service

Ingests a social feed, runs each post through an LLM trade analyst and
executes the resulting signals on Binance USDT-M futures.

## Auth

All /api/* routes require a Bearer token when server.auth_token is set.
Health endpoints are public.

## Notable Routes

- GET /healthz
- GET /readyz
- GET /swagger/index.html
- GET /api/records
- GET /api/records/:id
- GET /api/positions
- GET /api/positions/active
- GET /api/positions/:id
- GET /api/orders
- GET /api/pipeline/health
- GET /api/settings
- GET /api/settings/switches
- PUT /api/settings/switches/:name

## Feature Switches

- feature.ingest   pauses the feed poller
- feature.trading  pauses order placement (analysis keeps running)
- feature.reaper   pauses stale-record reclamation
`)
	})
}
