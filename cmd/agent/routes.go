package main

import (
	"telecrm/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		// Dialer companion signals.
		events := v1.Group("/events")
		{
			events.POST("/outgoing-call", h.OutgoingCall)
			events.POST("/call-state", h.CallState)
		}

		// Device-side data feeds the reconciler reads from.
		feeds := v1.Group("/feeds")
		{
			feeds.POST("/call-log", h.FeedCallLog)
			feeds.POST("/recordings", h.FeedRecordings)
		}

		records := v1.Group("/call-records")
		{
			records.GET("", h.ListCallRecords)
			records.GET("/stream", h.StreamCallRecords)
			records.POST("/:call_id/outcome", h.RecordOutcome)
		}

		v1.GET("/reports/summary", h.ReportSummary)
		v1.GET("/audit", h.ListAuditTrail)
	}
}
