package api

import (
	"net/http"

	"mass-messaging/internal/store"

	"github.com/gin-gonic/gin"
)

type DashboardHandler struct {
	History *store.HistoryStore
}

func NewDashboardHandler(history *store.HistoryStore) *DashboardHandler {
	return &DashboardHandler{History: history}
}

// GetHistory lists message logs, newest first
func (h *DashboardHandler) GetHistory(c *gin.Context) {
	page, err := h.History.List(c.Request.Context(), store.Filter{
		Channel: c.Query("channel"),
		Status:  c.Query("status"),
		BatchID: c.Query("batch_id"),
		Search:  c.Query("search"),
		Limit:   queryInt(c, "limit", 100),
		Offset:  queryInt(c, "offset", 0),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *DashboardHandler) GetStats(c *gin.Context) {
	stats, err := h.History.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
