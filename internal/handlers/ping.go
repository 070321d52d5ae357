package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/fancylads/bespoke/api/v1"
)

// (GET /ping)
func (h *Handler) GetPing(c *gin.Context) {
	c.JSON(http.StatusOK, v1.PingResponse{
		Status:   "ok",
		Hostname: h.hostname,
	})
}
